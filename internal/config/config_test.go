package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOOPPIPE_SERVER_ADDR", ":9999")
	t.Setenv("LOOPPIPE_SAFETY_RATE_WINDOW", "15m")
	t.Setenv("LOOPPIPE_SAFETY_INVITE_RATE_LIMIT", "7")
	t.Setenv("LOOPPIPE_DELIVERY_TWILIO_FROM", "+15550001111")
	t.Setenv("LOOPPIPE_EVENTS_PERSIST", "false")

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Safety.RateWindow)
	assert.Equal(t, 7, cfg.Safety.InviteRateLimit)
	assert.Equal(t, "+15550001111", cfg.Delivery.Twilio.From)
	assert.False(t, cfg.Events.Persist)
}

func TestLoad_DatabaseURLFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/looppipe")
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/looppipe", cfg.StoreDSN())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "looppipe.yaml")
	content := `
server:
  base_url: https://go.example.com
state:
  db_dsn: memory
genai:
  provider: anthropic
delivery:
  service: twilio
  poll_interval: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://go.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "", cfg.StoreDSN(), "memory selects the in-memory store")
	assert.Equal(t, "anthropic", cfg.GenAI.Provider)
	assert.Equal(t, "twilio", cfg.Delivery.Service)
	assert.Equal(t, 2*time.Second, cfg.Delivery.PollInterval)
	assert.Equal(t, 3, cfg.Safety.MaxAccountsPerDevice, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("LOOPPIPE_LOG_LEVEL", "loud")
	t.Setenv("LOOPPIPE_GENAI_PROVIDER", "cohere")
	t.Setenv("LOOPPIPE_SAFETY_INVITE_RATE_LIMIT", "0")

	_, err := Load(NewViper(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"log.level", "genai.provider", "safety.invite_rate_limit"}, fields)
	assert.Contains(t, err.Error(), "3 validation errors")
}

func TestValidate_BaseURL(t *testing.T) {
	cfg := Default()
	cfg.Server.BaseURL = "/relative"
	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "server.base_url", errs[0].Field)
	assert.Contains(t, errs.Error(), "must be an absolute URL")
}

func TestStoreDSN(t *testing.T) {
	cfg := Default()
	assert.Equal(t, filepath.Join(DefaultStateDir, DefaultDBFileName), cfg.StoreDSN())

	cfg.State.DBDSN = "/tmp/custom.db"
	assert.Equal(t, "/tmp/custom.db", cfg.StoreDSN())
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	assert.Equal(t, "DEBUG", cfg.SlogLevel().String())
	cfg.Log.Level = "nonsense"
	assert.Equal(t, "INFO", cfg.SlogLevel().String())
}
