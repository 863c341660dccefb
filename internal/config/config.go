// Package config loads LoopPipe settings from defaults, an optional YAML file, a .env file and
// LOOPPIPE_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. LOOPPIPE_SERVER_ADDR.
	EnvPrefix = "LOOPPIPE"
	// DefaultStateDir holds the SQLite database and lock file.
	DefaultStateDir = "/var/lib/looppipe"
	// DefaultDBFileName is the SQLite file created in the state directory.
	DefaultDBFileName = "looppipe.db"
	// MemoryDSN selects the in-memory store.
	MemoryDSN = "memory"
)

// Config is the complete LoopPipe configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	State    StateConfig    `mapstructure:"state"`
	Log      LogConfig      `mapstructure:"log"`
	Events   EventsConfig   `mapstructure:"events"`
	Safety   SafetyConfig   `mapstructure:"safety"`
	Agents   AgentsConfig   `mapstructure:"agents"`
	GenAI    GenAIConfig    `mapstructure:"genai"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// BaseURL is the public origin smart links are issued under.
	BaseURL string `mapstructure:"base_url"`
}

// StateConfig controls persistence.
type StateConfig struct {
	Dir string `mapstructure:"dir"`
	// DBDSN is a SQLite path, a PostgreSQL DSN, or "memory". Empty means SQLite in Dir.
	DBDSN string `mapstructure:"db_dsn"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EventsConfig controls the event bus.
type EventsConfig struct {
	MaxHistory int `mapstructure:"max_history"`
	// Persist appends every event to the store's event log.
	Persist bool `mapstructure:"persist"`
}

// SafetyConfig tunes the trust-and-safety agent.
type SafetyConfig struct {
	MaxAccountsPerDevice int           `mapstructure:"max_accounts_per_device"`
	InviteRateLimit      int           `mapstructure:"invite_rate_limit"`
	RateWindow           time.Duration `mapstructure:"rate_window"`
	DisposableDomains    []string      `mapstructure:"disposable_domains"`
}

// AgentsConfig holds agent SLAs.
type AgentsConfig struct {
	PersonalizationSLA time.Duration `mapstructure:"personalization_sla"`
	TrustSafetySLA     time.Duration `mapstructure:"trust_safety_sla"`
}

// GenAIConfig selects an optional copywriter. An empty provider keeps template copy.
type GenAIConfig struct {
	Provider      string  `mapstructure:"provider"`
	Model         string  `mapstructure:"model"`
	APIKey        string  `mapstructure:"api_key"`
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	MaxCopyLength int     `mapstructure:"max_copy_length"`
}

// DeliveryConfig controls invite delivery.
type DeliveryConfig struct {
	// Service selects the backend for sms and whatsapp channels: log, twilio or whatsapp.
	Service      string        `mapstructure:"service"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`

	// RecoverSchedule is the cron expression for requeueing messages stuck in sending.
	RecoverSchedule string         `mapstructure:"recover_schedule"`
	Twilio          TwilioConfig   `mapstructure:"twilio"`
	WhatsApp        WhatsAppConfig `mapstructure:"whatsapp"`
}

// TwilioConfig holds Twilio credentials. Empty values fall back to TWILIO_* variables.
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

// WhatsAppConfig configures the whatsmeow client.
type WhatsAppConfig struct {
	DBDSN       string `mapstructure:"db_dsn"`
	QROutput    string `mapstructure:"qr_output"`
	NumericCode bool   `mapstructure:"numeric_code"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080", BaseURL: "http://localhost:8080"},
		State:  StateConfig{Dir: DefaultStateDir},
		Log:    LogConfig{Level: "info", Format: "text"},
		Events: EventsConfig{MaxHistory: 10000, Persist: true},
		Safety: SafetyConfig{
			MaxAccountsPerDevice: 3,
			InviteRateLimit:      20,
			RateWindow:           time.Hour,
			DisposableDomains:    []string{"mailinator.com", "guerrillamail.com", "10minutemail.com", "tempmail.com", "trashmail.com", "yopmail.com"},
		},
		Agents: AgentsConfig{
			PersonalizationSLA: 150 * time.Millisecond,
			TrustSafetySLA:     100 * time.Millisecond,
		},
		GenAI: GenAIConfig{Temperature: 0.7, MaxTokens: 200, MaxCopyLength: 320},
		Delivery: DeliveryConfig{
			Service:         "log",
			PollInterval:    5 * time.Second,
			MaxAttempts:     5,
			RecoverSchedule: "*/5 * * * *",
		},
	}
}

// SetDefaults registers every default on v so environment variables can override each key.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.base_url", d.Server.BaseURL)

	v.SetDefault("state.dir", d.State.Dir)
	v.SetDefault("state.db_dsn", d.State.DBDSN)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("events.max_history", d.Events.MaxHistory)
	v.SetDefault("events.persist", d.Events.Persist)

	v.SetDefault("safety.max_accounts_per_device", d.Safety.MaxAccountsPerDevice)
	v.SetDefault("safety.invite_rate_limit", d.Safety.InviteRateLimit)
	v.SetDefault("safety.rate_window", d.Safety.RateWindow)
	v.SetDefault("safety.disposable_domains", d.Safety.DisposableDomains)

	v.SetDefault("agents.personalization_sla", d.Agents.PersonalizationSLA)
	v.SetDefault("agents.trust_safety_sla", d.Agents.TrustSafetySLA)

	v.SetDefault("genai.provider", d.GenAI.Provider)
	v.SetDefault("genai.model", d.GenAI.Model)
	v.SetDefault("genai.api_key", d.GenAI.APIKey)
	v.SetDefault("genai.temperature", d.GenAI.Temperature)
	v.SetDefault("genai.max_tokens", d.GenAI.MaxTokens)
	v.SetDefault("genai.max_copy_length", d.GenAI.MaxCopyLength)

	v.SetDefault("delivery.service", d.Delivery.Service)
	v.SetDefault("delivery.poll_interval", d.Delivery.PollInterval)
	v.SetDefault("delivery.max_attempts", d.Delivery.MaxAttempts)
	v.SetDefault("delivery.recover_schedule", d.Delivery.RecoverSchedule)
	v.SetDefault("delivery.twilio.account_sid", "")
	v.SetDefault("delivery.twilio.auth_token", "")
	v.SetDefault("delivery.twilio.from", "")
	v.SetDefault("delivery.whatsapp.db_dsn", "")
	v.SetDefault("delivery.whatsapp.qr_output", "")
	v.SetDefault("delivery.whatsapp.numeric_code", false)
}

// NewViper returns a viper instance with defaults and LOOPPIPE_* environment binding.
// DATABASE_URL is honoured for state.db_dsn.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("state.db_dsn", EnvPrefix+"_STATE_DB_DSN", "DATABASE_URL")
	return v
}

// LoadDotEnv loads a .env file from the working directory when one exists.
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil {
		slog.Debug("config.LoadDotEnv: no .env file loaded", "error", err)
	} else {
		slog.Debug("config.LoadDotEnv: .env file loaded")
	}
}

// Load reads configFile (when non-empty) into v, decodes the result and validates it.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// StoreDSN resolves the store DSN: "" for the in-memory store, the configured DSN, or the
// SQLite file inside the state directory.
func (c *Config) StoreDSN() string {
	switch c.State.DBDSN {
	case MemoryDSN:
		return ""
	case "":
		return filepath.Join(c.State.Dir, DefaultDBFileName)
	default:
		return c.State.DBDSN
	}
}

// SlogLevel maps Log.Level onto slog.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")
