package smartlink

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/events"
	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/store"
	"github.com/BTreeMap/LoopPipe/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() Request {
	return Request{
		UserID:  "u1",
		LoopID:  models.LoopBuddyChallenge,
		Persona: models.PersonaStudent,
		FVMType: "challenge_attempt",
		Channel: "sms",
		Context: models.TriggerContext{Subject: "Algebra"},
	}
}

func TestGenerateBuildsAttributedLink(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := NewService(store.NewInMemoryStore(), WithBaseURL("https://learn.example.com/"), WithNow(func() time.Time { return fixed }))

	link, err := svc.Generate(validRequest())
	require.NoError(t, err)

	assert.True(t, util.IsShortCode(link.ShortCode))
	assert.Equal(t, fixed, link.CreatedAt)
	assert.Equal(t, "https://learn.example.com/l/"+link.ShortCode, svc.ShortURL(link.ShortCode))

	u, err := url.Parse(link.FullURL)
	require.NoError(t, err)
	assert.Equal(t, "/join", u.Path)
	q := u.Query()
	assert.Equal(t, "BUDDY_CHALLENGE", q.Get("utm_source"))
	assert.Equal(t, "sms", q.Get("utm_medium"))
	assert.Equal(t, "challenge_attempt", q.Get("utm_campaign"))
	assert.Equal(t, link.ShortCode, q.Get("ref"))
}

func TestGenerateValidates(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	for name, mutate := range map[string]func(*Request){
		"no user":     func(r *Request) { r.UserID = "" },
		"bad loop":    func(r *Request) { r.LoopID = "NOPE" },
		"bad persona": func(r *Request) { r.Persona = "ROBOT" },
	} {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := svc.Generate(req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

type failingRepo struct {
	store.LinkRepo
	saves int
}

func (f *failingRepo) SaveLink(models.SmartLink) error {
	f.saves++
	return errors.New("disk full")
}

func TestGenerateGivesUpAfterRepeatedSaveFailures(t *testing.T) {
	repo := &failingRepo{}
	_, err := NewService(repo).Generate(validRequest())
	require.Error(t, err)
	assert.Equal(t, maxCodeAttempts, repo.saves)
}

func TestClickCountsAndPublishes(t *testing.T) {
	bus := events.NewBus()
	svc := NewService(store.NewInMemoryStore(), WithPublisher(bus))
	link, err := svc.Generate(validRequest())
	require.NoError(t, err)

	got, err := svc.Click(context.Background(), link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, link.FullURL, got.FullURL)

	_, err = svc.Click(context.Background(), link.ShortCode)
	require.NoError(t, err)

	clicked := bus.History(models.EventLinkClicked, 0)
	require.Len(t, clicked, 2)
	assert.Equal(t, 2, clicked[1].Payload["clicks"])
	assert.Equal(t, "u1", clicked[1].Payload["userId"])
}

func TestResolveUnknownOrMalformed(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	for _, code := range []string{"", "../etc", "Abcdefgh"} {
		_, err := svc.Resolve(code)
		assert.ErrorIs(t, err, models.ErrLinkNotFound, code)
	}
}

func TestWriteQR(t *testing.T) {
	var buf bytes.Buffer
	WriteQR(&buf, "https://learn.example.com/l/Abc12345")
	out := buf.String()
	assert.NotEmpty(t, out)
	assert.Greater(t, strings.Count(out, "\n"), 5)
}
