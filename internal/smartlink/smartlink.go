// Package smartlink creates and resolves the short, attributed links carried by invites.
package smartlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/store"
	"github.com/BTreeMap/LoopPipe/internal/util"
	"github.com/mdp/qrterminal/v3"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8080"

// maxCodeAttempts bounds retries when a generated short code collides.
const maxCodeAttempts = 5

// ErrInvalidRequest is returned for link requests missing required fields.
var ErrInvalidRequest = errors.New("invalid link request")

// Publisher is the subset of the event bus the service needs.
type Publisher interface {
	Publish(ctx context.Context, ev models.ViralEvent)
}

// Request describes the invite a link is generated for.
type Request struct {
	UserID  string
	LoopID  models.ViralLoop
	Persona models.Persona
	FVMType string
	Channel string
	Context models.TriggerContext
}

// Opts holds configuration for the Service.
type Opts struct {
	BaseURL     string
	LandingPath string
	Publisher   Publisher
	Now         func() time.Time
}

// Option configures the Service.
type Option func(*Opts)

// WithBaseURL sets the public origin short links are served from.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithLandingPath sets the path of the destination page on the base URL.
func WithLandingPath(p string) Option {
	return func(o *Opts) { o.LandingPath = p }
}

// WithPublisher enables link.clicked events.
func WithPublisher(p Publisher) Option {
	return func(o *Opts) { o.Publisher = p }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Service generates and resolves smart links.
type Service struct {
	repo        store.LinkRepo
	baseURL     string
	landingPath string
	publisher   Publisher
	now         func() time.Time
}

// NewService creates a link service persisting into repo.
func NewService(repo store.LinkRepo, opts ...Option) *Service {
	cfg := Opts{BaseURL: DefaultBaseURL, LandingPath: "/join", Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if !strings.HasPrefix(cfg.LandingPath, "/") {
		cfg.LandingPath = "/" + cfg.LandingPath
	}
	return &Service{
		repo:        repo,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		landingPath: cfg.LandingPath,
		publisher:   cfg.Publisher,
		now:         cfg.Now,
	}
}

// Generate creates and stores a new smart link. The destination URL carries
// utm_source=<loop>, utm_medium=<channel>, utm_campaign=<fvm> and the referral code.
func (s *Service) Generate(req Request) (models.SmartLink, error) {
	if req.UserID == "" {
		return models.SmartLink{}, fmt.Errorf("%w: %w", ErrInvalidRequest, models.ErrEmptyUserID)
	}
	if !req.LoopID.IsValid() {
		return models.SmartLink{}, fmt.Errorf("%w: %w: %q", ErrInvalidRequest, models.ErrUnknownLoop, req.LoopID)
	}
	if !req.Persona.IsValid() {
		return models.SmartLink{}, fmt.Errorf("%w: %w: %q", ErrInvalidRequest, models.ErrUnknownPersona, req.Persona)
	}

	utm := models.UTMParams{Source: string(req.LoopID), Medium: req.Channel, Campaign: req.FVMType}
	var lastErr error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := util.GenerateShortCode()
		link := models.SmartLink{
			ShortCode: code,
			FullURL:   s.destination(code, utm),
			UserID:    req.UserID,
			LoopID:    req.LoopID,
			Persona:   req.Persona,
			FVMType:   req.FVMType,
			UTM:       utm,
			Context:   req.Context.Clone(),
			CreatedAt: s.now().UTC(),
		}
		if err := s.repo.SaveLink(link); err != nil {
			lastErr = err
			slog.Warn("Service.Generate: save failed, retrying with a new code", "attempt", attempt+1, "error", err)
			continue
		}
		slog.Debug("Service.Generate: link created", "short_code", code, "user_id", req.UserID, "loop_id", req.LoopID)
		return link, nil
	}
	return models.SmartLink{}, fmt.Errorf("failed to store smart link after %d attempts: %w", maxCodeAttempts, lastErr)
}

func (s *Service) destination(code string, utm models.UTMParams) string {
	q := url.Values{}
	q.Set("ref", code)
	if utm.Source != "" {
		q.Set("utm_source", utm.Source)
	}
	if utm.Medium != "" {
		q.Set("utm_medium", utm.Medium)
	}
	if utm.Campaign != "" {
		q.Set("utm_campaign", utm.Campaign)
	}
	return s.baseURL + s.landingPath + "?" + q.Encode()
}

// ShortURL returns the public short link for code.
func (s *Service) ShortURL(code string) string {
	return s.baseURL + "/l/" + code
}

// Resolve looks up a link without counting a click.
func (s *Service) Resolve(code string) (models.SmartLink, error) {
	if !util.IsShortCode(code) {
		return models.SmartLink{}, fmt.Errorf("%w: %q", models.ErrLinkNotFound, code)
	}
	return s.repo.GetLink(code)
}

// Click resolves code, counts the click and publishes link.clicked.
func (s *Service) Click(ctx context.Context, code string) (models.SmartLink, error) {
	link, err := s.Resolve(code)
	if err != nil {
		return models.SmartLink{}, err
	}
	clicks, err := s.repo.RecordClick(code, s.now().UTC())
	if err != nil {
		return models.SmartLink{}, err
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, models.NewEvent(models.EventLinkClicked, map[string]any{
			"shortCode": link.ShortCode,
			"userId":    link.UserID,
			"loopId":    string(link.LoopID),
			"persona":   string(link.Persona),
			"clicks":    clicks,
		}))
	}
	return link, nil
}

// WriteQR renders content as a terminal QR code.
func WriteQR(w io.Writer, content string) {
	qrterminal.GenerateHalfBlock(content, qrterminal.L, w)
}
