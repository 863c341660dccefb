package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// TrustSafetyAgentID identifies the trust-and-safety agent.
const TrustSafetyAgentID = "trust_safety"

const (
	// DefaultTrustSafetySLA is the trust-and-safety agent's latency budget.
	DefaultTrustSafetySLA = 100 * time.Millisecond
	// DefaultMaxAccountsPerDevice is the number of distinct users a device may carry.
	DefaultMaxAccountsPerDevice = 3
	// DefaultInviteRateLimit is the number of invites a user may issue per window.
	DefaultInviteRateLimit = 20
	// DefaultRateWindow is the invite rate limit window.
	DefaultRateWindow = time.Hour
)

// DefaultDisposableDomains are email domains treated as throwaway accounts.
var DefaultDisposableDomains = []string{
	"mailinator.com",
	"guerrillamail.com",
	"10minutemail.com",
	"tempmail.com",
	"trashmail.com",
	"yopmail.com",
}

// SafetyDecision is the trust-and-safety verdict for one request.
type SafetyDecision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// SafetyOpts holds configuration for the trust-and-safety agent.
type SafetyOpts struct {
	Ledger               SignalLedger
	MaxAccountsPerDevice int
	InviteRateLimit      int
	RateWindow           time.Duration
	DisposableDomains    []string
	SLA                  time.Duration
	Logger               *slog.Logger
	Now                  func() time.Time
}

// SafetyOption configures the trust-and-safety agent.
type SafetyOption func(*SafetyOpts)

// WithLedger sets the signal ledger.
func WithLedger(l SignalLedger) SafetyOption {
	return func(o *SafetyOpts) { o.Ledger = l }
}

// WithMaxAccountsPerDevice sets the device reuse threshold.
func WithMaxAccountsPerDevice(n int) SafetyOption {
	return func(o *SafetyOpts) { o.MaxAccountsPerDevice = n }
}

// WithInviteRateLimit sets the per-user invite limit and its window.
func WithInviteRateLimit(limit int, window time.Duration) SafetyOption {
	return func(o *SafetyOpts) {
		o.InviteRateLimit = limit
		o.RateWindow = window
	}
}

// WithDisposableDomains replaces the disposable email domain list.
func WithDisposableDomains(domains []string) SafetyOption {
	return func(o *SafetyOpts) { o.DisposableDomains = domains }
}

// WithSafetySLA overrides the default SLA.
func WithSafetySLA(d time.Duration) SafetyOption {
	return func(o *SafetyOpts) { o.SLA = d }
}

// WithSafetyLogger sets the logger.
func WithSafetyLogger(l *slog.Logger) SafetyOption {
	return func(o *SafetyOpts) { o.Logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) SafetyOption {
	return func(o *SafetyOpts) { o.Now = now }
}

// TrustSafetyAgent vetoes invite generation on abuse signals.
type TrustSafetyAgent struct {
	ledger      SignalLedger
	maxAccounts int
	rateLimit   int
	rateWindow  time.Duration
	disposable  []string
	sla         time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

var _ Agent[SafetyDecision] = (*TrustSafetyAgent)(nil)

// NewTrustSafetyAgent builds the agent with defaults for every unset option.
func NewTrustSafetyAgent(opts ...SafetyOption) *TrustSafetyAgent {
	cfg := SafetyOpts{
		MaxAccountsPerDevice: DefaultMaxAccountsPerDevice,
		InviteRateLimit:      DefaultInviteRateLimit,
		RateWindow:           DefaultRateWindow,
		DisposableDomains:    DefaultDisposableDomains,
		SLA:                  DefaultTrustSafetySLA,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxAccountsPerDevice <= 0 {
		cfg.MaxAccountsPerDevice = DefaultMaxAccountsPerDevice
	}
	if cfg.InviteRateLimit <= 0 {
		cfg.InviteRateLimit = DefaultInviteRateLimit
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = DefaultRateWindow
	}
	if cfg.Ledger == nil {
		cfg.Ledger = NewMemoryLedger(cfg.RateWindow)
	}
	if cfg.SLA <= 0 {
		cfg.SLA = DefaultTrustSafetySLA
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	domains := make([]string, 0, len(cfg.DisposableDomains))
	for _, d := range cfg.DisposableDomains {
		domains = append(domains, strings.ToLower(strings.TrimSpace(d)))
	}
	return &TrustSafetyAgent{
		ledger:      cfg.Ledger,
		maxAccounts: cfg.MaxAccountsPerDevice,
		rateLimit:   cfg.InviteRateLimit,
		rateWindow:  cfg.RateWindow,
		disposable:  domains,
		sla:         cfg.SLA,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

// ID implements Agent.
func (a *TrustSafetyAgent) ID() string { return TrustSafetyAgentID }

// SLA implements Agent.
func (a *TrustSafetyAgent) SLA() time.Duration { return a.sla }

// Process evaluates device reuse, invite rate and email signals. A request that could be
// evaluated is a successful response even when the decision is a veto.
func (a *TrustSafetyAgent) Process(ctx context.Context, req Request) Response[SafetyDecision] {
	timing := StartTiming()
	if errDetail := ValidateRequest(req); errDetail != nil {
		return Finish(a.logger, a.sla, timing,
			Failure[SafetyDecision](req, errDetail.Code, errDetail.Message, "invalid request: "+errDetail.Message))
	}

	var reasons []string
	if tc := req.Context; tc != nil {
		if tc.DeviceID != "" {
			users := a.ledger.ObserveDevice(tc.DeviceID, req.UserID)
			if users > a.maxAccounts {
				reasons = append(reasons, fmt.Sprintf("device %s is shared by %d accounts (limit %d)", tc.DeviceID, users, a.maxAccounts))
			}
		}
		if domain, ok := emailDomain(tc.Email); ok && slices.Contains(a.disposable, domain) {
			reasons = append(reasons, fmt.Sprintf("email domain %s is disposable", domain))
		}
	}
	if ok, reason := a.AllowInvite(req.UserID); !ok {
		reasons = append(reasons, reason)
	}

	decision := SafetyDecision{Allowed: len(reasons) == 0, Reasons: reasons}
	rationale := "no abuse signals detected"
	if !decision.Allowed {
		rationale = "invite blocked: " + strings.Join(reasons, "; ")
		a.logger.Info("TrustSafetyAgent.Process: invite vetoed", "user_id", req.UserID, "reasons", reasons)
	}
	return Finish(a.logger, a.sla, timing, Succeed(req, decision, rationale))
}

// AllowInvite checks only the per-user invite rate limit.
func (a *TrustSafetyAgent) AllowInvite(userID string) (bool, string) {
	since := a.now().Add(-a.rateWindow)
	if n := a.ledger.InvitesSince(userID, since); n >= a.rateLimit {
		return false, fmt.Sprintf("user issued %d invites in the last %s (limit %d)", n, a.rateWindow, a.rateLimit)
	}
	return true, ""
}

// RecordInvite counts an issued invite against userID's rate limit.
func (a *TrustSafetyAgent) RecordInvite(userID string) {
	a.ledger.RecordInvite(userID, a.now())
}

// HealthCheck evaluates a request carrying no signals, which leaves the ledger untouched.
func (a *TrustSafetyAgent) HealthCheck(ctx context.Context) Health {
	return probe[SafetyDecision](ctx, a, NewRequest(a.ID(), "healthcheck"), func(r Response[SafetyDecision]) bool { return r.Success })
}

func emailDomain(email string) (string, bool) {
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return "", false
	}
	return strings.ToLower(email[at+1:]), true
}
