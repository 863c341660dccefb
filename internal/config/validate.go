package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/BTreeMap/LoopPipe/internal/scheduler"
)

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Is lets callers match any validation failure with ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool { return target == ErrInvalidConfig }

// Valid option values.
var (
	ValidLogLevels       = []string{"debug", "info", "warn", "error"}
	ValidLogFormats      = []string{"text", "json"}
	ValidGenAIProviders  = []string{"", "openai", "anthropic"}
	ValidDeliveryService = []string{"log", "twilio", "whatsapp"}
)

// Validate reports every out-of-range setting. It returns nil when the configuration is usable.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	if c.Server.Addr == "" {
		add("server.addr", c.Server.Addr, "must not be empty")
	}
	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("server.base_url", c.Server.BaseURL, "must be an absolute URL")
	}
	if c.State.Dir == "" && c.State.DBDSN == "" {
		add("state.dir", c.State.Dir, "must be set when state.db_dsn is empty")
	}
	if !slices.Contains(ValidLogLevels, strings.ToLower(c.Log.Level)) {
		add("log.level", c.Log.Level, "must be one of "+strings.Join(ValidLogLevels, ", "))
	}
	if !slices.Contains(ValidLogFormats, c.Log.Format) {
		add("log.format", c.Log.Format, "must be one of "+strings.Join(ValidLogFormats, ", "))
	}
	if c.Events.MaxHistory <= 0 {
		add("events.max_history", c.Events.MaxHistory, "must be positive")
	}
	if c.Safety.MaxAccountsPerDevice <= 0 {
		add("safety.max_accounts_per_device", c.Safety.MaxAccountsPerDevice, "must be positive")
	}
	if c.Safety.InviteRateLimit <= 0 {
		add("safety.invite_rate_limit", c.Safety.InviteRateLimit, "must be positive")
	}
	if c.Safety.RateWindow <= 0 {
		add("safety.rate_window", c.Safety.RateWindow, "must be positive")
	}
	if c.Agents.PersonalizationSLA <= 0 {
		add("agents.personalization_sla", c.Agents.PersonalizationSLA, "must be positive")
	}
	if c.Agents.TrustSafetySLA <= 0 {
		add("agents.trust_safety_sla", c.Agents.TrustSafetySLA, "must be positive")
	}
	if !slices.Contains(ValidGenAIProviders, c.GenAI.Provider) {
		add("genai.provider", c.GenAI.Provider, "must be empty, openai or anthropic")
	}
	if c.GenAI.Temperature < 0 || c.GenAI.Temperature > 2 {
		add("genai.temperature", c.GenAI.Temperature, "must be between 0 and 2")
	}
	if c.GenAI.MaxCopyLength <= 0 {
		add("genai.max_copy_length", c.GenAI.MaxCopyLength, "must be positive")
	}
	if !slices.Contains(ValidDeliveryService, c.Delivery.Service) {
		add("delivery.service", c.Delivery.Service, "must be one of "+strings.Join(ValidDeliveryService, ", "))
	}
	if c.Delivery.PollInterval <= 0 {
		add("delivery.poll_interval", c.Delivery.PollInterval, "must be positive")
	}
	if c.Delivery.MaxAttempts <= 0 {
		add("delivery.max_attempts", c.Delivery.MaxAttempts, "must be positive")
	}
	if err := scheduler.Validate(c.Delivery.RecoverSchedule); err != nil {
		add("delivery.recover_schedule", c.Delivery.RecoverSchedule, "must be a 5-field cron expression or descriptor")
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
