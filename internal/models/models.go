// Package models defines the core data structures for LoopPipe.
//
// It includes personas, triggers, viral loop identifiers, trigger context, session summaries,
// results and events shared across the pipeline, registries, agents and API.
package models

import (
	"errors"
	"fmt"
	"slices"
)

// Persona classifies the user who fired a trigger.
type Persona string

const (
	// PersonaStudent is a learner using the platform.
	PersonaStudent Persona = "STUDENT"
	// PersonaParent is a parent or guardian of a learner.
	PersonaParent Persona = "PARENT"
	// PersonaTutor is a tutor delivering sessions.
	PersonaTutor Persona = "TUTOR"
)

// AllPersonas lists every persona in a stable order.
var AllPersonas = []Persona{PersonaStudent, PersonaParent, PersonaTutor}

// UserTrigger is a raw domain event that may lead to an invite.
type UserTrigger string

const (
	TriggerSessionComplete      UserTrigger = "SESSION_COMPLETE"
	TriggerResultsPageView      UserTrigger = "RESULTS_PAGE_VIEW"
	TriggerBadgeEarned          UserTrigger = "BADGE_EARNED"
	TriggerStreakAtRisk         UserTrigger = "STREAK_AT_RISK"
	TriggerMilestoneReached     UserTrigger = "MILESTONE_REACHED"
	TriggerTutorSessionRated    UserTrigger = "TUTOR_SESSION_RATED"
	TriggerPracticeTestComplete UserTrigger = "PRACTICE_TEST_COMPLETE"
)

// AllTriggers lists every supported trigger.
var AllTriggers = []UserTrigger{
	TriggerSessionComplete,
	TriggerResultsPageView,
	TriggerBadgeEarned,
	TriggerStreakAtRisk,
	TriggerMilestoneReached,
	TriggerTutorSessionRated,
	TriggerPracticeTestComplete,
}

// ViralLoop identifies an executable viral loop. It is used as a map key everywhere.
type ViralLoop string

const (
	LoopBuddyChallenge       ViralLoop = "BUDDY_CHALLENGE"
	LoopResultsRally         ViralLoop = "RESULTS_RALLY"
	LoopProudParent          ViralLoop = "PROUD_PARENT"
	LoopStreakRescue         ViralLoop = "STREAK_RESCUE"
	LoopTutorSpotlight       ViralLoop = "TUTOR_SPOTLIGHT"
	LoopAchievementSpotlight ViralLoop = "ACHIEVEMENT_SPOTLIGHT"
)

// AllLoops lists every known loop identifier.
var AllLoops = []ViralLoop{
	LoopBuddyChallenge,
	LoopResultsRally,
	LoopProudParent,
	LoopStreakRescue,
	LoopTutorSpotlight,
	LoopAchievementSpotlight,
}

// Error variables for better error handling and testability
var (
	ErrEmptyUserID     = errors.New("user id is required")
	ErrUnknownPersona  = errors.New("unknown persona")
	ErrUnknownTrigger  = errors.New("unknown trigger")
	ErrUnknownLoop     = errors.New("unknown viral loop")
	ErrMissingSummary  = errors.New("session summary is required")
	ErrEmptySessionID  = errors.New("session id is required")
	ErrLinkNotFound    = errors.New("smart link not found")
	ErrDuplicateSubmit = errors.New("duplicate submission")
)

// IsValid reports whether p is one of the closed persona set.
func (p Persona) IsValid() bool {
	return slices.Contains(AllPersonas, p)
}

// IsValid reports whether t is a supported trigger.
func (t UserTrigger) IsValid() bool {
	return slices.Contains(AllTriggers, t)
}

// IsValid reports whether l is a known loop identifier.
func (l ViralLoop) IsValid() bool {
	return slices.Contains(AllLoops, l)
}

// ParsePersona converts s into a Persona.
func ParsePersona(s string) (Persona, error) {
	p := Persona(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPersona, s)
	}
	return p, nil
}

// ParseTrigger converts s into a UserTrigger.
func ParseTrigger(s string) (UserTrigger, error) {
	t := UserTrigger(s)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTrigger, s)
	}
	return t, nil
}

// SupportsPersona reports whether p appears in supported.
func SupportsPersona(supported []Persona, p Persona) bool {
	return slices.Contains(supported, p)
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
