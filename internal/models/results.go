package models

import "time"

// Error codes carried in ErrorDetail.Code.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeActionFailed        = "ACTION_FAILED"
	CodeLoopFailed          = "LOOP_FAILED"
	CodeLoopNotFound        = "LOOP_NOT_FOUND"
	CodePersonaNotSupported = "PERSONA_NOT_SUPPORTED"
	CodeSafetyBlocked       = "SAFETY_BLOCKED"
	CodeInternal            = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error attached to failed results and responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface so an ErrorDetail can be wrapped and returned.
func (e *ErrorDetail) Error() string {
	return e.Code + ": " + e.Message
}

// NewErrorDetail builds an ErrorDetail.
func NewErrorDetail(code, message string) *ErrorDetail {
	return &ErrorDetail{Code: code, Message: message}
}

// InviteMetadata records who generated an invite and through which loop.
type InviteMetadata struct {
	UserID    string    `json:"userId"`
	LoopID    ViralLoop `json:"loopId"`
	Persona   Persona   `json:"persona"`
	FVMType   string    `json:"fvmType"`
	Channel   string    `json:"channel"`
	CreatedAt time.Time `json:"createdAt"`
}

// Invite is the shareable artifact produced by a loop.
type Invite struct {
	ShortCode string         `json:"shortCode"`
	Link      string         `json:"link"`
	Headline  string         `json:"headline,omitempty"`
	Message   string         `json:"message,omitempty"`
	CTA       string         `json:"cta,omitempty"`
	Metadata  InviteMetadata `json:"metadata"`
}

// LoopResult is the outcome of a single loop execution.
type LoopResult struct {
	Success   bool         `json:"success"`
	Invite    *Invite      `json:"invite,omitempty"`
	Rationale string       `json:"rationale,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// AgenticActionResult is one evaluator's outcome. The pipeline also uses it for loops run
// directly from a trigger, in which case ActionID is empty.
type AgenticActionResult struct {
	ActionID        string       `json:"actionId,omitempty"`
	TriggeredLoop   ViralLoop    `json:"triggeredLoop,omitempty"`
	Success         bool         `json:"success"`
	InviteGenerated bool         `json:"inviteGenerated,omitempty"`
	Invite          *Invite      `json:"invite,omitempty"`
	Rationale       string       `json:"rationale"`
	LatencyMs       int64        `json:"latencyMs"`
	Error           *ErrorDetail `json:"error,omitempty"`
}

// UTMParams are the campaign parameters appended to a smart link.
type UTMParams struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
}

// SmartLink maps a short code to invite metadata and its destination URL.
type SmartLink struct {
	ShortCode string         `json:"shortCode"`
	FullURL   string         `json:"fullUrl"`
	UserID    string         `json:"userId"`
	LoopID    ViralLoop      `json:"loopId"`
	Persona   Persona        `json:"persona"`
	FVMType   string         `json:"fvmType"`
	UTM       UTMParams      `json:"utm"`
	Context   TriggerContext `json:"context,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
