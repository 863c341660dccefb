// Package agent defines the request/response contract shared by LoopPipe's specialist agents
// and provides the personalization and trust-and-safety agents.
//
// Every agent declares an SLA. Breaching it is logged, never enforced: the response is still
// returned to the caller.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/google/uuid"
)

// Request is the envelope handed to an agent.
type Request struct {
	AgentID   string                 `json:"agentId"`
	RequestID string                 `json:"requestId"`
	Timestamp time.Time              `json:"timestamp"`
	UserID    string                 `json:"userId"`
	Context   *models.TriggerContext `json:"context,omitempty"`
	Persona   models.Persona         `json:"persona,omitempty"`
	LoopID    models.ViralLoop       `json:"loopId,omitempty"`
}

// Response is an agent's answer. Output is the zero value when Success is false.
type Response[T any] struct {
	AgentID   string              `json:"agentId"`
	RequestID string              `json:"requestId"`
	Success   bool                `json:"success"`
	Rationale string              `json:"rationale"`
	LatencyMs int64               `json:"latencyMs"`
	Error     *models.ErrorDetail `json:"error,omitempty"`
	Output    T                   `json:"output"`
}

// Health is the result of an agent health probe.
type Health struct {
	AgentID   string `json:"agentId"`
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latencyMs"`
}

// Agent is a specialist producing outputs of type T.
type Agent[T any] interface {
	ID() string
	SLA() time.Duration
	Process(ctx context.Context, req Request) Response[T]
	HealthCheck(ctx context.Context) Health
}

// NewRequestID returns a unique request identifier.
func NewRequestID() string {
	return "req_" + uuid.NewString()
}

// NewRequest builds a request addressed to agentID with a fresh id and timestamp.
func NewRequest(agentID, userID string) Request {
	return Request{
		AgentID:   agentID,
		RequestID: NewRequestID(),
		Timestamp: time.Now().UTC(),
		UserID:    userID,
	}
}

// ValidateRequest checks the four mandatory envelope fields.
func ValidateRequest(req Request) *models.ErrorDetail {
	switch {
	case req.AgentID == "":
		return models.NewErrorDetail(models.CodeValidation, "agentId is required")
	case req.RequestID == "":
		return models.NewErrorDetail(models.CodeValidation, "requestId is required")
	case req.Timestamp.IsZero():
		return models.NewErrorDetail(models.CodeValidation, "timestamp is required")
	case req.UserID == "":
		return models.NewErrorDetail(models.CodeValidation, "userId is required")
	}
	return nil
}

// Timing measures the duration of one request.
type Timing struct {
	start time.Time
}

// StartTiming begins measuring.
func StartTiming() Timing {
	return Timing{start: time.Now()}
}

// Elapsed returns the time since StartTiming.
func (t Timing) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Finish stamps the elapsed latency on resp, fills an empty rationale and logs a warning when
// the SLA was exceeded.
func Finish[T any](logger *slog.Logger, sla time.Duration, timing Timing, resp Response[T]) Response[T] {
	elapsed := timing.Elapsed()
	resp.LatencyMs = elapsed.Milliseconds()
	if resp.Rationale == "" {
		if resp.Success {
			resp.Rationale = "completed"
		} else if resp.Error != nil {
			resp.Rationale = resp.Error.Message
		} else {
			resp.Rationale = "failed"
		}
	}
	if sla > 0 && elapsed > sla {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Agent.Finish: SLA exceeded",
			"agent_id", resp.AgentID, "request_id", resp.RequestID, "latency_ms", resp.LatencyMs, "sla_ms", sla.Milliseconds())
	}
	return resp
}

// Failure builds an unsuccessful response for req.
func Failure[T any](req Request, code, message, rationale string) Response[T] {
	return Response[T]{
		AgentID:   req.AgentID,
		RequestID: req.RequestID,
		Success:   false,
		Rationale: rationale,
		Error:     models.NewErrorDetail(code, message),
	}
}

// Succeed builds a successful response for req.
func Succeed[T any](req Request, output T, rationale string) Response[T] {
	return Response[T]{
		AgentID:   req.AgentID,
		RequestID: req.RequestID,
		Success:   true,
		Rationale: rationale,
		Output:    output,
	}
}

// probe times one synthetic request through a and reports whether ok accepts the response.
func probe[T any](ctx context.Context, a Agent[T], req Request, ok func(Response[T]) bool) Health {
	timing := StartTiming()
	resp := a.Process(ctx, req)
	return Health{
		AgentID:   a.ID(),
		Healthy:   ok(resp),
		LatencyMs: timing.Elapsed().Milliseconds(),
	}
}
