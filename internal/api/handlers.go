package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/BTreeMap/LoopPipe/internal/actions"
	"github.com/BTreeMap/LoopPipe/internal/agent"
	"github.com/BTreeMap/LoopPipe/internal/loops"
	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/pipeline"
	"github.com/BTreeMap/LoopPipe/internal/smartlink"
)

// triggerBody is the POST /triggers payload.
type triggerBody struct {
	pipeline.TriggerRequest
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// HealthReport is the GET /health payload.
type HealthReport struct {
	Healthy     bool           `json:"healthy"`
	Agents      []agent.Health `json:"agents"`
	Subscribers map[string]int `json:"subscribers"`
	HistorySize int            `json:"historySize"`
}

func (s *Server) triggerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("Server.triggerHandler: method not allowed", "method", r.Method)
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var body triggerBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.logger.Warn("Server.triggerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	// Invalid requests never claim their key, so a corrected retry can reuse it.
	recorded := false
	if body.IdempotencyKey != "" && s.dedup != nil && pipeline.ValidateTrigger(body.TriggerRequest) == nil {
		fresh, err := s.dedup.RecordTrigger(body.IdempotencyKey, body.UserID)
		if err != nil {
			s.logger.Error("Server.triggerHandler: dedup check failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record trigger"))
			return
		}
		if !fresh {
			s.logger.Info("Server.triggerHandler: duplicate trigger", "idempotency_key", body.IdempotencyKey, "user_id", body.UserID)
			writeJSONResponse(w, http.StatusConflict, models.Error("Duplicate idempotency key"))
			return
		}
		recorded = true
	}

	results := s.pipeline.ProcessTrigger(r.Context(), body.TriggerRequest)

	if recorded {
		if err := s.dedup.MarkProcessed(body.IdempotencyKey); err != nil {
			s.logger.Error("Server.triggerHandler: failed to mark trigger processed", "idempotency_key", body.IdempotencyKey, "error", err)
		}
	}
	s.logger.Debug("Server.triggerHandler: trigger processed", "user_id", body.UserID, "trigger", body.Trigger, "results", len(results))
	writeJSONResponse(w, statusFor(results), models.Success(results))
}

func (s *Server) sessionSummaryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn("Server.sessionSummaryHandler: method not allowed", "method", r.Method)
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req pipeline.SummaryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.logger.Warn("Server.sessionSummaryHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	results := s.pipeline.ProcessSessionSummary(r.Context(), req)
	writeJSONResponse(w, statusFor(results), models.Success(results))
}

// statusFor maps a rejected request onto 400. Every other outcome, blocked or failed
// included, is reported in the body with 200.
func statusFor(results []models.AgenticActionResult) int {
	if len(results) == 1 && results[0].Error != nil && results[0].Error.Code == models.CodeValidation {
		return http.StatusBadRequest
	}
	return http.StatusOK
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	limit := DefaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	eventType := q.Get("type")

	if q.Get("source") == "store" {
		if s.eventLog == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Event log not configured"))
			return
		}
		evs, err := s.eventLog.ListEvents(eventType, limit)
		if err != nil {
			s.logger.Error("Server.eventsHandler: failed to list events", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch events"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(evs))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.pipeline.Bus().History(eventType, limit)))
}

// personaFilter reads ?persona=. ok is false when the value is present but unknown.
func personaFilter(w http.ResponseWriter, r *http.Request) (persona models.Persona, set, ok bool) {
	raw := r.URL.Query().Get("persona")
	if raw == "" {
		return "", false, true
	}
	p, err := models.ParsePersona(raw)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return "", true, false
	}
	return p, true, true
}

func (s *Server) loopsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	persona, set, ok := personaFilter(w, r)
	if !ok {
		return
	}
	registry := s.pipeline.Loops()
	selected := registry.All()
	if set {
		selected = registry.ByPersona(persona)
	}
	infos := make([]loops.Info, 0, len(selected))
	for _, l := range selected {
		infos = append(infos, loops.InfoOf(l))
	}
	writeJSONResponse(w, http.StatusOK, models.Success(infos))
}

func (s *Server) loopStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.pipeline.Loops().Stats()))
}

func (s *Server) actionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	persona, set, ok := personaFilter(w, r)
	if !ok {
		return
	}
	orch := s.pipeline.Orchestrator()
	selected := orch.All()
	if set {
		selected = orch.ByPersona(persona)
	}
	infos := make([]actions.Info, 0, len(selected))
	for _, a := range selected {
		infos = append(infos, actions.InfoOf(a))
	}
	writeJSONResponse(w, http.StatusOK, models.Success(infos))
}

func (s *Server) actionStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.pipeline.Orchestrator().Stats()))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	bus := s.pipeline.Bus()
	report := HealthReport{
		Healthy: true,
		Agents:  make([]agent.Health, 0, len(s.checkers)),
		Subscribers: map[string]int{
			"total":                     bus.SubscriberCount(""),
			models.EventWildcard:        bus.SubscriberCount(models.EventWildcard),
			models.EventInviteGenerated: bus.SubscriberCount(models.EventInviteGenerated),
		},
		HistorySize: len(bus.History("", 0)),
	}
	for _, c := range s.checkers {
		h := c.HealthCheck(r.Context())
		report.Agents = append(report.Agents, h)
		if !h.Healthy {
			report.Healthy = false
		}
	}
	status := http.StatusOK
	if !report.Healthy {
		s.logger.Warn("Server.healthHandler: agent unhealthy", "agents", report.Agents)
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, models.Success(report))
}

func (s *Server) redirectHandler(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	link, err := s.links.Click(r.Context(), code)
	if errors.Is(err, models.ErrLinkNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Link not found"))
		return
	}
	if err != nil {
		s.logger.Error("Server.redirectHandler: click failed", "short_code", code, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve link"))
		return
	}
	http.Redirect(w, r, link.FullURL, http.StatusFound)
}

func (s *Server) qrHandler(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	link, err := s.links.Resolve(code)
	if errors.Is(err, models.ErrLinkNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Link not found"))
		return
	}
	if err != nil {
		s.logger.Error("Server.qrHandler: resolve failed", "short_code", code, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to resolve link"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	smartlink.WriteQR(w, s.links.ShortURL(link.ShortCode))
}
