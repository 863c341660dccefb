// Package testutil provides common test helpers for LoopPipe packages that sit above the
// pipeline: a fully wired in-memory pipeline and HTTP request/response helpers.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/actions"
	"github.com/BTreeMap/LoopPipe/internal/agent"
	"github.com/BTreeMap/LoopPipe/internal/events"
	"github.com/BTreeMap/LoopPipe/internal/loops"
	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/pipeline"
	"github.com/BTreeMap/LoopPipe/internal/smartlink"
	"github.com/BTreeMap/LoopPipe/internal/store"
)

// TestBaseURL is the smart-link origin used by NewTestPipeline.
const TestBaseURL = "https://lp.test"

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Pipeline bundles a wired pipeline with the collaborators tests inspect.
type Pipeline struct {
	*pipeline.Pipeline
	Bus          *events.Bus
	Store        *store.InMemoryStore
	Links        *smartlink.Service
	Ledger       *agent.MemoryLedger
	Personalizer *agent.PersonalizationAgent
	Safety       *agent.TrustSafetyAgent
}

// NewTestPipeline wires the default loops and actions over an in-memory store. Every bus event
// is also persisted to the store.
func NewTestPipeline(t *testing.T, safetyOpts ...agent.SafetyOption) *Pipeline {
	t.Helper()
	quiet := QuietLogger()
	bus := events.NewBus(events.WithLogger(quiet))
	st := store.NewInMemoryStore()
	bus.Subscribe(models.EventWildcard, store.NewEventSink(st))

	personalizer, err := agent.NewPersonalizationAgent(agent.WithPersonalizationLogger(quiet))
	if err != nil {
		t.Fatalf("failed to build personalization agent: %v", err)
	}
	ledger := agent.NewMemoryLedger(time.Hour)
	safety := agent.NewTrustSafetyAgent(append([]agent.SafetyOption{agent.WithLedger(ledger), agent.WithSafetyLogger(quiet)}, safetyOpts...)...)
	links := smartlink.NewService(st, smartlink.WithBaseURL(TestBaseURL), smartlink.WithPublisher(bus))

	p := pipeline.New(bus,
		loops.NewDefaultRegistry(links, personalizer, loops.WithLogger(quiet)),
		actions.NewDefaultOrchestrator(actions.WithLogger(quiet)),
		safety,
		pipeline.WithLogger(quiet),
	)

	return &Pipeline{
		Pipeline:     p,
		Bus:          bus,
		Store:        st,
		Links:        links,
		Ledger:       ledger,
		Personalizer: personalizer,
		Safety:       safety,
	}
}

// APIResponse is models.APIResponse with the result left undecoded.
type APIResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// DecodeAPIResponse decodes a JSON envelope and checks its status field.
func DecodeAPIResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode JSON response: %v (body %q)", err, rr.Body.String())
	}
	if resp.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, resp.Status)
	}
	return resp
}

// CreateHTTPRequest creates a request with body marshalled as JSON. A string body is sent as is.
func CreateHTTPRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		reader = bytes.NewBuffer(MustMarshalJSON(t, b))
	}
	return httptest.NewRequest(method, url, reader)
}

// Serve runs req through h and returns the recorder.
func Serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// MustMarshalJSON marshals v to JSON and fails the test on error.
func MustMarshalJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals data into target and fails the test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target any) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
