package agent

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestIDIsUniqueAndPrefixed(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRequestID()
		require.True(t, strings.HasPrefix(id, "req_"), id)
		require.False(t, seen[id], "duplicate request id %s", id)
		seen[id] = true
	}
}

func TestValidateRequest(t *testing.T) {
	valid := NewRequest("personalization", "u1")
	assert.Nil(t, ValidateRequest(valid))

	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"missing agent", func(r *Request) { r.AgentID = "" }, "agentId"},
		{"missing request id", func(r *Request) { r.RequestID = "" }, "requestId"},
		{"missing timestamp", func(r *Request) { r.Timestamp = time.Time{} }, "timestamp"},
		{"missing user", func(r *Request) { r.UserID = "" }, "userId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			detail := ValidateRequest(req)
			require.NotNil(t, detail)
			assert.Equal(t, models.CodeValidation, detail.Code)
			assert.Contains(t, detail.Message, tt.field)
		})
	}
}

func TestFinishFillsRationaleAndLatency(t *testing.T) {
	req := NewRequest("a", "u")

	ok := Finish(nil, time.Second, StartTiming(), Succeed(req, 1, ""))
	assert.Equal(t, "completed", ok.Rationale)

	failed := Finish(nil, time.Second, StartTiming(), Failure[int](req, models.CodeInternal, "exploded", ""))
	assert.Equal(t, "exploded", failed.Rationale)
	assert.False(t, failed.Success)
	assert.Equal(t, req.RequestID, failed.RequestID)
	assert.GreaterOrEqual(t, failed.LatencyMs, int64(0))
}

func TestFinishWarnsOnSLABreach(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	timing := Timing{start: time.Now().Add(-50 * time.Millisecond)}
	resp := Finish(logger, 10*time.Millisecond, timing, Succeed(NewRequest("slow", "u"), "out", "done"))

	assert.True(t, resp.Success, "SLA breach must not fail the response")
	assert.Equal(t, "out", resp.Output)
	assert.GreaterOrEqual(t, resp.LatencyMs, int64(50))
	assert.Contains(t, buf.String(), "SLA exceeded")
}
