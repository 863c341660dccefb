package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newQuietBus(opts ...Option) *Bus {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewBus(opts...)
}

type countingHandler struct {
	calls atomic.Int32
}

func (h *countingHandler) Handle(context.Context, models.ViralEvent) error {
	h.calls.Add(1)
	return nil
}

func TestBus_FanOutToTypeAndWildcard(t *testing.T) {
	bus := newQuietBus()
	ctx := context.Background()

	var typed atomic.Int32
	for i := 0; i < 3; i++ {
		bus.SubscribeFunc("X", func(context.Context, models.ViralEvent) error {
			typed.Add(1)
			return nil
		})
	}
	var wildcard atomic.Int32
	bus.SubscribeFunc(models.EventWildcard, func(context.Context, models.ViralEvent) error {
		wildcard.Add(1)
		return nil
	})

	bus.Publish(ctx, models.NewEvent("X", nil))

	assert.Equal(t, int32(3), typed.Load())
	assert.Equal(t, int32(1), wildcard.Load())
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := newQuietBus()
	bus.SubscribeFunc("other.event", func(context.Context, models.ViralEvent) error {
		t.Error("handler should not be called for non-matching event type")
		return nil
	})
	bus.Publish(context.Background(), models.NewEvent("test.event", nil))
	assert.Len(t, bus.History("", 0), 1)
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	bus := newQuietBus()
	ctx := context.Background()

	var delivered atomic.Int32
	bus.SubscribeFunc("X", func(context.Context, models.ViralEvent) error {
		return errors.New("boom")
	})
	bus.SubscribeFunc("X", func(context.Context, models.ViralEvent) error {
		panic("handler exploded")
	})
	bus.SubscribeFunc("X", func(context.Context, models.ViralEvent) error {
		delivered.Add(1)
		return nil
	})
	bus.SubscribeFunc(models.EventWildcard, func(context.Context, models.ViralEvent) error {
		delivered.Add(1)
		return nil
	})

	require.NotPanics(t, func() { bus.Publish(ctx, models.NewEvent("X", nil)) })
	assert.Equal(t, int32(2), delivered.Load())
}

func TestBus_PublishWaitsForAllHandlers(t *testing.T) {
	bus := newQuietBus()
	release := make(chan struct{})
	var finished atomic.Bool
	bus.SubscribeFunc("slow", func(context.Context, models.ViralEvent) error {
		<-release
		finished.Store(true)
		return nil
	})
	bus.SubscribeFunc("slow", func(context.Context, models.ViralEvent) error {
		close(release)
		return nil
	})

	bus.Publish(context.Background(), models.NewEvent("slow", nil))
	assert.True(t, finished.Load(), "Publish returned before every handler finished")
}

func TestBus_HistoryBound(t *testing.T) {
	bus := newQuietBus(WithMaxHistory(5))
	ctx := context.Background()

	var first models.ViralEvent
	for i := 0; i < 6; i++ {
		ev := models.NewEvent("tick", map[string]any{"i": i})
		if i == 0 {
			first = ev
		}
		bus.Publish(ctx, ev)
	}

	history := bus.History("", 0)
	require.Len(t, history, 5)
	for _, ev := range history {
		assert.NotEqual(t, first.ID, ev.ID, "earliest event should have been evicted")
	}
	assert.Equal(t, 1, history[0].Payload["i"])
	assert.Equal(t, 5, history[4].Payload["i"])
}

func TestBus_HistoryFilterLimitAndSnapshot(t *testing.T) {
	bus := newQuietBus()
	ctx := context.Background()
	bus.Publish(ctx, models.NewEvent("a", map[string]any{"n": 1}))
	bus.Publish(ctx, models.NewEvent("b", nil))
	bus.Publish(ctx, models.NewEvent("a", map[string]any{"n": 2}))
	bus.Publish(ctx, models.NewEvent("a", map[string]any{"n": 3}))

	onlyA := bus.History("a", 2)
	require.Len(t, onlyA, 2)
	assert.Equal(t, 2, onlyA[0].Payload["n"])
	assert.Equal(t, 3, onlyA[1].Payload["n"])

	snapshot := bus.History("", 0)
	bus.Publish(ctx, models.NewEvent("c", nil))
	assert.Len(t, snapshot, 4, "history must be a snapshot, not a live view")

	bus.ClearHistory()
	assert.Empty(t, bus.History("", 0))
}

func TestBus_UnsubscribeStopsOnlyThatHandler(t *testing.T) {
	bus := newQuietBus()
	ctx := context.Background()

	var a, b atomic.Int32
	unsubA := bus.SubscribeFunc("X", func(context.Context, models.ViralEvent) error {
		a.Add(1)
		return nil
	})
	bus.SubscribeFunc("X", func(context.Context, models.ViralEvent) error {
		b.Add(1)
		return nil
	})

	bus.Publish(ctx, models.NewEvent("X", nil))
	unsubA()
	unsubA() // idempotent
	bus.Publish(ctx, models.NewEvent("X", nil))

	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(2), b.Load())
	assert.Equal(t, 1, bus.SubscriberCount("X"))
}

func TestBus_DuplicateComparableHandlerIsDeduplicated(t *testing.T) {
	bus := newQuietBus()
	h := &countingHandler{}

	unsub1 := bus.Subscribe("X", h)
	bus.Subscribe("X", h)
	assert.Equal(t, 1, bus.SubscriberCount("X"))

	bus.Subscribe(models.EventWildcard, h)
	assert.Equal(t, 2, bus.SubscriberCount(""))

	bus.Publish(context.Background(), models.NewEvent("X", nil))
	assert.Equal(t, int32(2), h.calls.Load(), "one delivery per channel")

	unsub1()
	assert.Equal(t, 0, bus.SubscriberCount("X"))
	assert.Equal(t, 1, bus.SubscriberCount(models.EventWildcard))
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := newQuietBus(WithMaxHistory(50))
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := bus.SubscribeFunc("X", func(context.Context, models.ViralEvent) error { return nil })
			unsub()
		}()
		go func() {
			defer wg.Done()
			bus.Publish(ctx, models.NewEvent("X", nil))
		}()
	}
	wg.Wait()
	assert.Len(t, bus.History("X", 0), 20)
	assert.Equal(t, 0, bus.SubscriberCount(""))
}
