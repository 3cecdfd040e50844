package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/pitarabot/core/metrics"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	calls  int
	fail   []error
	block  chan struct{}
	closed bool
}

func (s *recordingSink) Publish(ctx context.Context, ev Event) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.fail) > 0 {
		err := s.fail[0]
		s.fail = s.fail[1:]
		return err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) snapshot() ([]Event, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...), s.calls
}

func TestNewInteractEvent(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	ev := NewInteractEvent(FeedbackEvent{
		ChatID:    42,
		UserID:    7,
		RequestID: "99",
		Subtype:   "message-liked",
		Persona:   "teacher",
	}, Producer{ID: "telegram-bot", PID: "pitarabot", Ver: "1.0"}, now)

	assert.Equal(t, "INTERACT", ev.EID)
	assert.Equal(t, int64(1700000000123), ev.ETS)
	assert.NotEmpty(t, ev.MID)
	assert.Equal(t, "7", ev.Actor.ID)
	assert.Equal(t, "d7", ev.Context.DID)
	assert.Equal(t, "99", ev.Context.SID)
	assert.Equal(t, []CData{{ID: "42", Type: "Chat"}}, ev.Context.CData)
	assert.Equal(t, "message-liked", ev.EData.Subtype)
	assert.Equal(t, "teacher", ev.EData.ID)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "CLICK", generic["edata"].(map[string]any)["type"])
	assert.Equal(t, "telegram", generic["context"].(map[string]any)["channel"])
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &recordingSink{}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sink, Options{Workers: 1, Metrics: m})

	d.Emit(context.Background(), FeedbackEvent{ChatID: 42, UserID: 7, RequestID: "99", Subtype: "message-liked", Persona: "story"})
	require.NoError(t, d.Close())

	events, _ := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "99", events[0].Context.SID)
	assert.True(t, sink.closed)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TelemetryEventsTotal.WithLabelValues("ok")))
}

func TestDispatcherRetriesTransient(t *testing.T) {
	sink := &recordingSink{fail: []error{
		&net.OpError{Op: "dial", Err: errors.New("refused")},
		&amqp091.Error{Code: 320, Reason: "CONNECTION_FORCED", Recover: true},
	}}
	d := NewDispatcher(sink, Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})

	d.Emit(context.Background(), FeedbackEvent{RequestID: "1", Subtype: "message-disliked"})
	require.NoError(t, d.Close())

	events, calls := sink.snapshot()
	assert.Len(t, events, 1)
	assert.Equal(t, 3, calls)
	assert.Zero(t, d.ErrorCount())
}

func TestDispatcherGivesUpOnPermanentError(t *testing.T) {
	sink := &recordingSink{fail: []error{errors.New("access refused")}}
	d := NewDispatcher(sink, Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})

	d.Emit(context.Background(), FeedbackEvent{RequestID: "1", Subtype: "message-liked"})
	require.NoError(t, d.Close())

	events, calls := sink.snapshot()
	assert.Empty(t, events)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sink, Options{Workers: 1, QueueSize: 1, Metrics: m})

	ev := FeedbackEvent{RequestID: "1", Subtype: "message-liked"}
	// first is picked by the worker, second fills the queue
	d.Emit(context.Background(), ev)
	require.Eventually(t, func() bool { return len(d.jobs) == 0 }, time.Second, time.Millisecond)
	d.Emit(context.Background(), ev)
	d.Emit(context.Background(), ev)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TelemetryEventsTotal.WithLabelValues("dropped")))

	close(sink.block)
	require.NoError(t, d.Close())
	events, _ := sink.snapshot()
	assert.Len(t, events, 2)
}

func TestDispatcherEmitAfterClose(t *testing.T) {
	sink := &recordingSink{}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sink, Options{Metrics: m})
	require.NoError(t, d.Close())

	assert.NotPanics(t, func() {
		d.Emit(context.Background(), FeedbackEvent{RequestID: "1"})
	})
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TelemetryEventsTotal.WithLabelValues("dropped")))
}

func TestEmitSurvivesCancelledHandlerContext(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, Options{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Emit(ctx, FeedbackEvent{RequestID: "5", Subtype: "message-liked"})
	require.NoError(t, d.Close())

	events, _ := sink.snapshot()
	assert.Len(t, events, 1)
}

func TestLogSink(t *testing.T) {
	var s LogSink
	assert.NoError(t, s.Publish(context.Background(), Event{EID: "INTERACT"}))
	assert.NoError(t, s.Close())
}
