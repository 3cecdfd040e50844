package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.UpdatesTotal == nil || m.HandlerDurationSeconds == nil || m.QueryRequestsTotal == nil {
		t.Fatal("metric vectors not initialized")
	}
	if m.TelemetryEventsTotal == nil || m.MessagesSentTotal == nil || m.WebhookDecodeErrorsTotal == nil {
		t.Fatal("counters not initialized")
	}
}

func TestRecordUpdate(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordUpdate("query", "ok")
	m.RecordUpdate("query", "ok")
	m.RecordUpdate("unknown", "skip")

	if got := testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("query", "ok")); got != 2 {
		t.Fatalf("query/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("unknown", "skip")); got != 1 {
		t.Fatalf("unknown/skip = %v, want 1", got)
	}
}

func TestInflightAndQueueDepth(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.HandlerStarted()
	m.HandlerStarted()
	m.HandlerFinished()
	m.SetQueueDepth(7)

	if got := testutil.ToFloat64(m.HandlersInflight); got != 1 {
		t.Fatalf("inflight = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.IngestQueueDepth); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
}

func TestRecordQueryAndTelemetry(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordQuery("story", "ok", 0.4)
	m.RecordQuery("activity", "transport", 30)
	m.RecordTelemetry("dropped")
	m.RecordDecodeError()
	m.RecordSent("text")

	if got := testutil.ToFloat64(m.QueryRequestsTotal.WithLabelValues("activity", "transport")); got != 1 {
		t.Fatalf("activity/transport = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TelemetryEventsTotal.WithLabelValues("dropped")); got != 1 {
		t.Fatalf("telemetry dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.WebhookDecodeErrorsTotal); got != 1 {
		t.Fatalf("decode errors = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.QueryDurationSeconds); got != 2 {
		t.Fatalf("duration series = %d, want 2", got)
	}
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordUpdate("start", "ok")
	m.RecordHandler("start", 0.1)
	m.HandlerStarted()
	m.HandlerFinished()
	m.SetQueueDepth(1)
	m.RecordDecodeError()
	m.RecordQuery("story", "ok", 1)
	m.RecordTelemetry("ok")
	m.RecordSent("voice")
}
