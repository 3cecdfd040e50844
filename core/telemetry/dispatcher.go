package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/metrics"
	"github.com/m3rciful/pitarabot/core/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telemetry: queue closed")
	// ErrQueueFull indicates the queue is saturated and the event was not accepted.
	ErrQueueFull = errors.New("telemetry: queue full")
)

// Options controls the behaviour of the telemetry dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single event.
	MaxDuration time.Duration
	Producer    Producer
	Metrics     *metrics.Metrics
	// Now is replaceable in tests.
	Now func() time.Time
}

type job struct {
	ctx context.Context
	ev  Event
}

// Dispatcher delivers events to a Sink asynchronously with retries.
type Dispatcher struct {
	opts Options
	sink Sink
	jobs chan job
	stop chan struct{}
	mu   sync.RWMutex
	once sync.Once
	wg   sync.WaitGroup
	errs atomic.Uint64
}

// NewDispatcher starts workers delivering to sink.
func NewDispatcher(sink Sink, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Dispatcher{
		opts: opts,
		sink: sink,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Emit converts fe into an interaction event and queues it. Failures are logged only.
func (d *Dispatcher) Emit(ctx context.Context, fe FeedbackEvent) {
	ev := NewInteractEvent(fe, d.opts.Producer, d.opts.Now())
	if err := d.enqueue(ctx, ev); err != nil {
		d.opts.Metrics.RecordTelemetry("dropped")
		logger.Warn(ctx, logger.CompTelemetry, "telemetry.drop",
			slog.String("status", "dropped"),
			slog.String("mid", ev.MID),
			slog.String("subtype", fe.Subtype),
			slog.String("err", err.Error()),
		)
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}
	// Detach from the handler lifetime but keep its log fields.
	j := job{ctx: context.WithoutCancel(ctx), ev: ev}
	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of events that could not be delivered.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops intake, drains queued events and closes the sink.
func (d *Dispatcher) Close() error {
	var err error
	d.once.Do(func() {
		d.mu.Lock()
		close(d.stop)
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
		err = d.sink.Close()
	})
	return err
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var lastErr error

attemptLoop:
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			lastErr = err
			break
		}
		err := d.sink.Publish(deadlineCtx, j.ev)
		if err == nil {
			d.opts.Metrics.RecordTelemetry("ok")
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("mid", j.ev.MID),
				slog.Duration("duration", time.Since(start)),
			}
			if attempt > 1 {
				attrs = append(attrs, slog.Int("attempts", attempt))
			}
			logger.Debug(ctx, logger.CompTelemetry, "telemetry.send", attrs...)
			return
		}
		lastErr = err
		if !retryable(err) || attempt == attempts {
			break
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			lastErr = deadlineCtx.Err()
			break attemptLoop
		case <-timer.C:
			logger.Debug(ctx, logger.CompTelemetry, "telemetry.retry.backoff",
				slog.String("status", "retry"),
				slog.Int("attempts", attempt),
				slog.Duration("backoff", delay),
			)
		}
	}

	d.errs.Add(1)
	d.opts.Metrics.RecordTelemetry("fail")
	logger.Error(ctx, logger.CompTelemetry, "telemetry.send",
		slog.String("status", "fail"),
		slog.String("mid", j.ev.MID),
		slog.String("err", netutil.ErrorString(lastErr)),
		slog.String("error_kind", netutil.ClassifyError(lastErr, 0)),
		slog.Int("attempts", attempts),
		slog.Duration("duration", time.Since(start)),
	)
}

func retryable(err error) bool {
	return netutil.ShouldRetry(err) || transientAMQP(err)
}
