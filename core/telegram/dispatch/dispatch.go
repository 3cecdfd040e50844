// Package dispatch drains the ingestion queue and runs one routed handler per update.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/metrics"
	"github.com/m3rciful/pitarabot/core/telegram"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("dispatch: closed")

// Answerer acknowledges callback queries that no handler claims.
type Answerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Options configures a Dispatcher. Zero values take defaults.
type Options struct {
	QueueSize   int
	Concurrency int
	Middlewares []telegram.Middleware
	Metrics     *metrics.Metrics
	Answerer    Answerer
}

// Dispatcher owns the bounded ingestion queue and the in-flight handler limit.
type Dispatcher struct {
	reg      *telegram.Registry
	queue    chan tele.Update
	sem      *semaphore.Weighted
	mws      []telegram.Middleware
	metrics  *metrics.Metrics
	answerer Answerer

	// mu orders Enqueue against Close: Close takes the write lock once no
	// sender is in flight, so every accepted update is already queued.
	mu     sync.RWMutex
	closed bool

	done      chan struct{}
	stop      chan struct{}
	loopDone  chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Dispatcher routing through reg.
func New(reg *telegram.Registry, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 256
	}
	return &Dispatcher{
		reg:      reg,
		queue:    make(chan tele.Update, opts.QueueSize),
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		mws:      opts.Middlewares,
		metrics:  opts.Metrics,
		answerer: opts.Answerer,
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Enqueue hands u to the dispatch loop. It blocks while the queue is full
// until space frees or ctx ends; in the latter case the update is dropped.
func (d *Dispatcher) Enqueue(ctx context.Context, u tele.Update) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- u:
		d.metrics.SetQueueDepth(len(d.queue))
		return nil
	case <-d.done:
		return ErrClosed
	case <-ctx.Done():
		logger.Warn(ctx, logger.CompDispatch, "enqueue.drop",
			slog.String("status", "drop"),
			slog.Int("update_id", u.ID),
			slog.Int("queue_len", len(d.queue)),
			slog.String("err", ctx.Err().Error()),
		)
		d.metrics.RecordUpdate("unknown", "dropped")
		return ctx.Err()
	}
}

// Start launches the dispatch loop. Handlers run detached from ctx
// cancellation so that shutdown lets in-flight work finish.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.loop(context.WithoutCancel(ctx))
	})
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.loopDone)
	for {
		select {
		case u := <-d.queue:
			d.metrics.SetQueueDepth(len(d.queue))
			d.spawn(ctx, u)
		case <-d.stop:
			for {
				select {
				case u := <-d.queue:
					d.spawn(ctx, u)
				default:
					d.metrics.SetQueueDepth(0)
					return
				}
			}
		}
	}
}

func (d *Dispatcher) spawn(ctx context.Context, u tele.Update) {
	// saturation blocks the loop; the queue absorbs the backlog
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.Dispatch(ctx, u)
	}()
}

// Dispatch decodes u and runs its handler synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, u tele.Update) {
	ev := update.Decode(u)
	route, ok := d.reg.Lookup(ev.Kind)
	if ev.Kind == update.KindUnknown || !ok {
		d.skip(ctx, ev, ok)
		return
	}
	// summarize logs and reports the error
	_ = telegram.Chain(d.summarize(route), d.mws)(ctx, ev)
}

func (d *Dispatcher) skip(ctx context.Context, ev update.Event, routed bool) {
	reason := "unsupported"
	if ev.Kind != update.KindUnknown && !routed {
		reason = "no_route"
	}
	if ev.ChatID == 0 {
		reason = "no_chat"
	}
	logger.Info(ctx, logger.CompDispatch, "update.skip",
		slog.String("status", "skip"),
		slog.String("kind", ev.Kind.String()),
		slog.String("reason", reason),
		slog.Int("update_id", ev.UpdateID),
		slog.Int64("chat_id", ev.ChatID),
	)
	d.metrics.RecordUpdate(ev.Kind.String(), "skip")
	if ev.IsCallback() && d.answerer != nil {
		_ = d.answerer.AnswerCallback(ctx, ev.CallbackID, "")
	}
}

// Close stops intake, drains queued updates and waits for in-flight handlers.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.stop)
		// a dispatcher that never started has no loop to wait for
		d.startOnce.Do(func() { close(d.loopDone) })
		<-d.loopDone
		d.wg.Wait()
	})
	return nil
}
