package middleware

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/m3rciful/pitarabot/core/metrics"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

// Counters tracks outbound messages produced while handling one update.
type Counters struct {
	messages atomic.Int32
	kb       atomic.Bool
}

type countersKey struct{}

// WithCounters attaches fresh counters to ctx.
func WithCounters(ctx context.Context) context.Context {
	return context.WithValue(ctx, countersKey{}, &Counters{})
}

// CountSent records one successful outbound call on the counters in ctx.
func CountSent(ctx context.Context, hasKeyboard bool) {
	c, _ := ctx.Value(countersKey{}).(*Counters)
	if c == nil {
		return
	}
	c.messages.Add(1)
	if hasKeyboard {
		c.kb.Store(true)
	}
}

// GetCounters reads message count and keyboard presence from ctx.
func GetCounters(ctx context.Context) (int, bool) {
	c, _ := ctx.Value(countersKey{}).(*Counters)
	if c == nil {
		return 0, false
	}
	return int(c.messages.Load()), c.kb.Load()
}

// Metrics records inflight handlers and handler duration.
func Metrics(m *metrics.Metrics) func(update.HandlerFunc) update.HandlerFunc {
	return func(next update.HandlerFunc) update.HandlerFunc {
		return func(ctx context.Context, ev update.Event) error {
			m.HandlerStarted()
			start := time.Now()
			defer func() {
				m.HandlerFinished()
				m.RecordHandler(ev.Kind.String(), time.Since(start).Seconds())
			}()
			return next(ctx, ev)
		}
	}
}
