package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/sentry"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

// Recover catches panics in handlers, reports them and turns them into errors.
func Recover(next update.HandlerFunc) update.HandlerFunc {
	return func(ctx context.Context, ev update.Event) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, logger.CompTG, "tg.panic",
					slog.String("status", "fail"),
					slog.String("kind", ev.Kind.String()),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				sentry.CapturePanic(ctx, r, map[string]string{"kind": ev.Kind.String()})
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return next(ctx, ev)
	}
}
