package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/netutil"
	"github.com/m3rciful/pitarabot/core/sentry"
	"github.com/m3rciful/pitarabot/core/telegram"
	"github.com/m3rciful/pitarabot/core/telegram/middleware"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

func (d *Dispatcher) summarize(route telegram.Route) update.HandlerFunc {
	name := normalizeHandlerName(route.Name)
	return func(ctx context.Context, ev update.Event) error {
		ctx = logger.WithHandler(ctx, name)
		start := time.Now()
		err := route.Handler(ctx, ev)
		logHandlerSummary(ctx, name, start, err)

		status := "ok"
		if err != nil {
			status = "fail"
			sentry.CaptureException(ctx, err, map[string]string{
				"handler": name,
				"kind":    ev.Kind.String(),
			})
		}
		d.metrics.RecordUpdate(ev.Kind.String(), status)
		return err
	}
}

func logHandlerSummary(ctx context.Context, handlerName string, start time.Time, err error) {
	msgs, kb := middleware.GetCounters(ctx)
	status := "ok"
	if err != nil {
		status = "fail"
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.Took(start)),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(netutil.ErrorString(err), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Component(logger.CompTG), level, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

type coder interface{ Code() string }

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}
