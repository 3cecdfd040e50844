package middleware

import (
	"context"
	"log/slog"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

// Context attaches rid, update metadata and message counters to ctx and logs
// one sampled debug line per received update.
func Context(next update.HandlerFunc) update.HandlerFunc {
	return func(ctx context.Context, ev update.Event) error {
		rid := logger.BuildRID(ev.UpdateID, ev.ChatID, ev.UserID)
		ctx = logger.WithRID(ctx, rid)
		ctx = logger.WithUpdateMeta(ctx, logger.UpdateMeta{
			UpdateID: ev.UpdateID,
			ChatID:   ev.ChatID,
			UserID:   ev.UserID,
		})
		ctx = logger.WithLogger(ctx, logger.Component(logger.CompTG))
		ctx = WithCounters(ctx)

		if logger.ShouldSampleDebug() {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("kind", ev.Kind.String()),
			}
			if ev.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(ev.Username, 64)))
			}
			switch {
			case ev.IsCallback():
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(ev.Payload, 128)))
			case ev.Text != "":
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(ev.Text, 256)))
			case ev.VoiceFileID != "":
				attrs = append(attrs, slog.Bool("voice", true))
			}
			logger.LogEvent(ctx, logger.Component(logger.CompTG), slog.LevelDebug, "update.received", attrs...)
		}
		return next(ctx, ev)
	}
}
