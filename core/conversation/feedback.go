package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/pitarabot/core/i18n"
	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/telegram"
	"github.com/m3rciful/pitarabot/core/telegram/state"
	"github.com/m3rciful/pitarabot/core/telegram/update"
	"github.com/m3rciful/pitarabot/core/telemetry"
)

// Feedback records a like or dislike and marks the choice on the prompt.
func (h *Handlers) Feedback(ctx context.Context, ev update.Event) error {
	lang := h.sessions.Language(ctx, ev.ChatID)
	persona := h.sessions.Persona(ctx, ev.ChatID)

	h.emitter.Emit(ctx, telemetry.FeedbackEvent{
		ChatID:    ev.ChatID,
		UserID:    ev.UserID,
		RequestID: ev.RequestID,
		Subtype:   ev.Subtype,
		Persona:   persona,
	})
	logger.Info(ctx, logger.CompTG, "feedback",
		slog.String("status", "ok"),
		slog.String("subtype", ev.Subtype),
		slog.String("request_id", ev.RequestID),
		slog.String("bot", persona),
	)

	h.answer(ctx, ev.CallbackID, h.catalog.Text(lang, i18n.KeyFeedbackThanks))
	text := h.catalog.Text(lang, i18n.KeyFeedbackConfirmed)
	err := h.client.EditText(ctx, ev.ChatID, ev.MessageID, text, telegram.SendOptions{Keyboard: confirmedKeyboard(ev.Subtype)})
	h.tracker.Set(ctx, ev.ChatID, state.QueryHandling)
	if err != nil {
		return fmt.Errorf("edit feedback prompt: %w", err)
	}
	return nil
}

// FeedbackReply acknowledges presses on an already confirmed prompt.
func (h *Handlers) FeedbackReply(ctx context.Context, ev update.Event) error {
	h.answer(ctx, ev.CallbackID, "")
	return nil
}
