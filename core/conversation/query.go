package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m3rciful/pitarabot/core/i18n"
	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/netutil"
	"github.com/m3rciful/pitarabot/core/query"
	"github.com/m3rciful/pitarabot/core/telegram/state"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

// Query forwards a text or voice question and relays the answer.
func (h *Handlers) Query(ctx context.Context, ev update.Event) error {
	lang := h.sessions.Language(ctx, ev.ChatID)
	persona := h.sessions.Persona(ctx, ev.ChatID)

	event := "question"
	if ev.VoiceFileID != "" {
		event = "voice_question"
	}
	logger.Info(ctx, logger.CompTG, "query_handler",
		slog.String("event", event),
		slog.Int64("user_id", ev.UserID),
		slog.String("lang", lang),
		slog.String("bot", persona),
		slog.String("text", logger.SanitizeLimit(ev.Text, 256)),
	)

	if _, err := h.sendPlain(ctx, ev.ChatID, h.catalog.Text(lang, i18n.KeyProcessing), nil); err != nil {
		// the placeholder is cosmetic; keep going
		logger.Debug(ctx, logger.CompTG, "send.placeholder",
			slog.String("status", "fail"),
			slog.String("err", netutil.ErrorString(err)),
		)
	}

	in := query.Input{
		ChatID:    ev.ChatID,
		UserID:    ev.UserID,
		MessageID: ev.MessageID,
		Text:      ev.Text,
	}
	if ev.VoiceFileID != "" {
		url, err := h.client.FileURL(ctx, ev.VoiceFileID)
		if err != nil {
			h.replyFailure(ctx, ev, lang)
			return fmt.Errorf("resolve voice file: %w", err)
		}
		in.VoiceURL = url
	}

	logger.Info(ctx, logger.CompTG, "handle_query_response",
		slog.String("event", "question_sent"),
		slog.Int("request_id", ev.MessageID),
		slog.String("lang", lang),
		slog.String("bot", persona),
	)
	res, err := h.query.Resolve(ctx, in)
	if err != nil {
		attrs := []slog.Attr{
			slog.String("status", "fail"),
			slog.Int("request_id", ev.MessageID),
			slog.String("lang", lang),
			slog.String("bot", persona),
		}
		var qe *query.Error
		if errors.As(err, &qe) {
			attrs = append(attrs, slog.String("err_code", qe.Code()))
		}
		logger.Warn(ctx, logger.CompTG, "handle_query_response", attrs...)
		h.replyFailure(ctx, ev, lang)
		return fmt.Errorf("resolve query: %w", err)
	}
	logger.Info(ctx, logger.CompTG, "handle_query_response",
		slog.String("event", "answer_received"),
		slog.Int("request_id", ev.MessageID),
		slog.String("endpoint", res.Endpoint),
		slog.Bool("audio", res.AudioURL != ""),
	)

	if _, err := h.sendMarkdown(ctx, ev.ChatID, res.Text, nil); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	requestID := strconv.Itoa(ev.MessageID)
	prompt := h.catalog.Text(lang, i18n.KeyFeedbackPrompt)
	if _, err := h.sendPlain(ctx, ev.ChatID, prompt, feedbackKeyboard(requestID)); err != nil {
		return fmt.Errorf("send feedback prompt: %w", err)
	}
	h.tracker.Set(ctx, ev.ChatID, state.FeedbackPrompt)

	if res.AudioURL != "" {
		h.sendAudio(ctx, ev.ChatID, res.AudioURL)
	}
	return nil
}

// replyFailure tells the user the answer could not be produced.
func (h *Handlers) replyFailure(ctx context.Context, ev update.Event, lang string) {
	if _, err := h.sendPlain(ctx, ev.ChatID, h.catalog.Text(lang, i18n.KeyAPIError), nil); err != nil {
		logger.Warn(ctx, logger.CompTG, "send.api_error",
			slog.String("status", "fail"),
			slog.String("err", netutil.ErrorString(err)),
		)
	}
	h.tracker.Set(ctx, ev.ChatID, state.QueryHandling)
}

// sendAudio relays the spoken answer. The text answer is already out, so
// failures are logged only.
func (h *Handlers) sendAudio(ctx context.Context, chatID int64, url string) {
	audio, err := h.query.FetchAudio(ctx, url)
	if err == nil {
		err = h.client.SendVoice(ctx, chatID, audio)
	}
	if err != nil {
		logger.Warn(ctx, logger.CompTG, "send.voice",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(netutil.ErrorString(err), 256)),
		)
	}
}
