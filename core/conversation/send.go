package conversation

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/netutil"
	"github.com/m3rciful/pitarabot/core/telegram"
	"github.com/m3rciful/pitarabot/core/telegram/callbacks"
	"github.com/m3rciful/pitarabot/core/telegram/keyboard"
)

const (
	iconLiked          = "👍🏻"
	iconDisliked       = "👎🏻"
	iconLikedChosen    = "👍"
	iconDislikedChosen = "👎"
)

// sendMarkdown sends text as Markdown and retries as plain text when
// Telegram rejects the entities.
func (h *Handlers) sendMarkdown(ctx context.Context, chatID int64, text string, kb *tele.ReplyMarkup) (int, error) {
	id, err := h.client.SendText(ctx, chatID, text, telegram.SendOptions{Markdown: true, Keyboard: kb})
	if err == nil || !telegram.IsParseError(err) {
		return id, err
	}
	logger.Warn(ctx, logger.CompTG, "send.markdown_fallback",
		slog.String("status", "retry"),
		slog.String("err", logger.SanitizeLimit(netutil.ErrorString(err), 256)),
	)
	return h.client.SendText(ctx, chatID, text, telegram.SendOptions{Keyboard: kb})
}

func (h *Handlers) sendPlain(ctx context.Context, chatID int64, text string, kb *tele.ReplyMarkup) (int, error) {
	return h.client.SendText(ctx, chatID, text, telegram.SendOptions{Keyboard: kb})
}

// answer acknowledges a callback. Failures are logged only; the spinner
// times out on its own.
func (h *Handlers) answer(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := h.client.AnswerCallback(ctx, callbackID, text); err != nil {
		logger.Debug(ctx, logger.CompTG, "callback.answer",
			slog.String("status", "fail"),
			slog.String("err", netutil.ErrorString(err)),
		)
	}
}

func (h *Handlers) languageKeyboard() *tele.ReplyMarkup {
	langs := h.catalog.Languages(h.opts.Languages)
	btns := make([]keyboard.InlineBtn, 0, len(langs))
	for _, l := range langs {
		btns = append(btns, keyboard.InlineBtn{Text: l.Text, Data: callbacks.Language(l.Code)})
	}
	return keyboard.InlineButtons(btns)
}

func (h *Handlers) personaKeyboard(lang string) *tele.ReplyMarkup {
	btns := make([]keyboard.InlineBtn, 0, len(h.opts.Personas))
	for _, p := range h.opts.Personas {
		btns = append(btns, keyboard.InlineBtn{Text: h.catalog.PersonaName(lang, p), Data: callbacks.Persona(p)})
	}
	return keyboard.InlineButtons(btns)
}

func feedbackKeyboard(requestID string) *tele.ReplyMarkup {
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: iconLiked, Data: callbacks.Feedback(callbacks.SubtypeLiked, requestID)},
		{Text: iconDisliked, Data: callbacks.Feedback(callbacks.SubtypeDisliked, requestID)},
	})
}

func confirmedKeyboard(subtype string) *tele.ReplyMarkup {
	liked, disliked := iconLiked, iconDisliked
	if subtype == callbacks.SubtypeLiked {
		liked = iconLikedChosen
	} else {
		disliked = iconDislikedChosen
	}
	return keyboard.InlineButtonsRows([]keyboard.InlineBtn{
		{Text: liked, Data: callbacks.FeedbackReply("liked")},
		{Text: disliked, Data: callbacks.FeedbackReply("disliked")},
	})
}
