package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/pitarabot/core/i18n"
	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/session"
	"github.com/m3rciful/pitarabot/core/telegram/format"
	"github.com/m3rciful/pitarabot/core/telegram/state"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

// Start greets the user and offers the language keyboard.
func (h *Handlers) Start(ctx context.Context, ev update.Event) error {
	logger.Info(ctx, logger.CompTG, "logged_in",
		slog.Int64("user_id", ev.UserID),
		slog.String("username", logger.SanitizeLimit(ev.Username, 64)),
		slog.String("first_name", logger.SanitizeLimit(ev.FirstName, 64)),
	)
	lang := h.sessions.Language(ctx, ev.ChatID)
	welcome := h.catalog.Welcome(lang, format.MustEscapeV1(h.opts.Title))
	if _, err := h.sendMarkdown(ctx, ev.ChatID, welcome, nil); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	return h.SelectLanguage(ctx, ev)
}

// SelectLanguage sends the language keyboard.
func (h *Handlers) SelectLanguage(ctx context.Context, ev update.Event) error {
	lang := h.sessions.Language(ctx, ev.ChatID)
	prompt := h.catalog.Text(lang, i18n.KeyLanguagePrompt)
	if _, err := h.sendPlain(ctx, ev.ChatID, prompt, h.languageKeyboard()); err != nil {
		return fmt.Errorf("send language keyboard: %w", err)
	}
	h.tracker.Set(ctx, ev.ChatID, state.LanguageSelection)
	return nil
}

// LanguageChosen stores the picked language and moves on to persona selection.
func (h *Handlers) LanguageChosen(ctx context.Context, ev update.Event) error {
	h.answer(ctx, ev.CallbackID, "")
	code := ev.Payload
	if err := h.sessions.SetLanguage(ctx, ev.ChatID, code); err != nil {
		if errors.Is(err, session.ErrUnsupported) {
			logger.Warn(ctx, logger.CompTG, "language_selection",
				slog.String("status", "skip"),
				slog.String("lang", logger.SanitizeLimit(code, 16)),
				slog.String("reason", "unsupported"),
			)
			return h.SelectLanguage(ctx, ev)
		}
		return fmt.Errorf("store language: %w", err)
	}
	logger.Info(ctx, logger.CompTG, "language_selection",
		slog.String("status", "ok"),
		slog.Int64("user_id", ev.UserID),
		slog.String("lang", code),
	)
	return h.SelectPersona(ctx, ev)
}

// SelectPersona sends the persona keyboard in the chat language.
func (h *Handlers) SelectPersona(ctx context.Context, ev update.Event) error {
	lang := h.sessions.Language(ctx, ev.ChatID)
	prompt := h.catalog.Text(lang, i18n.KeyPersonaPrompt)
	if _, err := h.sendPlain(ctx, ev.ChatID, prompt, h.personaKeyboard(lang)); err != nil {
		return fmt.Errorf("send persona keyboard: %w", err)
	}
	h.tracker.Set(ctx, ev.ChatID, state.PersonaSelection)
	return nil
}

// PersonaChosen stores the picked persona and sends its intro.
func (h *Handlers) PersonaChosen(ctx context.Context, ev update.Event) error {
	h.answer(ctx, ev.CallbackID, "")
	persona := ev.Payload
	if err := h.sessions.SetPersona(ctx, ev.ChatID, persona); err != nil {
		if errors.Is(err, session.ErrUnsupported) {
			logger.Warn(ctx, logger.CompTG, "bot_selection",
				slog.String("status", "skip"),
				slog.String("bot", logger.SanitizeLimit(persona, 32)),
				slog.String("reason", "unsupported"),
			)
			return h.SelectPersona(ctx, ev)
		}
		return fmt.Errorf("store persona: %w", err)
	}
	lang := h.sessions.Language(ctx, ev.ChatID)
	logger.Info(ctx, logger.CompTG, "bot_selection",
		slog.String("status", "ok"),
		slog.Int64("user_id", ev.UserID),
		slog.String("lang", lang),
		slog.String("bot", persona),
	)
	if _, err := h.sendMarkdown(ctx, ev.ChatID, h.catalog.PersonaIntro(lang, persona), nil); err != nil {
		return fmt.Errorf("send intro: %w", err)
	}
	h.tracker.Set(ctx, ev.ChatID, state.QueryHandling)
	return nil
}

// Help lists the commands.
func (h *Handlers) Help(ctx context.Context, ev update.Event) error {
	lang := h.sessions.Language(ctx, ev.ChatID)
	if _, err := h.sendPlain(ctx, ev.ChatID, h.catalog.Text(lang, i18n.KeyHelp), nil); err != nil {
		return fmt.Errorf("send help: %w", err)
	}
	return nil
}
