package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/m3rciful/pitarabot/core/logger"
)

// Options lists the supported values and the defaults applied on read.
type Options struct {
	Languages       []string
	DefaultLanguage string
	Personas        []string
	DefaultPersona  string
}

// Sessions resolves session fields against the supported sets.
// A missing, unsupported or unreadable value resolves to the default.
type Sessions struct {
	store Store
	opts  Options
}

// New wraps store with the given options.
func New(store Store, opts Options) *Sessions {
	return &Sessions{store: store, opts: opts}
}

// Language returns the chat language or the default.
func (s *Sessions) Language(ctx context.Context, chatID int64) string {
	return s.resolve(ctx, chatID, FieldLanguage, s.opts.Languages, s.opts.DefaultLanguage)
}

// Persona returns the chat persona or the default.
func (s *Sessions) Persona(ctx context.Context, chatID int64) string {
	return s.resolve(ctx, chatID, FieldPersona, s.opts.Personas, s.opts.DefaultPersona)
}

// SetLanguage stores a supported language code.
func (s *Sessions) SetLanguage(ctx context.Context, chatID int64, code string) error {
	return s.set(ctx, chatID, FieldLanguage, code, s.opts.Languages)
}

// SetPersona stores an enabled persona.
func (s *Sessions) SetPersona(ctx context.Context, chatID int64, persona string) error {
	return s.set(ctx, chatID, FieldPersona, persona, s.opts.Personas)
}

// SupportsLanguage reports whether code is in the supported set.
func (s *Sessions) SupportsLanguage(code string) bool {
	return slices.Contains(s.opts.Languages, code)
}

// SupportsPersona reports whether persona is enabled.
func (s *Sessions) SupportsPersona(persona string) bool {
	return slices.Contains(s.opts.Personas, persona)
}

func (s *Sessions) resolve(ctx context.Context, chatID int64, field Field, allowed []string, def string) string {
	v, ok, err := s.store.Get(ctx, chatID, field)
	if err != nil {
		logger.Warn(ctx, logger.CompSession, "session.get",
			slog.String("status", "fail"),
			slog.String("field", string(field)),
			slog.String("err", err.Error()),
			slog.String("outcome", "fallback"),
		)
		return def
	}
	if !ok || !slices.Contains(allowed, v) {
		return def
	}
	return v
}

func (s *Sessions) set(ctx context.Context, chatID int64, field Field, value string, allowed []string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%w: %s=%q", ErrUnsupported, field, value)
	}
	if err := s.store.Set(ctx, chatID, field, value); err != nil {
		return err
	}
	logger.Debug(ctx, logger.CompSession, "session.set",
		slog.String("status", "ok"),
		slog.String("field", string(field)),
		slog.String("value", value),
	)
	return nil
}
