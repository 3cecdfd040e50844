// Package conversation implements the chat flow: language and persona
// selection, question answering and feedback.
package conversation

import (
	"context"
	"errors"

	"github.com/m3rciful/pitarabot/core/i18n"
	"github.com/m3rciful/pitarabot/core/query"
	"github.com/m3rciful/pitarabot/core/telegram"
	"github.com/m3rciful/pitarabot/core/telegram/commands"
	"github.com/m3rciful/pitarabot/core/telegram/state"
	"github.com/m3rciful/pitarabot/core/telegram/update"
	"github.com/m3rciful/pitarabot/core/telemetry"
)

// Sessions reads and writes the per-chat language and persona.
type Sessions interface {
	Language(ctx context.Context, chatID int64) string
	Persona(ctx context.Context, chatID int64) string
	SetLanguage(ctx context.Context, chatID int64, code string) error
	SetPersona(ctx context.Context, chatID int64, persona string) error
}

// Resolver answers questions.
type Resolver interface {
	Resolve(ctx context.Context, in query.Input) (query.Result, error)
	FetchAudio(ctx context.Context, url string) ([]byte, error)
}

// Deps are the collaborators the handlers talk to.
type Deps struct {
	Client   telegram.Client
	Sessions Sessions
	Catalog  *i18n.Catalog
	Query    Resolver
	Emitter  telemetry.Emitter
	Tracker  *state.Tracker
}

// Options holds the presentation settings.
type Options struct {
	// Title is inserted into the welcome text.
	Title     string
	Languages []string
	Personas  []string
}

// Handlers owns one handler per update kind.
type Handlers struct {
	client   telegram.Client
	sessions Sessions
	catalog  *i18n.Catalog
	query    Resolver
	emitter  telemetry.Emitter
	tracker  *state.Tracker
	opts     Options
}

// New validates deps and builds the handlers.
func New(deps Deps, opts Options) (*Handlers, error) {
	switch {
	case deps.Client == nil:
		return nil, errors.New("conversation: nil client")
	case deps.Sessions == nil:
		return nil, errors.New("conversation: nil sessions")
	case deps.Catalog == nil:
		return nil, errors.New("conversation: nil catalog")
	case deps.Query == nil:
		return nil, errors.New("conversation: nil query resolver")
	case deps.Emitter == nil:
		return nil, errors.New("conversation: nil emitter")
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = state.NewTracker()
	}
	return &Handlers{
		client:   deps.Client,
		sessions: deps.Sessions,
		catalog:  deps.Catalog,
		query:    deps.Query,
		emitter:  deps.Emitter,
		tracker:  tracker,
		opts:     opts,
	}, nil
}

// Tracker exposes the per-chat state record.
func (h *Handlers) Tracker() *state.Tracker { return h.tracker }

// Register binds every handler and menu command to reg.
func (h *Handlers) Register(reg *telegram.Registry) error {
	routes := []struct {
		kind update.Kind
		name string
		fn   update.HandlerFunc
	}{
		{update.KindStart, "start", h.Start},
		{update.KindHelp, "help", h.Help},
		{update.KindSelectLanguage, "select_language", h.SelectLanguage},
		{update.KindSelectPersona, "select_bot", h.SelectPersona},
		{update.KindLanguageChosen, "language_chosen", h.LanguageChosen},
		{update.KindPersonaChosen, "bot_chosen", h.PersonaChosen},
		{update.KindFeedback, "feedback", h.Feedback},
		{update.KindFeedbackReply, "feedback_reply", h.FeedbackReply},
		{update.KindQuery, "query", h.Query},
	}
	for _, r := range routes {
		if err := reg.Handle(r.kind, r.name, r.fn); err != nil {
			return err
		}
	}

	reg.RegisterCommand("/start", commands.Command{Kind: update.KindStart, Description: "Start the bot"})
	reg.RegisterCommand("/help", commands.Command{Kind: update.KindHelp, Description: "How to use the bot"})
	reg.RegisterCommand("/select_language", commands.Command{Kind: update.KindSelectLanguage, Description: "Change the language"})
	reg.RegisterCommand("/select_bot", commands.Command{Kind: update.KindSelectPersona, Description: "Choose whom to talk to"})
	return nil
}
