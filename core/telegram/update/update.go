// Package update turns raw Telegram updates into routed events.
package update

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pitarabot/core/telegram/callbacks"
)

// Kind is the closed set of routes an update can take.
type Kind int

const (
	KindUnknown Kind = iota
	KindStart
	KindHelp
	KindSelectLanguage
	KindSelectPersona
	KindLanguageChosen
	KindPersonaChosen
	KindFeedback
	KindFeedbackReply
	KindQuery
)

var kindNames = [...]string{
	KindUnknown:        "unknown",
	KindStart:          "start",
	KindHelp:           "help",
	KindSelectLanguage: "select_language",
	KindSelectPersona:  "select_bot",
	KindLanguageChosen: "language_chosen",
	KindPersonaChosen:  "persona_chosen",
	KindFeedback:       "feedback",
	KindFeedbackReply:  "feedback_reply",
	KindQuery:          "query",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Kinds lists every routable kind in routing order.
func Kinds() []Kind {
	return []Kind{
		KindStart, KindHelp, KindSelectLanguage, KindSelectPersona,
		KindLanguageChosen, KindPersonaChosen, KindFeedback, KindFeedbackReply,
		KindQuery,
	}
}

var commandKinds = map[string]Kind{
	"/start":           KindStart,
	"/help":            KindHelp,
	"/select_language": KindSelectLanguage,
	"/select_bot":      KindSelectPersona,
}

// Event is a decoded update, always tied to one chat.
type Event struct {
	Kind     Kind
	UpdateID int
	ChatID   int64
	UserID   int64
	// MessageID is the user message for queries, or the message carrying the pressed button.
	MessageID  int
	CallbackID string
	// Payload is the callback data after its prefix, e.g. "hi" for "lang_hi".
	Payload string
	// RequestID and Subtype are set for feedback callbacks.
	RequestID   string
	Subtype     string
	Text        string
	VoiceFileID string
	Username    string
	FirstName   string
}

// IsCallback reports whether the event came from an inline button.
func (e Event) IsCallback() bool {
	return e.CallbackID != ""
}

// HandlerFunc processes one event.
type HandlerFunc func(ctx context.Context, ev Event) error

// Decode classifies u. Updates without a chat, and content the bot does not
// handle, decode to KindUnknown.
func Decode(u tele.Update) Event {
	ev := Event{UpdateID: u.ID}
	switch {
	case u.Callback != nil:
		decodeCallback(&ev, u.Callback)
	case u.Message != nil:
		decodeMessage(&ev, u.Message)
	}
	if ev.ChatID == 0 {
		ev.Kind = KindUnknown
	}
	return ev
}

func decodeMessage(ev *Event, m *tele.Message) {
	ev.MessageID = m.ID
	if m.Chat != nil {
		ev.ChatID = m.Chat.ID
	}
	setSender(ev, m.Sender)

	switch {
	case m.Text != "":
		ev.Text = m.Text
		ev.Kind = KindQuery
		if kind, ok := commandKinds[commandName(m.Text)]; ok {
			ev.Kind = kind
		}
	case m.Voice != nil && m.Voice.FileID != "":
		ev.VoiceFileID = m.Voice.FileID
		ev.Kind = KindQuery
	default:
		ev.Kind = KindUnknown
	}
}

func decodeCallback(ev *Event, cb *tele.Callback) {
	ev.CallbackID = cb.ID
	setSender(ev, cb.Sender)
	if cb.Message != nil {
		ev.MessageID = cb.Message.ID
		if cb.Message.Chat != nil {
			ev.ChatID = cb.Message.Chat.ID
		}
	}
	if ev.ChatID == 0 && cb.Sender != nil {
		// inline-mode messages carry no chat; private chat id equals user id
		ev.ChatID = cb.Sender.ID
	}

	data := cb.Data
	if p, ok := callbacks.Payload(data, callbacks.PrefixLanguage); ok {
		ev.Kind, ev.Payload = KindLanguageChosen, p
		return
	}
	if p, ok := callbacks.Payload(data, callbacks.PrefixPersona); ok {
		ev.Kind, ev.Payload = KindPersonaChosen, p
		return
	}
	if strings.HasPrefix(data, callbacks.PrefixFeedback) {
		subtype, id, ok := callbacks.ParseFeedback(data)
		if !ok {
			ev.Kind = KindUnknown
			return
		}
		ev.Kind, ev.Subtype, ev.RequestID = KindFeedback, subtype, id
		return
	}
	if p, ok := callbacks.Payload(data, callbacks.PrefixFeedbackReply); ok {
		ev.Kind, ev.Payload = KindFeedbackReply, p
		return
	}
	ev.Kind = KindUnknown
}

func setSender(ev *Event, u *tele.User) {
	if u == nil {
		return
	}
	ev.UserID = u.ID
	ev.Username = u.Username
	ev.FirstName = u.FirstName
}

// commandName returns "/cmd" for "/cmd@bot args", or "" when text is not a command.
func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name, _, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}
