// Package callbacks builds and parses the raw callback_data strings carried by inline buttons.
package callbacks

import "strings"

const (
	PrefixLanguage      = "lang_"
	PrefixPersona       = "botname_"
	PrefixFeedback      = "message-"
	PrefixFeedbackReply = "replymessage_"

	// FeedbackSep separates the feedback subtype from the request id.
	FeedbackSep = "__"
)

const (
	SubtypeLiked    = "message-liked"
	SubtypeDisliked = "message-disliked"
)

// Language returns the data for a language button.
func Language(code string) string { return PrefixLanguage + code }

// Persona returns the data for a persona button.
func Persona(persona string) string { return PrefixPersona + persona }

// Feedback returns the data for a feedback button; requestID is the question message id.
func Feedback(subtype, requestID string) string {
	return subtype + FeedbackSep + requestID
}

// FeedbackReply returns the data for a button on the confirmed feedback prompt.
func FeedbackReply(side string) string { return PrefixFeedbackReply + side }

// Payload returns data without prefix and whether the prefix matched at the start.
func Payload(data, prefix string) (string, bool) {
	if !strings.HasPrefix(data, prefix) {
		return "", false
	}
	return data[len(prefix):], true
}

// ParseFeedback splits "message-liked__99" into subtype and request id.
// ok is false for unknown subtypes or an empty id.
func ParseFeedback(data string) (subtype, requestID string, ok bool) {
	subtype, requestID, found := strings.Cut(data, FeedbackSep)
	if !found || requestID == "" {
		return "", "", false
	}
	if subtype != SubtypeLiked && subtype != SubtypeDisliked {
		return "", "", false
	}
	return subtype, requestID, true
}
