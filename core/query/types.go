package query

import (
	"fmt"
	"strconv"
)

// Input is one user question taken from a chat message.
type Input struct {
	ChatID    int64
	UserID    int64
	MessageID int
	Text      string
	// VoiceURL is set for voice questions; Text is ignored then.
	VoiceURL string
}

// IsVoice reports whether the question is a voice recording.
func (in Input) IsVoice() bool {
	return in.VoiceURL != ""
}

// RequestInput is the "input" object of the query API body.
type RequestInput struct {
	Language     string `json:"language"`
	Text         string `json:"text,omitempty"`
	Audio        string `json:"audio,omitempty"`
	AudienceType string `json:"audienceType,omitempty"`
}

// RequestOutput is the "output" object of the query API body.
type RequestOutput struct {
	Format string `json:"format"`
}

// Request is the query API body.
type Request struct {
	Input  RequestInput  `json:"input"`
	Output RequestOutput `json:"output"`
}

type response struct {
	Output *struct {
		Text  string `json:"text"`
		Audio string `json:"audio"`
	} `json:"output"`
}

// Result is a successful answer.
type Result struct {
	Text     string
	AudioURL string
	// Endpoint is "story" or "activity".
	Endpoint string
	Language string
	Persona  string
}

const (
	FormatText  = "text"
	FormatAudio = "audio"
)

const (
	EndpointStory    = "story"
	EndpointActivity = "activity"
)

// Reason classifies a failed query.
type Reason string

const (
	ReasonTransport         Reason = "transport"
	ReasonHTTPStatus        Reason = "http_status"
	ReasonMalformedResponse Reason = "malformed_response"
)

// Error is returned by Resolve and FetchAudio.
type Error struct {
	Reason     Reason
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonHTTPStatus:
		return fmt.Sprintf("query %s: unexpected status %d", e.Endpoint, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("query %s: %s: %v", e.Endpoint, e.Reason, e.Err)
		}
		return fmt.Sprintf("query %s: %s", e.Endpoint, e.Reason)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code returns a short label used as err_code in logs.
func (e *Error) Code() string {
	if e.Reason == ReasonHTTPStatus {
		return "http_" + strconv.Itoa(e.StatusCode)
	}
	return string(e.Reason)
}
