// Package telemetry emits feedback interaction events.
//
// Emission is fire-and-forget: callers never see delivery errors.
package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// FeedbackEvent is built once per feedback button press.
type FeedbackEvent struct {
	ChatID    int64
	UserID    int64
	RequestID string
	// Subtype is "message-liked" or "message-disliked".
	Subtype string
	Persona string
}

// Emitter accepts feedback events for asynchronous delivery.
type Emitter interface {
	Emit(ctx context.Context, ev FeedbackEvent)
}

// Producer identifies this bot in the event context.
type Producer struct {
	ID  string `json:"id"`
	PID string `json:"pid"`
	Ver string `json:"ver"`
}

type Actor struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type CData struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type Context struct {
	Channel string   `json:"channel"`
	PData   Producer `json:"pdata"`
	Env     string   `json:"env"`
	DID     string   `json:"did"`
	SID     string   `json:"sid"`
	CData   []CData  `json:"cdata"`
}

type EData struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	ID      string `json:"id"`
	PageID  string `json:"pageid"`
}

// Event is the INTERACT envelope delivered to sinks.
type Event struct {
	EID     string  `json:"eid"`
	ETS     int64   `json:"ets"`
	Ver     string  `json:"ver"`
	MID     string  `json:"mid"`
	Actor   Actor   `json:"actor"`
	Context Context `json:"context"`
	EData   EData   `json:"edata"`
}

// NewInteractEvent converts a feedback press into an INTERACT event.
func NewInteractEvent(fe FeedbackEvent, producer Producer, now time.Time) Event {
	uid := strconv.FormatInt(fe.UserID, 10)
	return Event{
		EID:   "INTERACT",
		ETS:   now.UnixMilli(),
		Ver:   "3.0",
		MID:   uuid.NewString(),
		Actor: Actor{ID: uid, Type: "User"},
		Context: Context{
			Channel: "telegram",
			PData:   producer,
			Env:     "telegram-bot",
			DID:     "d" + uid,
			SID:     fe.RequestID,
			CData:   []CData{{ID: strconv.FormatInt(fe.ChatID, 10), Type: "Chat"}},
		},
		EData: EData{
			Type:    "CLICK",
			Subtype: fe.Subtype,
			ID:      fe.Persona,
			PageID:  "feedback",
		},
	}
}
