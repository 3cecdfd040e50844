// Package state records the last conversation step reached by each chat.
// Routing never consults it; it exists for logs and tests.
package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m3rciful/pitarabot/core/logger"
)

// State identifies a conversation step.
type State string

const (
	Start             State = "start"
	LanguageSelection State = "language_selection"
	PersonaSelection  State = "persona_selection"
	QueryHandling     State = "query_handling"
	FeedbackPrompt    State = "feedback_prompt"
)

// Tracker stores the current State per chat in memory.
type Tracker struct {
	mu     sync.RWMutex
	states map[int64]State
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[int64]State)}
}

// Get returns the chat's state, or Start when none was recorded.
func (t *Tracker) Get(chatID int64) State {
	if t == nil {
		return Start
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if st, ok := t.states[chatID]; ok {
		return st
	}
	return Start
}

// Set records st for the chat and logs the transition.
func (t *Tracker) Set(ctx context.Context, chatID int64, st State) {
	if t == nil {
		return
	}
	t.mu.Lock()
	prev, ok := t.states[chatID]
	if !ok {
		prev = Start
	}
	t.states[chatID] = st
	t.mu.Unlock()

	if prev != st {
		logger.Debug(ctx, logger.CompTG, "fsm.transition",
			slog.Int64("chat_id", chatID),
			slog.String("from", string(prev)),
			slog.String("to", string(st)),
		)
	}
}

// Len reports how many chats have a recorded state.
func (t *Tracker) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}
