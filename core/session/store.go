// Package session persists the per-chat language and persona selection.
//
// Values live under "<chatId>_language" and "<chatId>_bot". Writes are
// last-write-wins; nothing is ever deleted.
package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

// Field names one session attribute.
type Field string

const (
	FieldLanguage Field = "language"
	FieldPersona  Field = "bot"
)

// ErrUnsupported is returned when a value is outside the configured set.
var ErrUnsupported = errors.New("session: unsupported value")

// Key renders the storage key for chatID and field.
func Key(chatID int64, field Field) string {
	return strconv.FormatInt(chatID, 10) + "_" + string(field)
}

// Store is a chat-keyed string store.
type Store interface {
	// Get returns the stored value and whether it exists.
	Get(ctx context.Context, chatID int64, field Field) (string, bool, error)
	Set(ctx context.Context, chatID int64, field Field, value string) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, chatID int64, field Field) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[Key(chatID, field)]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, chatID int64, field Field, value string) error {
	s.mu.Lock()
	s.values[Key(chatID, field)] = value
	s.mu.Unlock()
	return nil
}
