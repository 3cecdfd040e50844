package state

import (
	"context"
	"sync"
	"testing"
)

func TestTrackerDefaultsToStart(t *testing.T) {
	tr := NewTracker()
	if got := tr.Get(42); got != Start {
		t.Fatalf("Get = %s", got)
	}
	var nilTracker *Tracker
	nilTracker.Set(context.Background(), 1, QueryHandling)
	if nilTracker.Get(1) != Start || nilTracker.Len() != 0 {
		t.Fatal("nil tracker should be inert")
	}
}

func TestTrackerSetIsPerChat(t *testing.T) {
	tr := NewTracker()
	ctx := context.Background()
	tr.Set(ctx, 42, LanguageSelection)
	tr.Set(ctx, 7, QueryHandling)
	tr.Set(ctx, 42, PersonaSelection)

	if tr.Get(42) != PersonaSelection || tr.Get(7) != QueryHandling {
		t.Fatalf("states = %s, %s", tr.Get(42), tr.Get(7))
	}
	if tr.Len() != 2 {
		t.Fatalf("Len = %d", tr.Len())
	}
}

func TestTrackerConcurrentWrites(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			tr.Set(context.Background(), id, FeedbackPrompt)
		}(int64(i))
	}
	wg.Wait()
	if tr.Len() != 50 {
		t.Fatalf("Len = %d", tr.Len())
	}
}
