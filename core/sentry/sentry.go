// Package sentry wraps the Sentry SDK for handler errors and recovered panics.
// Without a DSN every call is a no-op.
package sentry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/m3rciful/pitarabot/core/netutil"
)

// Config holds Sentry client options.
type Config struct {
	DSN         string
	Environment string
	Release     string
	// SampleRate controls error sampling (0.0-1.0, default 1.0).
	SampleRate float64
}

// Initialize sets up the Sentry SDK. An empty DSN disables reporting.
func Initialize(cfg Config) error {
	if cfg.DSN == "" {
		return nil
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	}); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	return nil
}

// Flush waits for buffered events to be sent to the server.
func Flush(timeout time.Duration) bool {
	if !IsEnabled() {
		return true
	}
	return sentry.Flush(timeout)
}

// scrubEvent strips bot tokens, which Bot API transport errors carry in their URLs.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil {
		return nil
	}
	event.Message = netutil.Redact(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = netutil.Redact(event.Exception[i].Value)
	}
	for _, b := range event.Breadcrumbs {
		if b != nil {
			b.Message = netutil.Redact(b.Message)
		}
	}
	return event
}

// IsEnabled returns true if Sentry is initialized and active.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureException reports err with the tags attached to it.
func CaptureException(ctx context.Context, err error, tags map[string]string) {
	if err == nil || !IsEnabled() {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}

// CapturePanic reports a recovered panic value.
func CapturePanic(ctx context.Context, recovered any, tags map[string]string) {
	CaptureException(ctx, fmt.Errorf("panic: %v", recovered), tags)
}
