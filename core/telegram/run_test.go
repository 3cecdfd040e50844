package telegram

import (
	"context"
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"
)

type fakeWebhookAPI struct {
	set     *tele.Webhook
	removed bool
	setErr  error
}

func (f *fakeWebhookAPI) SetWebhook(w *tele.Webhook) error {
	f.set = w
	return f.setErr
}

func (f *fakeWebhookAPI) RemoveWebhook(...bool) error {
	f.removed = true
	return nil
}

func TestWebhookURL(t *testing.T) {
	if got := WebhookURL("https://bot.example.org/"); got != "https://bot.example.org/telegram" {
		t.Fatalf("WebhookURL = %s", got)
	}
}

func TestRunTelegramWebhookMode(t *testing.T) {
	api := &fakeWebhookAPI{}
	var started, stopped, served bool
	err := RunTelegram(context.Background(), RunOptions{
		API:            api,
		Mode:           RunModeWebhook,
		WebhookBaseURL: "https://bot.example.org",
		Serve: func(context.Context) error {
			served = true
			return nil
		},
		OnStart: func(context.Context) error { started = true; return nil },
		OnStop:  func(context.Context) error { stopped = true; return nil },
	})
	if err != nil {
		t.Fatalf("RunTelegram: %v", err)
	}
	if api.set == nil || api.set.Endpoint.PublicURL != "https://bot.example.org/telegram" {
		t.Fatalf("webhook not registered: %+v", api.set)
	}
	if !started || !served || !stopped {
		t.Fatalf("lifecycle start=%v serve=%v stop=%v", started, served, stopped)
	}
}

func TestRunTelegramWebhookFailureStopsEarly(t *testing.T) {
	api := &fakeWebhookAPI{setErr: errors.New("unauthorized")}
	served := false
	err := RunTelegram(context.Background(), RunOptions{
		API:            api,
		WebhookBaseURL: "https://bot.example.org",
		Serve:          func(context.Context) error { served = true; return nil },
	})
	if err == nil || served {
		t.Fatalf("err=%v served=%v", err, served)
	}
}

func TestRunTelegramRejectsUnknownMode(t *testing.T) {
	err := RunTelegram(context.Background(), RunOptions{
		API:   &fakeWebhookAPI{},
		Mode:  "carrier",
		Serve: func(context.Context) error { return nil },
	})
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestRunTelegramCanceledServeIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RunTelegram(ctx, RunOptions{
		API:            &fakeWebhookAPI{},
		WebhookBaseURL: "https://bot.example.org",
		Serve:          func(ctx context.Context) error { <-ctx.Done(); return ctx.Err() },
	})
	if err != nil {
		t.Fatalf("RunTelegram: %v", err)
	}
}
