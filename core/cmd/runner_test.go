package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/m3rciful/pitarabot/core/config"
	coretelegram "github.com/m3rciful/pitarabot/core/telegram"
)

type stubApp struct {
	stopped bool
}

func (a *stubApp) RunOptions() coretelegram.RunOptions {
	return coretelegram.RunOptions{
		Mode:   coretelegram.RunModeWebhook,
		OnStop: func(context.Context) error { a.stopped = true; return nil },
	}
}

func baseOptions(t *testing.T) Options {
	return Options{
		DotEnvPath:     filepath.Join(t.TempDir(), ".env"),
		LoadConfig:     func(string) (*config.Config, error) { return &config.Config{}, nil },
		ShutdownLogger: func() error { return nil },
	}
}

func TestRunWrapsHooks(t *testing.T) {
	app := &stubApp{}
	opts := baseOptions(t)
	opts.Bootstrap = func(context.Context, *config.Config) (TelegramApp, error) { return app, nil }
	var started bool
	opts.RunTelegram = func(ctx context.Context, ro coretelegram.RunOptions) error {
		if err := ro.OnStart(ctx); err != nil {
			return err
		}
		started = true
		return ro.OnStop(ctx)
	}

	if err := Run(opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !started || !app.stopped {
		t.Fatalf("started=%v stopped=%v", started, app.stopped)
	}
}

func TestRunPropagatesFailures(t *testing.T) {
	opts := baseOptions(t)
	if err := Run(opts); err == nil {
		t.Fatal("expected error without Bootstrap")
	}

	opts.Bootstrap = func(context.Context, *config.Config) (TelegramApp, error) {
		return nil, errors.New("no redis")
	}
	if err := Run(opts); err == nil {
		t.Fatal("expected bootstrap error")
	}

	opts.LoadConfig = func(string) (*config.Config, error) { return nil, errors.New("bad yaml") }
	if err := Run(opts); err == nil {
		t.Fatal("expected config error")
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/pitarabot.yaml")
	if got := ResolveConfigPath("", ""); got != "/etc/pitarabot.yaml" {
		t.Fatalf("env path = %s", got)
	}
	if got := ResolveConfigPath("local.yaml", ""); got != "local.yaml" {
		t.Fatalf("explicit path = %s", got)
	}
}
