package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/netutil"
)

const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"

	// WebhookPath is where Telegram delivers updates in webhook mode.
	WebhookPath = "/telegram"
)

// Ingestor accepts raw updates for asynchronous processing.
type Ingestor interface {
	Enqueue(ctx context.Context, u tele.Update) error
}

// WebhookAPI is the slice of *tele.Bot used to manage delivery mode.
type WebhookAPI interface {
	SetWebhook(w *tele.Webhook) error
	RemoveWebhook(dropPending ...bool) error
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Bot  *tele.Bot
	API  WebhookAPI
	Mode string

	WebhookBaseURL     string
	DropPendingUpdates bool
	LongPollTimeout    time.Duration

	Ingest Ingestor
	// Serve runs the HTTP server until ctx is done. It is used in both modes.
	Serve func(ctx context.Context) error

	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// WebhookURL joins the public base URL with the update path.
func WebhookURL(base string) string {
	return strings.TrimRight(base, "/") + WebhookPath
}

// RunTelegram registers the delivery mode and blocks until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Serve == nil {
		return fmt.Errorf("telegram: nil Serve")
	}
	api := opts.API
	if api == nil && opts.Bot != nil {
		api = opts.Bot
	}
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = RunModeWebhook
	}

	start := time.Now()
	switch mode {
	case RunModeWebhook:
		if err := SetWebhook(ctx, api, opts.WebhookBaseURL, opts.DropPendingUpdates); err != nil {
			return err
		}
	case RunModeLongpoll:
		if opts.Bot == nil || opts.Ingest == nil {
			return fmt.Errorf("telegram: longpoll needs a bot and an ingestor")
		}
		if err := DeleteWebhook(ctx, api, opts.DropPendingUpdates); err != nil {
			logger.Warn(ctx, logger.CompTG, "delete_webhook",
				slog.String("status", "fail"),
				slog.String("mode", mode),
				slog.String("err", netutil.ErrorString(err)),
			)
		}
	default:
		return fmt.Errorf("telegram: unknown run mode %q", opts.Mode)
	}
	logger.Info(ctx, logger.CompTG, "mode",
		slog.String("status", "ok"),
		slog.String("mode", mode),
		slog.Duration("duration", logger.Took(start)),
	)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pollDone := make(chan struct{})
	if mode == RunModeLongpoll {
		go func() {
			defer close(pollDone)
			poll(runCtx, opts.Bot, opts.Ingest, opts.LongPollTimeout)
		}()
	} else {
		close(pollDone)
	}

	runErr := opts.Serve(runCtx)
	cancel()
	<-pollDone

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx))
	}
	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// SetWebhook points Telegram at <base>/telegram.
func SetWebhook(ctx context.Context, api WebhookAPI, base string, dropPending bool) error {
	if api == nil {
		return fmt.Errorf("telegram: nil bot")
	}
	if strings.TrimSpace(base) == "" {
		return fmt.Errorf("telegram: webhook base url is empty")
	}
	url := WebhookURL(base)
	err := api.SetWebhook(&tele.Webhook{
		Endpoint:    &tele.WebhookEndpoint{PublicURL: url},
		DropUpdates: dropPending,
	})
	if err != nil {
		logger.Error(ctx, logger.CompTG, "set_webhook",
			slog.String("status", "fail"),
			slog.String("err", netutil.ErrorString(err)),
		)
		return fmt.Errorf("setWebhook: %w", err)
	}
	logger.Info(ctx, logger.CompTG, "set_webhook",
		slog.String("status", "ok"),
		slog.String("public_url", url),
	)
	return nil
}

// DeleteWebhook switches Telegram back to getUpdates delivery.
func DeleteWebhook(ctx context.Context, api WebhookAPI, dropPending bool) error {
	if api == nil {
		return fmt.Errorf("telegram: nil bot")
	}
	if err := api.RemoveWebhook(dropPending); err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}
	logger.Info(ctx, logger.CompTG, "delete_webhook", slog.String("status", "ok"))
	return nil
}

func poll(ctx context.Context, bot *tele.Bot, in Ingestor, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	updates := make(chan tele.Update, 100)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		(&tele.LongPoller{Timeout: timeout}).Poll(bot, updates, stop)
	}()
	logger.Info(ctx, logger.CompTG, "poll.start",
		slog.String("status", "ok"),
		slog.Duration("timeout", timeout),
	)

	for {
		select {
		case <-ctx.Done():
			close(stop)
			drain(updates, done)
			logger.Info(context.WithoutCancel(ctx), logger.CompTG, "poll.stop", slog.String("status", "ok"))
			return
		case u := <-updates:
			if err := in.Enqueue(ctx, u); err != nil {
				logger.Warn(ctx, logger.CompTG, "poll.enqueue",
					slog.String("status", "fail"),
					slog.Int("update_id", u.ID),
					slog.String("err", netutil.ErrorString(err)),
				)
			}
		}
	}
}

// drain discards updates until the poller exits so it never blocks on send.
func drain(updates <-chan tele.Update, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-updates:
		}
	}
}
