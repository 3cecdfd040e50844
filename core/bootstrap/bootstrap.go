// Package bootstrap turns a loaded configuration into a running application graph.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pitarabot/core/buildinfo"
	"github.com/m3rciful/pitarabot/core/config"
	"github.com/m3rciful/pitarabot/core/conversation"
	"github.com/m3rciful/pitarabot/core/database"
	"github.com/m3rciful/pitarabot/core/i18n"
	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/metrics"
	"github.com/m3rciful/pitarabot/core/query"
	"github.com/m3rciful/pitarabot/core/sentry"
	"github.com/m3rciful/pitarabot/core/server"
	"github.com/m3rciful/pitarabot/core/session"
	"github.com/m3rciful/pitarabot/core/telegram"
	"github.com/m3rciful/pitarabot/core/telegram/dispatch"
	"github.com/m3rciful/pitarabot/core/telemetry"
)

// Options control the bootstrap pipeline. Nil hooks take the real implementations.
type Options struct {
	Config *config.Config

	LoggerInit func(logger.Config) error
	Connect    func(context.Context, database.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, database.Config) error
	NewBot     func(tele.Settings) (*tele.Bot, error)
	// Store replaces the configured session backend.
	Store session.Store
	// Sink replaces the configured telemetry sink.
	Sink telemetry.Sink
}

// App is the wired application.
type App struct {
	Config     *config.Config
	Bot        *tele.Bot
	Client     *telegram.BotClient
	Registry   *telegram.Registry
	Dispatcher *dispatch.Dispatcher
	Server     *server.Server
	Telemetry  *telemetry.Dispatcher
	Handlers   *conversation.Handlers
	Metrics    *metrics.Metrics
	Prometheus *prometheus.Registry

	closers []func() error
}

// Run initializes logging, Sentry, storage, the query orchestrator,
// telemetry, the bot client and the HTTP server.
func Run(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg.Logging); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}
	start := time.Now()

	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     buildinfo.Version,
		SampleRate:  cfg.Sentry.SampleRate,
	}); err != nil {
		logger.Warn(ctx, logger.CompApp, "sentry.init",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}

	app := &App{Config: cfg, Prometheus: prometheus.NewRegistry()}
	app.Prometheus.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = metrics.New(app.Prometheus)

	catalog, err := i18n.Load(cfg.Bot.MessagesFile, cfg.Bot.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if err := catalog.Validate(cfg.Bot.SupportedLanguages, cfg.Bot.Personas); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	store := opts.Store
	if store == nil {
		store, err = app.openStore(ctx, opts)
		if err != nil {
			app.Close()
			return nil, err
		}
	}
	sessions := session.New(store, session.Options{
		Languages:       cfg.Bot.SupportedLanguages,
		DefaultLanguage: cfg.Bot.DefaultLanguage,
		Personas:        cfg.Bot.Personas,
		DefaultPersona:  cfg.Bot.DefaultPersona,
	})

	orchestrator := query.New(query.Options{
		StoryBaseURL:    cfg.Query.StoryBaseURL,
		ActivityBaseURL: cfg.Query.ActivityBaseURL,
		PrimaryPersona:  cfg.Bot.PrimaryPersona,
		PoolSize:        cfg.Query.PoolSize,
		PoolTimeout:     cfg.Query.PoolTimeout(),
		ConnectTimeout:  cfg.Query.ConnectTimeout(),
		ReadTimeout:     cfg.Query.ReadTimeout(),
		WriteTimeout:    cfg.Query.WriteTimeout(),
		AudioMaxBytes:   cfg.Query.AudioMaxBytes,
		Metrics:         app.Metrics,
	}, sessions)

	sink := opts.Sink
	if sink == nil {
		sink, err = openSink(cfg.Telemetry)
		if err != nil {
			app.Close()
			return nil, err
		}
	}
	app.Telemetry = telemetry.NewDispatcher(sink, telemetry.Options{
		QueueSize:  cfg.Telemetry.QueueSize,
		Workers:    cfg.Telemetry.Workers,
		MaxRetries: cfg.Telemetry.MaxRetries,
		Producer: telemetry.Producer{
			ID:  cfg.Telemetry.ProducerID,
			PID: cfg.Telegram.BotName,
			Ver: buildinfo.Version,
		},
		Metrics: app.Metrics,
	})
	app.closers = append(app.closers, app.Telemetry.Close)

	app.Bot, err = NewBot(cfg, opts.NewBot)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Client = telegram.NewBotClient(app.Bot, app.Metrics)

	app.Handlers, err = conversation.New(conversation.Deps{
		Client:   app.Client,
		Sessions: sessions,
		Catalog:  catalog,
		Query:    orchestrator,
		Emitter:  app.Telemetry,
	}, conversation.Options{
		Title:     cfg.Bot.Title,
		Languages: cfg.Bot.SupportedLanguages,
		Personas:  cfg.Bot.Personas,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	app.Registry = telegram.NewRegistry()
	if err := app.Handlers.Register(app.Registry); err != nil {
		app.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	app.Dispatcher = dispatch.New(app.Registry, dispatch.Options{
		QueueSize:   cfg.Bot.QueueSize,
		Concurrency: cfg.Bot.ConcurrentUpdates,
		Middlewares: telegram.DefaultMiddlewares(app.Metrics),
		Metrics:     app.Metrics,
		Answerer:    app.Client,
	})

	app.Server = server.New(server.Config{
		Listen:          cfg.Server.Listen,
		Port:            cfg.Server.Port,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,
		EnqueueTimeout:  time.Duration(cfg.Server.EnqueueTimeoutMS) * time.Millisecond,
	}, app.Dispatcher, app.Prometheus, app.Metrics)

	logger.Info(ctx, logger.CompApp, "bootstrap",
		slog.String("status", "ok"),
		slog.String("session_backend", cfg.Session.Backend),
		slog.String("telemetry_backend", cfg.Telemetry.Backend),
		slog.Int("languages", len(cfg.Bot.SupportedLanguages)),
		slog.Int("personas", len(cfg.Bot.Personas)),
		slog.Duration("duration", logger.Took(start)),
	)
	return app, nil
}

func (a *App) openStore(ctx context.Context, opts Options) (session.Store, error) {
	cfg := a.Config.Session
	switch cfg.Backend {
	case config.SessionBackendRedis:
		rs, err := session.NewRedisStore(ctx, session.RedisOptions{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Index,
			PoolSize: a.Config.Query.PoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("bootstrap: session store: %w", err)
		}
		a.closers = append(a.closers, rs.Close)
		return rs, nil
	case config.SessionBackendPostgres:
		connect := opts.Connect
		if connect == nil {
			connect = database.Connect
		}
		migrate := opts.Migrate
		if migrate == nil {
			migrate = database.RunMigrations
		}
		if err := migrate(ctx, cfg.Postgres); err != nil {
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		db, err := connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		ps := session.NewPostgresStore(db)
		a.closers = append(a.closers, ps.Close)
		return ps, nil
	default:
		return session.NewMemoryStore(), nil
	}
}

func openSink(cfg config.TelemetryConfig) (telemetry.Sink, error) {
	if cfg.Backend != config.TelemetryBackendAMQP {
		return telemetry.LogSink{}, nil
	}
	sink, err := telemetry.NewAMQPSink(cfg.AMQPURL, cfg.Exchange, cfg.RoutingKey)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: telemetry sink: %w", err)
	}
	return sink, nil
}

// NewBot builds the telebot instance with the tuned API client.
func NewBot(cfg *config.Config, newBot func(tele.Settings) (*tele.Bot, error)) (*tele.Bot, error) {
	if newBot == nil {
		newBot = tele.NewBot
	}
	bot, err := newBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Client: telegram.BuildHTTPClient(telegram.HTTPOptions{}),
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// RunOptions describes how the bot runs in the configured mode.
func (a *App) RunOptions() telegram.RunOptions {
	cfg := a.Config.Telegram
	return telegram.RunOptions{
		Bot:                a.Bot,
		Mode:               cfg.RunMode,
		WebhookBaseURL:     cfg.WebhookBaseURL,
		DropPendingUpdates: cfg.DropPendingUpdates,
		LongPollTimeout:    time.Duration(cfg.LongPollTimeoutSeconds) * time.Second,
		Ingest:             a.Dispatcher,
		Serve:              a.Server.Run,
		OnStart: func(ctx context.Context) error {
			a.Dispatcher.Start(ctx)
			if a.Bot != nil {
				telegram.InitBotCommands(ctx, a.Bot, a.Registry)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return a.Close()
		},
	}
}

// Close drains the dispatcher, then releases telemetry and storage.
func (a *App) Close() error {
	var errs []error
	if a.Dispatcher != nil {
		errs = append(errs, a.Dispatcher.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	sentry.Flush(2 * time.Second)
	return errors.Join(errs...)
}
