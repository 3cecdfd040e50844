package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pitarabot/core/config"
	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/session"
	"github.com/m3rciful/pitarabot/core/telemetry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Telegram: config.TelegramConfig{Token: "123:abc", WebhookBaseURL: "https://bot.example.org"},
		Bot:      config.BotConfig{SupportedLanguages: []string{"en", "hi"}},
		Query: config.QueryConfig{
			StoryBaseURL:    "http://story.local",
			ActivityBaseURL: "http://activity.local",
		},
	}
	require.NoError(t, config.Normalize(cfg))
	return cfg
}

func offlineBot(s tele.Settings) (*tele.Bot, error) {
	s.Offline = true
	return tele.NewBot(s)
}

func testOptions(t *testing.T) Options {
	return Options{
		Config:     testConfig(t),
		LoggerInit: func(logger.Config) error { return nil },
		NewBot:     offlineBot,
		Store:      session.NewMemoryStore(),
		Sink:       telemetry.LogSink{},
	}
}

func TestRunWiresEveryRoute(t *testing.T) {
	app, err := Run(context.Background(), testOptions(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	assert.Empty(t, app.Registry.Missing())
	assert.Len(t, app.Registry.ListCommands(true), 4)

	rec := httptest.NewRecorder()
	app.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	opts := app.RunOptions()
	assert.Equal(t, config.RunModeWebhook, opts.Mode)
	assert.Equal(t, "https://bot.example.org", opts.WebhookBaseURL)
	assert.NotNil(t, opts.Serve)
}

func TestRunRejectsCatalogGaps(t *testing.T) {
	opts := testOptions(t)
	opts.Config.Bot.Personas = append(opts.Config.Bot.Personas, "wizard")
	_, err := Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestRunNilConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)
}

func TestCloseIsRepeatable(t *testing.T) {
	app, err := Run(context.Background(), testOptions(t))
	require.NoError(t, err)
	require.NoError(t, app.Close())
	require.NoError(t, app.Close())
}
