package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/pitarabot/core/database"
	"github.com/m3rciful/pitarabot/core/logger"
)

const (
	// RunModeWebhook receives updates on POST /telegram.
	RunModeWebhook = "webhook"
	// RunModeLongpoll pulls updates with getUpdates.
	RunModeLongpoll = "longpoll"
)

const (
	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
)

const (
	TelemetryBackendLog  = "log"
	TelemetryBackendAMQP = "amqp"
)

// TelegramConfig holds Bot API credentials and the update delivery mode.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"TELEGRAM_BOT_TOKEN"`
	BotName string `yaml:"bot_name" envconfig:"TELEGRAM_BOT_NAME"`
	// WebhookBaseURL is the public base; the webhook is registered at <base>/telegram.
	WebhookBaseURL string `yaml:"webhook_base_url" envconfig:"TELEGRAM_BASE_URL"`
	RunMode        string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int  `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	DropPendingUpdates     bool `yaml:"drop_pending_updates" envconfig:"TELEGRAM_DROP_PENDING_UPDATES"`
}

// ServerConfig specifies the HTTP listener serving the webhook, healthcheck and metrics.
type ServerConfig struct {
	Listen                 string `yaml:"listen" envconfig:"LISTEN"`
	Port                   int    `yaml:"port" envconfig:"PORT"`
	MaxBodyBytes           int64  `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds" envconfig:"SHUTDOWN_TIMEOUT_SECONDS"`
	// EnqueueTimeoutMS caps how long a webhook request waits on a full queue.
	EnqueueTimeoutMS int `yaml:"enqueue_timeout_ms" envconfig:"ENQUEUE_TIMEOUT_MS"`
}

// BotConfig describes the conversation: languages, personas and dispatch limits.
type BotConfig struct {
	Title              string   `yaml:"title" envconfig:"BOT_TITLE"`
	SupportedLanguages []string `yaml:"supported_languages" envconfig:"SUPPORTED_LANGUAGES"`
	DefaultLanguage    string   `yaml:"default_language" envconfig:"DEFAULT_LANGUAGE"`
	Personas           []string `yaml:"personas" envconfig:"ENABLED_BOTS"`
	DefaultPersona     string   `yaml:"default_persona" envconfig:"DEFAULT_BOT"`
	// PrimaryPersona is routed to the story endpoint; every other persona goes to the activity endpoint.
	PrimaryPersona    string `yaml:"primary_persona" envconfig:"PRIMARY_BOT"`
	ConcurrentUpdates int    `yaml:"concurrent_updates" envconfig:"CONCURRENT_UPDATES"`
	QueueSize         int    `yaml:"queue_size" envconfig:"UPDATE_QUEUE_SIZE"`
	// MessagesFile optionally replaces the embedded message catalog.
	MessagesFile string `yaml:"messages_file" envconfig:"MESSAGES_FILE"`
}

// QueryConfig configures the outbound question-answering API client.
type QueryConfig struct {
	StoryBaseURL          string `yaml:"story_base_url" envconfig:"STORY_API_BASE_URL"`
	ActivityBaseURL       string `yaml:"activity_base_url" envconfig:"ACTIVITY_API_BASE_URL"`
	PoolSize              int    `yaml:"pool_size" envconfig:"CONNECTION_POOL_SIZE"`
	PoolTimeoutSeconds    int    `yaml:"pool_timeout_seconds" envconfig:"POOL_TIMEOUT"`
	ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds" envconfig:"CONNECT_TIMEOUT"`
	ReadTimeoutSeconds    int    `yaml:"read_timeout_seconds" envconfig:"READ_TIMEOUT"`
	WriteTimeoutSeconds   int    `yaml:"write_timeout_seconds" envconfig:"WRITE_TIMEOUT"`
	AudioMaxBytes         int64  `yaml:"audio_max_bytes" envconfig:"AUDIO_MAX_BYTES"`
}

// PoolTimeout returns the pool wait budget.
func (q QueryConfig) PoolTimeout() time.Duration {
	return time.Duration(q.PoolTimeoutSeconds) * time.Second
}

// ConnectTimeout returns the dial timeout.
func (q QueryConfig) ConnectTimeout() time.Duration {
	return time.Duration(q.ConnectTimeoutSeconds) * time.Second
}

// ReadTimeout returns the response header timeout.
func (q QueryConfig) ReadTimeout() time.Duration {
	return time.Duration(q.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the request write budget.
func (q QueryConfig) WriteTimeout() time.Duration {
	return time.Duration(q.WriteTimeoutSeconds) * time.Second
}

// RedisConfig points at the Redis database holding session keys.
type RedisConfig struct {
	Host     string `yaml:"host" envconfig:"REDIS_HOST"`
	Port     int    `yaml:"port" envconfig:"REDIS_PORT"`
	Index    int    `yaml:"index" envconfig:"REDIS_INDEX"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// SessionConfig selects the session store backend.
type SessionConfig struct {
	Backend  string          `yaml:"backend" envconfig:"SESSION_BACKEND"`
	Redis    RedisConfig     `yaml:"redis"`
	Postgres database.Config `yaml:"postgres"`
}

// TelemetryConfig selects where feedback interaction events are delivered.
type TelemetryConfig struct {
	Backend    string `yaml:"backend" envconfig:"TELEMETRY_BACKEND"`
	AMQPURL    string `yaml:"amqp_url" envconfig:"TELEMETRY_AMQP_URL"`
	Exchange   string `yaml:"exchange" envconfig:"TELEMETRY_EXCHANGE"`
	RoutingKey string `yaml:"routing_key" envconfig:"TELEMETRY_ROUTING_KEY"`
	ProducerID string `yaml:"producer_id" envconfig:"TELEMETRY_PRODUCER_ID"`
	QueueSize  int    `yaml:"queue_size" envconfig:"TELEMETRY_QUEUE_SIZE"`
	Workers    int    `yaml:"workers" envconfig:"TELEMETRY_WORKERS"`
	MaxRetries int    `yaml:"max_retries" envconfig:"TELEMETRY_MAX_RETRIES"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string  `yaml:"dsn" envconfig:"SENTRY_DSN"`
	Environment string  `yaml:"environment" envconfig:"SENTRY_ENVIRONMENT"`
	SampleRate  float64 `yaml:"sample_rate" envconfig:"SENTRY_SAMPLE_RATE"`
}

// Config aggregates every configuration section of the bot.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Server    ServerConfig    `yaml:"server"`
	Bot       BotConfig       `yaml:"bot"`
	Query     QueryConfig     `yaml:"query"`
	Session   SessionConfig   `yaml:"session"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sentry    SentryConfig    `yaml:"sentry"`
	Logging   logger.Config   `yaml:"logging"`
}

// LoadDotEnv loads .env style files into the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load reads the optional YAML file at path, overlays environment variables and normalizes the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required")
	}
	for _, step := range []func(*Config) error{
		normalizeTelegram,
		normalizeServer,
		normalizeBot,
		normalizeQuery,
		normalizeSession,
		normalizeTelemetry,
	} {
		if err := step(cfg); err != nil {
			return err
		}
	}
	return nil
}

func normalizeTelegram(cfg *Config) error {
	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	switch rm {
	case "":
		rm = RunModeWebhook
	case "polling": // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		base := strings.TrimRight(strings.TrimSpace(cfg.Telegram.WebhookBaseURL), "/")
		if base == "" {
			return fmt.Errorf("telegram.webhook_base_url is required when telegram.run_mode is 'webhook'")
		}
		cfg.Telegram.WebhookBaseURL = base
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

func normalizeServer(cfg *Config) error {
	s := &cfg.Server
	if s.Listen == "" {
		s.Listen = "0.0.0.0"
	}
	if s.Port == 0 {
		s.Port = 8000
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", s.Port)
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = 1 << 20
	}
	if s.ShutdownTimeoutSeconds <= 0 {
		s.ShutdownTimeoutSeconds = 10
	}
	if s.EnqueueTimeoutMS <= 0 {
		s.EnqueueTimeoutMS = 1000
	}
	return nil
}

func normalizeBot(cfg *Config) error {
	b := &cfg.Bot
	if strings.TrimSpace(b.Title) == "" {
		b.Title = "e-Jaadui Pitara"
	}
	b.SupportedLanguages = cleanList(b.SupportedLanguages)
	b.DefaultLanguage = strings.ToLower(strings.TrimSpace(b.DefaultLanguage))
	if b.DefaultLanguage == "" {
		b.DefaultLanguage = "en"
	}
	if len(b.SupportedLanguages) == 0 {
		b.SupportedLanguages = []string{b.DefaultLanguage}
	}
	if !slices.Contains(b.SupportedLanguages, b.DefaultLanguage) {
		return fmt.Errorf("bot.default_language %q must be one of bot.supported_languages %v", b.DefaultLanguage, b.SupportedLanguages)
	}

	b.Personas = cleanList(b.Personas)
	if len(b.Personas) == 0 {
		b.Personas = []string{"story", "teacher", "parent"}
	}
	b.DefaultPersona = strings.ToLower(strings.TrimSpace(b.DefaultPersona))
	if b.DefaultPersona == "" {
		b.DefaultPersona = b.Personas[0]
	}
	if !slices.Contains(b.Personas, b.DefaultPersona) {
		return fmt.Errorf("bot.default_persona %q must be one of bot.personas %v", b.DefaultPersona, b.Personas)
	}
	b.PrimaryPersona = strings.ToLower(strings.TrimSpace(b.PrimaryPersona))
	if b.PrimaryPersona == "" {
		b.PrimaryPersona = "story"
	}

	if b.ConcurrentUpdates <= 0 {
		b.ConcurrentUpdates = 256
	}
	if b.QueueSize <= 0 {
		b.QueueSize = 1024
	}
	return nil
}

func normalizeQuery(cfg *Config) error {
	q := &cfg.Query
	q.StoryBaseURL = strings.TrimRight(strings.TrimSpace(q.StoryBaseURL), "/")
	q.ActivityBaseURL = strings.TrimRight(strings.TrimSpace(q.ActivityBaseURL), "/")

	for _, p := range cfg.Bot.Personas {
		if p == cfg.Bot.PrimaryPersona && q.StoryBaseURL == "" {
			return fmt.Errorf("query.story_base_url is required for persona %q", p)
		}
		if p != cfg.Bot.PrimaryPersona && q.ActivityBaseURL == "" {
			return fmt.Errorf("query.activity_base_url is required for persona %q", p)
		}
	}

	defaults := []struct {
		field *int
		value int
	}{
		{&q.PoolSize, 1024},
		{&q.PoolTimeoutSeconds, 30},
		{&q.ConnectTimeoutSeconds, 300},
		{&q.ReadTimeoutSeconds, 15},
		{&q.WriteTimeoutSeconds, 10},
	}
	for _, d := range defaults {
		if *d.field <= 0 {
			*d.field = d.value
		}
	}
	if q.AudioMaxBytes <= 0 {
		q.AudioMaxBytes = 20 << 20
	}
	return nil
}

func normalizeSession(cfg *Config) error {
	s := &cfg.Session
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	switch s.Backend {
	case "":
		s.Backend = SessionBackendMemory
	case SessionBackendMemory:
	case SessionBackendRedis:
		if s.Redis.Host == "" {
			s.Redis.Host = "localhost"
		}
		if s.Redis.Port == 0 {
			s.Redis.Port = 6379
		}
		if s.Redis.Index < 0 {
			return fmt.Errorf("session.redis.index must be >= 0")
		}
	case SessionBackendPostgres:
		s.Postgres.Normalize()
		if err := s.Postgres.Validate(); err != nil {
			return fmt.Errorf("session.postgres: %w", err)
		}
	default:
		return fmt.Errorf("invalid session.backend %q; allowed: memory, redis, postgres", s.Backend)
	}
	return nil
}

func normalizeTelemetry(cfg *Config) error {
	t := &cfg.Telemetry
	t.Backend = strings.ToLower(strings.TrimSpace(t.Backend))
	switch t.Backend {
	case "":
		t.Backend = TelemetryBackendLog
	case TelemetryBackendLog:
	case TelemetryBackendAMQP:
		if strings.TrimSpace(t.AMQPURL) == "" {
			return fmt.Errorf("telemetry.amqp_url is required when telemetry.backend is 'amqp'")
		}
		if t.Exchange == "" {
			t.Exchange = "telemetry"
		}
		if t.RoutingKey == "" {
			t.RoutingKey = "telemetry.interact"
		}
	default:
		return fmt.Errorf("invalid telemetry.backend %q; allowed: log, amqp", t.Backend)
	}
	if t.ProducerID == "" {
		t.ProducerID = "telegram-bot"
	}
	return nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
