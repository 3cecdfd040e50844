package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

var knownStatus = map[string]struct{}{
	"ok":        {},
	"fail":      {},
	"skip":      {},
	"retry":     {},
	"dropped":   {},
	"cancelled": {},
}

var knownOutcome = map[string]struct{}{
	"ok":        {},
	"fail":      {},
	"cancelled": {},
	"fallback":  {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeEnum(value string, known map[string]struct{}) (string, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", false
	}
	_, ok := known[value]
	return value, ok
}

// defaultKeyOrder pins the leading keys of every line; the rest follow alphabetically.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"chat_id",
	"user_id",
	"kind",
	"handler",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"lang",
	"persona",
	"endpoint",
	"format",
	"http_code",
	"mode",
	"listen",
	"public_url",
	"backend",
	"queue_depth",
	"inflight",
	"exchange",
	"routing_key",
	"host",
	"port",
	"db",
	"err",
	"err_code",
	"error_kind",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
}
