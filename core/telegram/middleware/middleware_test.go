package middleware

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/metrics"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := Recover(func(context.Context, update.Event) error {
		panic("boom")
	})
	err := h(context.Background(), update.Event{Kind: update.KindQuery})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestContextAttachesMetadata(t *testing.T) {
	var seen context.Context
	h := Context(func(ctx context.Context, ev update.Event) error {
		seen = ctx
		CountSent(ctx, false)
		CountSent(ctx, true)
		return nil
	})
	require.NoError(t, h(context.Background(), update.Event{UpdateID: 10, ChatID: 42, UserID: 7}))

	assert.Equal(t, int64(42), logger.ChatIDFrom(seen))
	assert.Equal(t, int64(7), logger.UserIDFrom(seen))
	assert.Equal(t, 10, logger.UpdateIDFrom(seen))
	assert.NotEmpty(t, logger.RIDFrom(seen))

	msgs, kb := GetCounters(seen)
	assert.Equal(t, 2, msgs)
	assert.True(t, kb)
}

func TestCountersWithoutContextAreNoop(t *testing.T) {
	CountSent(context.Background(), true)
	msgs, kb := GetCounters(context.Background())
	assert.Zero(t, msgs)
	assert.False(t, kb)
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := Metrics(m)(func(context.Context, update.Event) error {
		assert.Equal(t, float64(1), testutil.ToFloat64(m.HandlersInflight))
		return nil
	})
	require.NoError(t, h(context.Background(), update.Event{Kind: update.KindHelp}))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HandlersInflight))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HandlerDurationSeconds))
}
