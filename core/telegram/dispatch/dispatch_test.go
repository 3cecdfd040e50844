package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/metrics"
	"github.com/m3rciful/pitarabot/core/telegram"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

func textUpdate(id int, text string) tele.Update {
	return tele.Update{
		ID: id,
		Message: &tele.Message{
			ID:     id,
			Text:   text,
			Chat:   &tele.Chat{ID: 42},
			Sender: &tele.User{ID: 7},
		},
	}
}

func callbackUpdate(id int, data string) tele.Update {
	return tele.Update{
		ID: id,
		Callback: &tele.Callback{
			ID:      "cb-1",
			Data:    data,
			Sender:  &tele.User{ID: 7},
			Message: &tele.Message{ID: 5, Chat: &tele.Chat{ID: 42}},
		},
	}
}

type answerRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (a *answerRecorder) AnswerCallback(_ context.Context, id, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, id)
	return nil
}

func TestDispatchRoutesByKind(t *testing.T) {
	reg := telegram.NewRegistry()
	var got update.Kind
	require.NoError(t, reg.Handle(update.KindStart, "start", func(_ context.Context, ev update.Event) error {
		got = ev.Kind
		return nil
	}))
	m := metrics.New(prometheus.NewRegistry())
	d := New(reg, Options{Metrics: m, Middlewares: telegram.DefaultMiddlewares(m)})

	d.Dispatch(context.Background(), textUpdate(1, "/start"))

	assert.Equal(t, update.KindStart, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("start", "ok")))
}

func TestDispatchHandlerErrorIsCounted(t *testing.T) {
	reg := telegram.NewRegistry()
	require.NoError(t, reg.Handle(update.KindQuery, "query", func(context.Context, update.Event) error {
		return errors.New("upstream down")
	}))
	m := metrics.New(prometheus.NewRegistry())
	d := New(reg, Options{Metrics: m})

	d.Dispatch(context.Background(), textUpdate(1, "hello"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("query", "fail")))
}

func TestDispatchPanicIsContained(t *testing.T) {
	reg := telegram.NewRegistry()
	require.NoError(t, reg.Handle(update.KindHelp, "help", func(context.Context, update.Event) error {
		panic("kaboom")
	}))
	d := New(reg, Options{Middlewares: telegram.DefaultMiddlewares(nil)})
	assert.NotPanics(t, func() { d.Dispatch(context.Background(), textUpdate(1, "/help")) })
}

func TestDispatchUnknownCallbackIsAnswered(t *testing.T) {
	ans := &answerRecorder{}
	m := metrics.New(prometheus.NewRegistry())
	d := New(telegram.NewRegistry(), Options{Answerer: ans, Metrics: m})

	d.Dispatch(context.Background(), callbackUpdate(3, "something_else"))

	assert.Equal(t, []string{"cb-1"}, ans.ids)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("unknown", "skip")))
}

func TestDispatchUnroutedKindIsSkipped(t *testing.T) {
	ans := &answerRecorder{}
	d := New(telegram.NewRegistry(), Options{Answerer: ans})
	d.Dispatch(context.Background(), textUpdate(1, "/start"))
	assert.Empty(t, ans.ids)
}

func TestEnqueueBlocksUntilContextEnds(t *testing.T) {
	d := New(telegram.NewRegistry(), Options{QueueSize: 1})
	require.NoError(t, d.Enqueue(context.Background(), textUpdate(1, "a")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Enqueue(ctx, textUpdate(2, "b"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, d.Close())
}

func TestEnqueueAfterClose(t *testing.T) {
	d := New(telegram.NewRegistry(), Options{})
	require.NoError(t, d.Close())
	assert.ErrorIs(t, d.Enqueue(context.Background(), textUpdate(1, "a")), ErrClosed)
	require.NoError(t, d.Close())
}

func TestCloseDrainsQueuedUpdates(t *testing.T) {
	reg := telegram.NewRegistry()
	var handled atomic.Int32
	require.NoError(t, reg.Handle(update.KindQuery, "query", func(context.Context, update.Event) error {
		handled.Add(1)
		return nil
	}))
	d := New(reg, Options{QueueSize: 8})
	for i := 1; i <= 5; i++ {
		require.NoError(t, d.Enqueue(context.Background(), textUpdate(i, "q")))
	}
	d.Start(context.Background())
	require.NoError(t, d.Close())
	assert.Equal(t, int32(5), handled.Load())
}

func TestConcurrencyIsBounded(t *testing.T) {
	reg := telegram.NewRegistry()
	var inflight, peak, calls atomic.Int32
	release := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(2)
	require.NoError(t, reg.Handle(update.KindQuery, "query", func(context.Context, update.Event) error {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if calls.Add(1) <= 2 {
			entered.Done()
		}
		<-release
		inflight.Add(-1)
		return nil
	}))

	d := New(reg, Options{Concurrency: 2, QueueSize: 16})
	d.Start(context.Background())
	for i := 1; i <= 6; i++ {
		require.NoError(t, d.Enqueue(context.Background(), textUpdate(i, "q")))
	}
	entered.Wait()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), peak.Load())

	close(release)
	require.NoError(t, d.Close())
	assert.Equal(t, int32(2), peak.Load())
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "http 502" }

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "", deriveErrorCode(nil))
	assert.Equal(t, "HTTP_502", deriveErrorCode(codedErr{}))
	assert.Equal(t, "HTTP_502", deriveErrorCode(errors.Join(codedErr{})))
	assert.Equal(t, "start", normalizeHandlerName(" /Start "))
	assert.Equal(t, "unknown", normalizeHandlerName(""))
}

// captureLogs routes the package logger into a buffer for the test duration.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logger.L
	logger.L = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() { logger.L = prev })
	return &buf
}

func TestDispatchRedactsTokenFromTransportErrors(t *testing.T) {
	const token = "123456:SECRETSECRETSECRET"
	bot, err := tele.NewBot(tele.Settings{
		URL:     "http://127.0.0.1:1",
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: 2 * time.Second},
	})
	require.NoError(t, err)
	client := telegram.NewBotClient(bot, nil)

	reg := telegram.NewRegistry()
	require.NoError(t, reg.Handle(update.KindQuery, "query", func(ctx context.Context, ev update.Event) error {
		_, err := client.SendText(ctx, ev.ChatID, "answer", telegram.SendOptions{})
		return err
	}))
	buf := captureLogs(t)
	d := New(reg, Options{Middlewares: telegram.DefaultMiddlewares(nil)})

	d.Dispatch(context.Background(), textUpdate(1, "hello"))

	out := buf.String()
	assert.Contains(t, out, "handler.handled")
	assert.Contains(t, out, "bot<redacted>")
	assert.NotContains(t, out, "SECRETSECRETSECRET")
}

func TestDispatchLogsHandlerErrorOnce(t *testing.T) {
	reg := telegram.NewRegistry()
	require.NoError(t, reg.Handle(update.KindQuery, "query", func(context.Context, update.Event) error {
		return errors.New("upstream down")
	}))
	buf := captureLogs(t)
	d := New(reg, Options{})

	d.Dispatch(context.Background(), textUpdate(1, "hello"))

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("upstream down")))
}

func TestEnqueueRacingCloseNeverStrandsUpdates(t *testing.T) {
	for round := 0; round < 200; round++ {
		reg := telegram.NewRegistry()
		var handled atomic.Int32
		require.NoError(t, reg.Handle(update.KindQuery, "query", func(context.Context, update.Event) error {
			handled.Add(1)
			return nil
		}))
		d := New(reg, Options{QueueSize: 64})
		d.Start(context.Background())

		var accepted atomic.Int32
		var senders sync.WaitGroup
		for i := 0; i < 8; i++ {
			senders.Add(1)
			go func(i int) {
				defer senders.Done()
				if d.Enqueue(context.Background(), textUpdate(i+1, "q")) == nil {
					accepted.Add(1)
				}
			}(i)
		}
		require.NoError(t, d.Close())
		senders.Wait()

		require.Equal(t, accepted.Load(), handled.Load(), "round %d", round)
	}
}
