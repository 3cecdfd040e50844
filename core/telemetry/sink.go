package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/m3rciful/pitarabot/core/logger"
)

// Sink delivers one event.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// LogSink writes events as structured log lines.
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, ev Event) error {
	logger.Info(ctx, logger.CompTelemetry, "telemetry.event",
		slog.String("eid", ev.EID),
		slog.String("mid", ev.MID),
		slog.String("sid", ev.Context.SID),
		slog.String("subtype", ev.EData.Subtype),
		slog.String("persona", ev.EData.ID),
	)
	return nil
}

func (LogSink) Close() error { return nil }

// AMQPSink publishes events as persistent JSON messages to a topic exchange
// and waits for the broker confirm.
type AMQPSink struct {
	url        string
	exchange   string
	routingKey string

	mu   sync.Mutex
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// NewAMQPSink dials the broker, declares the exchange and enables confirms.
func NewAMQPSink(url, exchange, routingKey string) (*AMQPSink, error) {
	s := &AMQPSink{url: url, exchange: exchange, routingKey: routingKey}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connectLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AMQPSink) connectLocked() error {
	if s.conn == nil || s.conn.IsClosed() {
		conn, err := amqp091.Dial(s.url)
		if err != nil {
			return fmt.Errorf("amqp dial: %w", err)
		}
		s.conn = conn
		s.ch = nil
	}
	if s.ch != nil && !s.ch.IsClosed() {
		return nil
	}
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("amqp exchange declare %s: %w", s.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("amqp confirm mode: %w", err)
	}
	s.ch = ch
	return nil
}

// Publish sends ev and blocks until the broker acks or nacks it.
func (s *AMQPSink) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	if err := s.connectLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, s.exchange, s.routingKey, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     ev.MID,
			CorrelationId: ev.Context.SID,
			Type:          ev.EID,
			Timestamp:     time.UnixMilli(ev.ETS),
			AppId:         ev.Context.PData.ID,
			Body:          body,
		})
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("amqp confirm: %w", err)
	}
	if !acked {
		return errNacked
	}
	return nil
}

// Close closes the channel and the connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.ch != nil {
		errs = append(errs, s.ch.Close())
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
	}
	s.ch, s.conn = nil, nil
	return errors.Join(errs...)
}

var errNacked = errors.New("amqp: message nacked by broker")

// transientAMQP reports whether err is a broker-side condition worth retrying.
func transientAMQP(err error) bool {
	if errors.Is(err, errNacked) || errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	var amqpErr *amqp091.Error
	return errors.As(err, &amqpErr) && amqpErr.Recover
}
