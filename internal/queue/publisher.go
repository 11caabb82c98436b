package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/table-reservation/internal/service"
)

// Publisher implements service.Notifier on top of a RabbitMQ topic
// exchange.  It keeps one connection and channel open and re-dials lazily
// on the next publish after either is closed.
type Publisher struct {
    url      string
    exchange string
    log      *zap.Logger

    mu   sync.Mutex
    conn *amqp.Connection
    ch   *amqp.Channel
}

var _ service.Notifier = (*Publisher)(nil)

// NewPublisher dials the broker and declares the durable topic exchange.
func NewPublisher(url, exchange string, log *zap.Logger) (*Publisher, error) {
    if log == nil {
        log = zap.NewNop()
    }
    p := &Publisher{url: url, exchange: exchange, log: log}
    p.mu.Lock()
    defer p.mu.Unlock()
    if err := p.connectLocked(); err != nil {
        return nil, err
    }
    return p, nil
}

func (p *Publisher) connectLocked() error {
    conn, err := amqp.Dial(p.url)
    if err != nil {
        return fmt.Errorf("dial rabbitmq: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return fmt.Errorf("open channel: %w", err)
    }
    if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
        _ = ch.Close()
        _ = conn.Close()
        return fmt.Errorf("declare exchange: %w", err)
    }
    p.conn, p.ch = conn, ch
    return nil
}

func (p *Publisher) NotifyBookingCreated(ctx context.Context, email string, n service.BookingNotice) error {
    return p.publish(ctx, RoutingBookingCreated, createdEvent(email, n))
}

func (p *Publisher) NotifyBookingCancelled(ctx context.Context, email string, n service.BookingNotice) error {
    return p.publish(ctx, RoutingBookingCancelled, cancelledEvent(email, n))
}

func (p *Publisher) publish(ctx context.Context, key string, v any) error {
    body, err := json.Marshal(v)
    if err != nil {
        return fmt.Errorf("marshal %s: %w", key, err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    if p.ch == nil || p.ch.IsClosed() || p.conn == nil || p.conn.IsClosed() {
        p.closeLocked()
        if err := p.connectLocked(); err != nil {
            return err
        }
        p.log.Info("rabbitmq publisher reconnected", zap.String("exchange", p.exchange))
    }

    msg := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    uuid.NewString(),
        Timestamp:    time.Now().UTC(),
        Type:         key,
        Body:         body,
    }
    if err := p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg); err != nil {
        // force a fresh channel on the next call
        p.closeLocked()
        return fmt.Errorf("publish %s: %w", key, err)
    }
    return nil
}

func (p *Publisher) closeLocked() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.closeLocked()
    return nil
}

// NopNotifier discards notices.  The API falls back to it when the broker
// is unreachable at startup so that reservations never depend on it.
type NopNotifier struct{}

func (NopNotifier) NotifyBookingCreated(context.Context, string, service.BookingNotice) error {
    return nil
}

func (NopNotifier) NotifyBookingCancelled(context.Context, string, service.BookingNotice) error {
    return nil
}
