package queue

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/cenkalti/backoff/v5"
    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// ConsumerConfig names the broker objects the consumer declares.
type ConsumerConfig struct {
    URL      string
    Exchange string
    Queue    string
    Prefetch int
}

// bindingKey matches every booking event on the exchange.
const bindingKey = "booking.*"

// Consumer reads booking events from a durable queue bound to the
// reservations exchange and forwards each rendered message to a Mailer.
type Consumer struct {
    cfg    ConsumerConfig
    mailer Mailer
    log    *zap.Logger
}

func NewConsumer(cfg ConsumerConfig, mailer Mailer, log *zap.Logger) *Consumer {
    if cfg.Prefetch <= 0 {
        cfg.Prefetch = 50
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &Consumer{cfg: cfg, mailer: mailer, log: log}
}

// Run dials the broker and consumes until ctx is cancelled.  Lost
// connections are re-dialled with exponential backoff; Run only returns
// once ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
    b := backoff.NewExponentialBackOff()
    b.InitialInterval = time.Second
    b.MaxInterval = 30 * time.Second

    for {
        err := c.session(ctx, b)
        if ctx.Err() != nil {
            return nil
        }
        wait := b.NextBackOff()
        c.log.Warn("notification consumer disconnected, retrying",
            zap.Error(err), zap.Duration("backoff", wait))
        select {
        case <-ctx.Done():
            return nil
        case <-time.After(wait):
        }
    }
}

// session runs one connection's lifetime.  The backoff is reset once the
// queue is ready so a long healthy session starts over from the minimum.
func (c *Consumer) session(ctx context.Context, b *backoff.ExponentialBackOff) error {
    conn, err := amqp.Dial(c.cfg.URL)
    if err != nil {
        return fmt.Errorf("dial rabbitmq: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("open channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
        return fmt.Errorf("declare exchange: %w", err)
    }
    q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("declare queue: %w", err)
    }
    if err := ch.QueueBind(q.Name, bindingKey, c.cfg.Exchange, false, nil); err != nil {
        return fmt.Errorf("bind %s: %w", bindingKey, err)
    }
    if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
        c.log.Warn("set qos failed", zap.Error(err))
    }

    msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("consume: %w", err)
    }
    b.Reset()
    c.log.Info("notification consumer ready", zap.String("queue", q.Name), zap.String("exchange", c.cfg.Exchange))

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            c.handle(ctx, d)
        }
    }
}

// acker is the part of amqp.Delivery that handle needs.
type acker interface {
    Ack(multiple bool) error
    Nack(multiple, requeue bool) error
}

type delivery struct {
    acker
    routingKey string
    messageID  string
    body       []byte
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
    c.process(ctx, delivery{acker: d, routingKey: d.RoutingKey, messageID: d.MessageId, body: d.Body})
}

func (c *Consumer) process(ctx context.Context, d delivery) {
    msg, err := RenderMessage(d.routingKey, d.body)
    if err == nil {
        err = c.mailer.Send(ctx, msg)
    }
    if err != nil {
        c.log.Error("notification dropped",
            zap.String("routing_key", d.routingKey),
            zap.String("message_id", d.messageID),
            zap.Error(err))
        // reject without requeue so a poison message cannot loop
        _ = d.Nack(false, false)
        return
    }
    _ = d.Ack(false)
}
