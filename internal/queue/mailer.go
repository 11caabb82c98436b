package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "os"
    "path/filepath"
    "sync"

    "go.uber.org/zap"
)

// Message is a rendered notification ready to be sent to one recipient.
type Message struct {
    To      string
    Subject string
    Body    string
}

// Mailer delivers rendered messages.
type Mailer interface {
    Send(ctx context.Context, m Message) error
}

// RenderMessage turns a delivery body into the message for its routing
// key.  Unknown keys yield an error so the delivery is rejected.
func RenderMessage(routingKey string, body []byte) (Message, error) {
    switch routingKey {
    case RoutingBookingCreated:
        var ev BookingCreatedEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return Message{}, fmt.Errorf("unmarshal %s: %w", routingKey, err)
        }
        return Message{
            To:      ev.Email,
            Subject: fmt.Sprintf("Your table at %s is booked", ev.RestaurantName),
            Body: fmt.Sprintf("Hi %s,\n\nYour reservation #%d for %d guest(s) at %s (%s) is confirmed.\nBooked at %s.\n",
                greetingName(ev.UserName), ev.BookingID, ev.NumberOfGuests, ev.RestaurantName, ev.Location, ev.CreatedAt),
        }, nil

    case RoutingBookingCancelled:
        var ev BookingCancelledEvent
        if err := json.Unmarshal(body, &ev); err != nil {
            return Message{}, fmt.Errorf("unmarshal %s: %w", routingKey, err)
        }
        return Message{
            To:      ev.Email,
            Subject: fmt.Sprintf("Your reservation at %s was cancelled", ev.RestaurantName),
            Body: fmt.Sprintf("Hi %s,\n\nYour reservation #%d for %d guest(s) at %s (%s) was cancelled at %s.\n",
                greetingName(ev.UserName), ev.BookingID, ev.NumberOfGuests, ev.RestaurantName, ev.Location, ev.CancelledAt),
        }, nil
    }
    return Message{}, fmt.Errorf("unknown routing key %q", routingKey)
}

func greetingName(name string) string {
    if name == "" {
        return "there"
    }
    return name
}

// LogMailer appends one line per message to a file and logs it.  Outbound
// email is not implemented; this is the delivery sink of record.
type LogMailer struct {
    path string
    log  *zap.Logger
    mu   sync.Mutex
}

func NewLogMailer(path string, log *zap.Logger) *LogMailer {
    if log == nil {
        log = zap.NewNop()
    }
    return &LogMailer{path: path, log: log}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
    if msg.To == "" {
        return fmt.Errorf("message %q has no recipient", msg.Subject)
    }
    m.mu.Lock()
    defer m.mu.Unlock()

    if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
        return fmt.Errorf("mkdir: %w", err)
    }
    f, err := os.OpenFile(m.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open notification log: %w", err)
    }
    defer f.Close()

    line, err := json.Marshal(msg)
    if err != nil {
        return err
    }
    if _, err := f.Write(append(line, '\n')); err != nil {
        return fmt.Errorf("write notification log: %w", err)
    }
    m.log.Info("notification sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
    return nil
}
