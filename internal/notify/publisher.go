package notify

import (
    "context"
    "encoding/json"
    "log"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange and queue names used on the broker.  Session
// notifications fan out through a topic exchange with one routing
// key per session; confirmed bookings go to a durable work queue.
const (
    NotifyExchange     = "waitroom.notify"
    BookingQueueName   = "booking.confirmed"
    sessionRoutePrefix = "session."
)

// Publisher is the abstract at-most-once publish channel consumed by
// the queue controller and the booking orchestrator.  Errors are
// returned so callers may log them, but no caller should abort its
// request flow because a notification failed.
type Publisher interface {
    QueueUpdate(ctx context.Context, sessionID string, position int64, canProceed bool) error
    BookingState(ctx context.Context, sessionID, bookingID, newState string) error
    Error(ctx context.Context, sessionID, reason string) error
    BookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error
}

// AMQPPublisher publishes over RabbitMQ.  The connection is dialed
// lazily and re-dialed after a failure; a lost broker therefore
// degrades notifications without touching request handling.
type AMQPPublisher struct {
    url string

    mu sync.Mutex
    ch *amqp.Channel
    cn *amqp.Connection
}

// NewAMQPPublisher returns a publisher for the given broker URL.
func NewAMQPPublisher(url string) *AMQPPublisher {
    return &AMQPPublisher{url: url}
}

// channel returns a ready channel, dialing and declaring the
// exchange and queue on first use or after a drop.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch != nil && !p.cn.IsClosed() {
        return p.ch, nil
    }
    conn, err := amqp.Dial(p.url)
    if err != nil {
        return nil, err
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, err
    }
    if err := ch.ExchangeDeclare(NotifyExchange, "topic", true, false, false, false, nil); err != nil {
        _ = conn.Close()
        return nil, err
    }
    if _, err := ch.QueueDeclare(BookingQueueName, true, false, false, false, nil); err != nil {
        _ = conn.Close()
        return nil, err
    }
    p.cn = conn
    p.ch = ch
    return ch, nil
}

func (p *AMQPPublisher) drop() {
    p.mu.Lock()
    if p.cn != nil {
        _ = p.cn.Close()
    }
    p.cn = nil
    p.ch = nil
    p.mu.Unlock()
}

// publish marshals the body and sends it through the exchange with
// the given routing key.  One failed attempt drops the cached
// connection so the next publish re-dials.
func (p *AMQPPublisher) publish(ctx context.Context, exchange, key string, body interface{}, persistent bool) error {
    ch, err := p.channel()
    if err != nil {
        log.Printf("notify: broker unavailable: %v", err)
        return err
    }
    data, err := json.Marshal(body)
    if err != nil {
        log.Printf("notify: marshal failed: %v", err)
        return err
    }
    mode := amqp.Transient
    if persistent {
        mode = amqp.Persistent
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: mode,
        Timestamp:    time.Now().UTC(),
        Body:         data,
    }
    if err := ch.PublishWithContext(ctx, exchange, key, false, false, pub); err != nil {
        log.Printf("notify: publish failed: %v", err)
        p.drop()
        return err
    }
    return nil
}

func (p *AMQPPublisher) toSession(ctx context.Context, n Notification) error {
    n.At = time.Now().UTC().Format(time.RFC3339)
    return p.publish(ctx, NotifyExchange, sessionRoutePrefix+n.SessionID, n, false)
}

// QueueUpdate tells the session its position changed.
func (p *AMQPPublisher) QueueUpdate(ctx context.Context, sessionID string, position int64, canProceed bool) error {
    return p.toSession(ctx, Notification{
        Type:       EventQueueUpdate,
        SessionID:  sessionID,
        Position:   position,
        CanProceed: canProceed,
    })
}

// BookingState tells the session its booking moved to a new state.
func (p *AMQPPublisher) BookingState(ctx context.Context, sessionID, bookingID, newState string) error {
    return p.toSession(ctx, Notification{
        Type:      EventBookingState,
        SessionID: sessionID,
        BookingID: bookingID,
        NewState:  newState,
    })
}

// Error pushes a failure reason to the session.
func (p *AMQPPublisher) Error(ctx context.Context, sessionID, reason string) error {
    return p.toSession(ctx, Notification{
        Type:      EventError,
        SessionID: sessionID,
        Reason:    reason,
    })
}

// BookingConfirmed publishes the durable confirmation event consumed
// by the booking log writer.  Messages are marked persistent so they
// survive broker restarts.
func (p *AMQPPublisher) BookingConfirmed(ctx context.Context, ev BookingConfirmedEvent) error {
    return p.publish(ctx, "", BookingQueueName, ev, true)
}

// NopPublisher discards every notification.  Used in tests and when
// no broker is configured; polling remains authoritative either way.
type NopPublisher struct{}

func (NopPublisher) QueueUpdate(context.Context, string, int64, bool) error { return nil }
func (NopPublisher) BookingState(context.Context, string, string, string) error {
    return nil
}
func (NopPublisher) Error(context.Context, string, string) error               { return nil }
func (NopPublisher) BookingConfirmed(context.Context, BookingConfirmedEvent) error { return nil }
