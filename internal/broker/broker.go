// Package broker fans "refresh soon" hints out over RabbitMQ. A hint only
// shortens the wait until the next poll; clients must not depend on it.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/nhle/pmnotify/internal/events"
)

// ExchangeType is the exchange kind used for hints. Routing keys are user
// ids, so each client only hears about its own notifications.
const ExchangeType = "direct"

const publishTimeout = 5 * time.Second

// Hint is the message body published on the exchange.
type Hint struct {
	User           string    `json:"user"`
	Reason         string    `json:"reason"`
	NotificationID string    `json:"notificationId,omitempty"`
	SentAt         time.Time `json:"sentAt"`
}

// Encode serializes a hint for publishing.
func Encode(h Hint) ([]byte, error) {
	body, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encoding refresh hint: %w", err)
	}
	return body, nil
}

// Decode parses a published hint.
func Decode(body []byte) (Hint, error) {
	var h Hint
	if err := json.Unmarshal(body, &h); err != nil {
		return Hint{}, fmt.Errorf("decoding refresh hint: %w", err)
	}
	return h, nil
}

// conn is an open connection with one channel and a declared exchange.
type conn struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func dial(url, exchange string) (*conn, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("opening broker channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,     // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("declaring exchange %q: %w", exchange, err)
	}
	return &conn{conn: c, ch: ch, exchange: exchange}, nil
}

func (c *conn) close() error {
	c.ch.Close()
	return c.conn.Close()
}

// Publisher sends hints for the reference server.
type Publisher struct {
	c      *conn
	logger zerolog.Logger
}

// NewPublisher connects to url and declares exchange.
func NewPublisher(url, exchange string, logger zerolog.Logger) (*Publisher, error) {
	c, err := dial(url, exchange)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("exchange", exchange).Msg("broker publisher connected")
	return &Publisher{c: c, logger: logger}, nil
}

// Publish routes h to the queue bound for h.User.
func (p *Publisher) Publish(ctx context.Context, h Hint) error {
	if h.SentAt.IsZero() {
		h.SentAt = time.Now().UTC()
	}
	body, err := Encode(h)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.c.ch.PublishWithContext(ctx,
		p.c.exchange, // exchange
		h.User,       // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   h.SentAt,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing refresh hint for %s: %w", h.User, err)
	}
	p.logger.Debug().Str("user", h.User).Str("reason", h.Reason).Msg("refresh hint published")
	return nil
}

// Close closes the channel and connection.
func (p *Publisher) Close() error {
	return p.c.close()
}

// Subscriber receives hints for one user and republishes them on a
// refresh bus.
type Subscriber struct {
	c      *conn
	queue  string
	logger zerolog.Logger
}

// NewSubscriber connects to url and binds a private queue to user's
// routing key.
func NewSubscriber(url, exchange, user string, logger zerolog.Logger) (*Subscriber, error) {
	c, err := dial(url, exchange)
	if err != nil {
		return nil, err
	}

	q, err := c.ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		c.close()
		return nil, fmt.Errorf("declaring hint queue: %w", err)
	}
	if err := c.ch.QueueBind(q.Name, user, exchange, false, nil); err != nil {
		c.close()
		return nil, fmt.Errorf("binding hint queue to %s: %w", user, err)
	}

	logger.Info().Str("queue", q.Name).Str("user", user).Msg("broker subscriber bound")
	return &Subscriber{c: c, queue: q.Name, logger: logger}, nil
}

// Run consumes hints until ctx is done or the channel closes. Each hint is
// published on bus as a RefreshRequested event.
func (s *Subscriber) Run(ctx context.Context, bus *events.Bus[events.RefreshRequested]) error {
	msgs, err := s.c.ch.Consume(
		s.queue, // queue
		"",      // consumer
		true,    // auto-ack
		true,    // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("consuming hint queue: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("broker channel closed")
			}
			Forward(msg.Body, bus, s.logger)
		}
	}
}

// Forward decodes one message body and publishes it on bus. Malformed
// bodies are logged and dropped.
func Forward(body []byte, bus *events.Bus[events.RefreshRequested], logger zerolog.Logger) bool {
	h, err := Decode(body)
	if err != nil {
		logger.Warn().Err(err).Msg("dropping malformed refresh hint")
		return false
	}
	reason := "broker"
	if h.Reason != "" {
		reason = "broker: " + h.Reason
	}
	bus.Publish(events.RefreshRequested{Reason: reason})
	return true
}

// Close closes the channel and connection.
func (s *Subscriber) Close() error {
	return s.c.close()
}
