package syncx

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher pushes events to a RabbitMQ topic exchange, routed by event type.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	enabled  bool
}

// NewPublisher dials url. An empty url yields a disabled publisher that drops events.
func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = "exam.events"
	}
	if url == "" {
		log.Println("syncx: RABBITMQ_URL is empty, event publishing is disabled")
		return &Publisher{exchange: exchange}, nil
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange, enabled: true}, nil
}

func (p *Publisher) Append(ctx context.Context, e Event) error {
	if !p.enabled {
		return nil
	}
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		e.Type, // routing key
		false,  // mandatory
		false,  // immediate
		publishing(e),
	)
}

func publishing(e Event) amqp.Publishing {
	ts := time.Now()
	if e.CreatedAt > 0 {
		ts = time.Unix(e.CreatedAt, 0)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ts,
		Body:         []byte(e.DataJSON),
		Headers: amqp.Table{
			"event_type": e.Type,
			"key":        e.Key,
			"site_id":    e.SiteID,
		},
	}
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			log.Printf("syncx: close channel: %v", err)
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
