package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP publishes notifications to a topic exchange for an external push
// gateway to consume.
type AMQP struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewAMQP dials url and declares a durable topic exchange.
func NewAMQP(url, exchange, routingKey string) (*AMQP, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}

	return &AMQP{conn: conn, channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (p *AMQP) Name() string { return "amqp" }

type amqpEnvelope struct {
	EventType string       `json:"event_type"`
	Token     string       `json:"token"`
	Payload   Notification `json:"payload"`
}

func (p *AMQP) Push(ctx context.Context, n Notification) error {
	body, err := json.Marshal(amqpEnvelope{EventType: "message.push", Token: n.Token, Payload: n})
	if err != nil {
		return err
	}

	return p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    n.MsgID,
		Headers: amqp.Table{
			"recipient_id":     n.RecipientID,
			"conversation_key": n.ConversationKey,
		},
	})
}

// Close closes the channel and the connection.
func (p *AMQP) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
