package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"ingenico/entity"
)

// RabbitPublisher sends payment events to a topic exchange, routed by the
// new state.
type RabbitPublisher struct {
	mutex      sync.Mutex
	connection *amqp.Connection
	channel    *amqp.Channel
	exchange   string
}

func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	connection, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	channel, err := connection.Channel()
	if err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	err = channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		_ = channel.Close()
		_ = connection.Close()
		return nil, fmt.Errorf("rabbitmq exchange %s: %w", exchange, err)
	}
	return &RabbitPublisher{
		connection: connection,
		channel:    channel,
		exchange:   exchange,
	}, nil
}

func (p *RabbitPublisher) Publish(_ context.Context, event *entity.PaymentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	err = p.channel.Publish(
		p.exchange,
		event.RoutingKey(),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s-%d", event.PaymentId, event.Time.UnixNano()),
			Timestamp:    event.Time,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.RoutingKey(), err)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	_ = p.channel.Close()
	return p.connection.Close()
}
