package queue

import (
	"context"
	"encoding/json"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends activation mail requests to RabbitMQ. Each call opens
// its own connection, so a broker outage only affects the calls made
// while it lasts.
type Publisher struct {
	URL   string
	Queue string
	Now   func() time.Time
}

func NewPublisher(url string) *Publisher {
	return &Publisher{URL: url, Queue: ActivationQueueName, Now: time.Now}
}

// SendActivationMail publishes an ActivationMailEvent to the activation
// queue. Errors are logged and returned so the caller can choose to
// ignore them. Messages are marked as persistent.
func (p *Publisher) SendActivationMail(ctx context.Context, email, activationURL, locale string) error {
	body, err := encodeEvent(ActivationMailEvent{
		Email:         email,
		ActivationURL: activationURL,
		Locale:        locale,
		RequestedAt:   p.Now().UTC(),
	})
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := declareQueue(ch, p.Queue); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    p.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		return err
	}

	return nil
}

func encodeEvent(ev ActivationMailEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
}
