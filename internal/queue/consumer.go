package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Mailer delivers one activation mail.
type Mailer interface {
	Send(ctx context.Context, ev ActivationMailEvent) error
}

// FileMailer appends every activation mail to <Dir>/activation.log in
// a single-line format. It stands in for a real mail transport.
type FileMailer struct {
	Dir string

	mu sync.Mutex
}

func NewFileMailer(dir string) *FileMailer {
	if dir == "" {
		dir = "logs"
	}
	return &FileMailer{Dir: dir}
}

func (m *FileMailer) Send(_ context.Context, ev ActivationMailEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Ensure logs directory exists
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(m.Dir, "activation.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Activation mail | to=%s | locale=%s | link=%s\n",
		ev.RequestedAt.Format(time.RFC3339), ev.Email, ev.Locale, ev.ActivationURL)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// StartActivationConsumer connects to RabbitMQ, declares the activation
// queue (durable) and hands each message to mailer. It reconnects with
// backoff until ctx is cancelled, then returns ctx.Err(). Messages that
// fail are rejected without requeue so one bad payload cannot loop.
func StartActivationConsumer(ctx context.Context, url string, mailer Mailer) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("activation-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, mailer)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("activation-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, mailer Mailer) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("activation-consumer: set QoS failed: %v", err)
	}

	if _, err := declareQueue(ch, ActivationQueueName); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(ActivationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(ctx, d.Body, mailer); err != nil {
				log.Printf("activation-consumer: handle message failed: %v", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(ctx context.Context, body []byte, mailer Mailer) error {
	var ev ActivationMailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Email == "" || ev.ActivationURL == "" {
		return errors.New("event without email or activation url")
	}
	return mailer.Send(ctx, ev)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
