package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var queues = []string{PrepareQueue}

func dial(url string) (*amqp.Connection, error) {
	var err error
	for attempt := 1; attempt <= MaxConnectRetry; attempt++ {
		var conn *amqp.Connection
		if conn, err = amqp.Dial(url); err == nil {
			slog.Info("connected to rabbitmq")
			return conn, nil
		}
		slog.Warn("rabbitmq dial failed", "attempt", attempt, "max_attempts", MaxConnectRetry, "error", err)
		time.Sleep(RetryDelay)
	}
	return nil, fmt.Errorf("error connecting to rabbitmq after %d attempts: %w", MaxConnectRetry, err)
}

// openChannel dials the broker, opens a channel and declares the durable
// job queues on it.
func openChannel(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := dial(url)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("error opening rabbitmq channel: %w", err)
	}

	for _, queue := range queues {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("error declaring queue %s: %w", queue, err)
		}
	}

	return conn, ch, nil
}

// waitForClose blocks until ch closes or stop fires. It reports whether the
// channel was lost and should be reopened.
func waitForClose(ch *amqp.Channel, stop <-chan struct{}) bool {
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case err, ok := <-closed:
		if !ok {
			slog.Info("rabbitmq channel closed")
			return false
		}
		slog.Warn("rabbitmq channel lost, reconnecting", "error", err)
		return true
	case <-stop:
		return false
	}
}

func retryUntil(open func() error, stop <-chan struct{}) {
	for {
		err := open()
		if err == nil {
			slog.Info("reconnected to rabbitmq")
			return
		}
		slog.Error("rabbitmq reconnect failed", "error", err)
		select {
		case <-time.After(RetryDelay * 10):
		case <-stop:
			return
		}
	}
}

type RabbitMQPublisher struct {
	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	url    string
	stop   chan struct{}
	closer sync.Once
}

func NewRabbitMQPublisher(url string) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{url: url, stop: make(chan struct{})}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) open() error {
	conn, ch, err := openChannel(p.url)
	if err != nil {
		return err
	}
	p.conn, p.ch = conn, ch

	go p.watch(ch)
	return nil
}

func (p *RabbitMQPublisher) watch(ch *amqp.Channel) {
	if !waitForClose(ch, p.stop) {
		return
	}

	// Publishes fail fast while the channel is nil.
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn, p.ch = nil, nil
	retryUntil(p.open, p.stop)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding %s payload: %w", queue, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.ch == nil || p.ch.IsClosed() {
		return fmt.Errorf("rabbitmq channel is not open")
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		slog.Error("error publishing task", "queue", queue, "error", err)
		return fmt.Errorf("error publishing to %s: %w", queue, err)
	}
	return nil
}

func (p *RabbitMQPublisher) PublishPrepareTask(ctx context.Context, payload PrepareTaskPayload) error {
	return p.publish(ctx, PrepareQueue, payload)
}

func (p *RabbitMQPublisher) Close() {
	p.closer.Do(func() {
		close(p.stop)
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.conn == nil {
			return
		}
		if err := p.conn.Close(); err != nil {
			slog.Error("error closing rabbitmq connection", "error", err)
		}
	})
}

type RabbitMQTask struct {
	d amqp.Delivery
}

func (t *RabbitMQTask) Type() string {
	return t.d.RoutingKey
}

func (t *RabbitMQTask) Payload() []byte {
	return t.d.Body
}

func (t *RabbitMQTask) Ack() error {
	return t.d.Ack(false)
}

// Nack does not requeue. A failed prepare job is rerun by submitting it again.
func (t *RabbitMQTask) Nack() error {
	return t.d.Nack(false, false)
}

func (t *RabbitMQTask) Reject() error {
	return t.d.Reject(false)
}

type RabbitMQReceiver struct {
	tasks  chan Task
	url    string
	stop   chan struct{}
	closer sync.Once
}

func NewRabbitMQReceiver(url string) (*RabbitMQReceiver, error) {
	r := &RabbitMQReceiver{
		tasks: make(chan Task),
		url:   url,
		stop:  make(chan struct{}),
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQReceiver) open() error {
	conn, ch, err := openChannel(r.url)
	if err != nil {
		return err
	}

	// A prepare job holds a whole dataset in memory, take one at a time.
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("error setting rabbitmq qos: %w", err)
	}

	for _, queue := range queues {
		deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			conn.Close()
			return fmt.Errorf("error consuming %s: %w", queue, err)
		}
		go r.forward(deliveries)
	}

	go r.watch(conn, ch)
	return nil
}

func (r *RabbitMQReceiver) forward(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		select {
		case r.tasks <- &RabbitMQTask{d: d}:
		case <-r.stop:
			return
		}
	}
}

func (r *RabbitMQReceiver) watch(conn *amqp.Connection, ch *amqp.Channel) {
	if waitForClose(ch, r.stop) {
		retryUntil(r.open, r.stop)
		return
	}

	select {
	case <-r.stop:
		slog.Info("stopping rabbitmq consumer")
		if err := conn.Close(); err != nil {
			slog.Error("error closing rabbitmq connection", "error", err)
		}
	default:
	}
}

func (r *RabbitMQReceiver) Tasks() <-chan Task {
	return r.tasks
}

func (r *RabbitMQReceiver) Close() {
	r.closer.Do(func() { close(r.stop) })
}
