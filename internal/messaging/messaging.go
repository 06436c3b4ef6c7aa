package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	PrepareQueue    = "prepare_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type PrepareTaskPayload struct {
	JobId uuid.UUID
}

type Publisher interface {
	PublishPrepareTask(ctx context.Context, payload PrepareTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
