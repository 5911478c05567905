// Package broker defines the message-queue seam between the controller and
// the worker entry point: durable queue declaration, persistent publish,
// and ack/nack'd consumption. The only shipped implementation is
// internal/broker/rabbitmq, but nothing above this package imports it
// directly.
package broker

import (
	"context"
	"errors"
)

// ErrTransport indicates the connection to the broker was lost. Callers are
// expected to retry the operation; implementations reconnect lazily on the
// next call rather than running a background retry loop.
var ErrTransport = errors.New("broker: transport lost")

// Delivery is a single message received from a queue, carrying enough state
// for the consumer to acknowledge or reject it.
type Delivery struct {
	Body []byte

	// Ack acknowledges the message, removing it from the queue.
	Ack func() error

	// Nack rejects the message. When requeue is true the broker redelivers
	// it; otherwise it is dropped (or dead-lettered, if configured).
	Nack func(requeue bool) error
}

// Broker is the narrow interface the controller and worker entry point use
// to talk to the message queue.
type Broker interface {
	// DeclareQueue ensures a durable queue named name exists.
	DeclareQueue(ctx context.Context, name string) error

	// DeleteQueue removes a queue. Safe to call on a queue that doesn't exist.
	DeleteQueue(ctx context.Context, name string) error

	// Publish sends body to queue with persistent delivery mode, surviving a
	// broker restart.
	Publish(ctx context.Context, queue string, body []byte) error

	// Consume starts delivering messages from queue on the returned channel.
	// The channel closes when ctx is cancelled or Cancel is called with the
	// returned consumer tag.
	Consume(ctx context.Context, queue string) (<-chan Delivery, string, error)

	// Cancel stops a consumer previously started with Consume.
	Cancel(ctx context.Context, consumerTag string) error

	// Qos sets how many unacknowledged messages the broker will deliver to
	// this connection at once.
	Qos(prefetch int) error

	// Close releases the underlying connection.
	Close() error
}
