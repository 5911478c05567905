// Package rabbitmq implements broker.Broker against RabbitMQ via AMQP 0.9.1.
package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/neardata-eu/lithops-hpc/internal/broker"
)

// Client is a RabbitMQ-backed broker.Broker. It reconnects lazily: a lost
// connection is only noticed, and re-established, the next time an
// operation is attempted, rather than through a background retry loop.
type Client struct {
	url string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	qos     int
}

// New returns a Client that will connect to url on first use.
func New(url string) *Client {
	return &Client{url: url}
}

// channelLocked returns the current channel, reconnecting first if the
// connection has been closed since the last call. Callers must hold c.mu.
func (c *Client) channelLocked() (*amqp.Channel, error) {
	if c.conn != nil && c.conn.IsClosed() {
		c.conn = nil
		c.channel = nil
	}
	if c.conn == nil {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			return nil, fmt.Errorf("%w: dial: %v", broker.ErrTransport, err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: open channel: %v", broker.ErrTransport, err)
		}
		if c.qos > 0 {
			if err := ch.Qos(c.qos, 0, false); err != nil {
				conn.Close()
				return nil, fmt.Errorf("%w: qos: %v", broker.ErrTransport, err)
			}
		}
		c.conn = conn
		c.channel = ch
	}
	return c.channel, nil
}

func (c *Client) DeclareQueue(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, err := c.channelLocked()
	if err != nil {
		return err
	}
	_, err = ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue %s: %w", name, err)
	}
	return nil
}

func (c *Client) DeleteQueue(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, err := c.channelLocked()
	if err != nil {
		return err
	}
	if _, err := ch.QueueDelete(name, false, false, false); err != nil {
		return fmt.Errorf("rabbitmq: delete queue %s: %w", name, err)
	}
	return nil
}

func (c *Client) Publish(ctx context.Context, queue string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, err := c.channelLocked()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish to %s: %w", queue, err)
	}
	return nil
}

func (c *Client) Consume(ctx context.Context, queue string) (<-chan broker.Delivery, string, error) {
	c.mu.Lock()
	ch, err := c.channelLocked()
	if err != nil {
		c.mu.Unlock()
		return nil, "", err
	}
	consumerTag := fmt.Sprintf("%s-%p", queue, ch)
	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	c.mu.Unlock()
	if err != nil {
		return nil, "", fmt.Errorf("rabbitmq: consume %s: %w", queue, err)
	}

	out := make(chan broker.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				delivery := d
				out <- broker.Delivery{
					Body: delivery.Body,
					Ack:  func() error { return delivery.Ack(false) },
					Nack: func(requeue bool) error { return delivery.Nack(false, requeue) },
				}
			}
		}
	}()
	return out, consumerTag, nil
}

func (c *Client) Cancel(ctx context.Context, consumerTag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, err := c.channelLocked()
	if err != nil {
		return err
	}
	if err := ch.Cancel(consumerTag, false); err != nil {
		return fmt.Errorf("rabbitmq: cancel consumer %s: %w", consumerTag, err)
	}
	return nil
}

func (c *Client) Qos(prefetch int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qos = prefetch
	ch, err := c.channelLocked()
	if err != nil {
		return err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: qos: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.channel = nil
	return err
}
