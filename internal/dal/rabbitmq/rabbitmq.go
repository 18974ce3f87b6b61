package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"
)

// DeadLetterSuffix names the queue that receives rejected deliveries of a work queue.
const DeadLetterSuffix = ".dlq"

// Client represents a RabbitMQ client.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

// Channel returns the underlying AMQP channel.
func (r *Client) Channel() *amqp.Channel {
	return r.channel
}

// Connection returns the underlying AMQP connection.
func (r *Client) Connection() *amqp.Connection {
	return r.conn
}

// ErrConnectionClosed is returned by Ping once the AMQP connection is gone.
var ErrConnectionClosed = errors.New("rabbitmq connection closed")

// Ping reports whether the AMQP connection is still open.
func (r *Client) Ping(_ context.Context) error {
	if r.conn == nil || r.conn.IsClosed() {
		return ErrConnectionClosed
	}

	return nil
}

// Close closes the channel and connection for graceful shutdown.
func (r *Client) Close() error {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return err
		}
	}
	if r.conn != nil {
		return r.conn.Close()
	}

	return nil
}

// MustNewClient creates a new RabbitMQ client from rabbitmq.url.
func MustNewClient() *Client {
	conn, err := amqp.Dial(viper.GetString("rabbitmq.url"))
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to RabbitMQ: %v", err))
	}

	channel, err := conn.Channel()
	if err != nil {
		err := conn.Close()
		if err != nil {
			panic(fmt.Sprintf("Failed to close a connection: %v", err))
		}
		panic(fmt.Sprintf("Failed to open a channel: %v", err))
	}

	if prefetch := viper.GetInt("rabbitmq.prefetch"); prefetch > 0 {
		if err := channel.Qos(prefetch, 0, false); err != nil {
			panic(fmt.Sprintf("Failed to set QoS: %v", err))
		}
	}

	slog.Info("RabbitMQ connected")

	return &Client{
		conn:    conn,
		channel: channel,
	}
}

type DeclareQueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       amqp.Table
}

// DeclareQueue declares a queue with the given configuration.
func (r *Client) DeclareQueue(cfg DeclareQueueConfig) (amqp.Queue, error) {
	return r.channel.QueueDeclare(
		cfg.Name,
		cfg.Durable,
		cfg.AutoDelete,
		cfg.Exclusive,
		cfg.NoWait,
		cfg.Args,
	)
}

// DeclareWorkQueue declares a durable queue whose rejected deliveries go to <name>.dlq.
func (r *Client) DeclareWorkQueue(name string) (amqp.Queue, error) {
	dlq := name + DeadLetterSuffix
	if _, err := r.DeclareQueue(DeclareQueueConfig{Name: dlq, Durable: true}); err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare dead letter queue %s: %w", dlq, err)
	}

	queue, err := r.DeclareQueue(DeclareQueueConfig{
		Name:    name,
		Durable: true,
		Args: amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlq,
		},
	})
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}

	return queue, nil
}

// Consume starts a manual-ack consumer on queue.
func (r *Client) Consume(queue, consumerTag string) (<-chan amqp.Delivery, error) {
	return r.channel.Consume(
		queue,
		consumerTag,
		false,
		false,
		false,
		false,
		nil,
	)
}

// Cancel stops the consumer registered under consumerTag.
func (r *Client) Cancel(consumerTag string) error {
	return r.channel.Cancel(consumerTag, false)
}

// Publish sends msg to queue through the default exchange.
func (r *Client) Publish(ctx context.Context, queue string, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel.Publish(
		"",
		queue,
		false,
		false,
		msg,
	)
}
