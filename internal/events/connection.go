package events

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Connection is a RabbitMQ connection that redials when the broker drops it.
type Connection struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	log     *slog.Logger
}

func Dial(url string, log *slog.Logger) (*Connection, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Connection{url: url, log: log}
	if err := c.connect(); err != nil {
		return nil, err
	}
	log.Info("amqp connected")
	return c, nil
}

func (c *Connection) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	c.conn = conn
	c.channel = ch
	return nil
}

// Channel returns the open channel, reconnecting first if necessary.
func (c *Connection) Channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && c.conn != nil && !c.conn.IsClosed() && !c.channel.IsClosed() {
		return c.channel, nil
	}

	c.log.Warn("amqp channel closed, reconnecting")
	c.closeLocked()
	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("amqp reconnect: %w", err)
	}
	c.log.Info("amqp reconnected")
	return c.channel, nil
}

func (c *Connection) closeLocked() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		c.channel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		c.conn = nil
	}
	return errors.Join(errs...)
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil
}
