// Package broker wraps the NATS connection used for swarm pub/sub,
// durable task queues (JetStream), and the KV buckets backing
// autoscale debouncing and keyed locks.
package broker

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	nc "github.com/nats-io/nats.go"
)

// Message is a received pub/sub message.
type Message struct {
	Subject string
	Reply   string
	Data    []byte
}

// Client wraps a NATS connection with the reconnect policy and
// convenience methods the rest of the core uses.
type Client struct {
	conn *nc.Conn
}

// NewClient connects to url with indefinite reconnect.
func NewClient(url string) (*Client, error) {
	opts := []nc.Option{
		nc.ReconnectWait(2 * time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				log.Printf("[broker] disconnected: %v", err)
			}
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			log.Printf("[broker] reconnected to %s", conn.ConnectedUrl())
		}),
		nc.ClosedHandler(func(*nc.Conn) {
			log.Println("[broker] connection closed")
		}),
	}

	conn, err := nc.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Conn exposes the underlying connection for components (StreamManager,
// KV) that need to build their own JetStream context.
func (c *Client) Conn() *nc.Conn {
	return c.conn
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Publish sends a raw payload to subject.
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("broker: publish %s: %w", subject, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it to subject.
func (c *Client) PublishJSON(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("broker: marshal: %w", err)
	}
	return c.Publish(subject, data)
}

// Subscribe registers an async handler for subject.
func (c *Client) Subscribe(subject string, handler func(*Message)) (*nc.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nc.Msg) {
		handler(&Message{Subject: msg.Subject, Reply: msg.Reply, Data: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("broker: subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// SwarmSubject returns the pub/sub subject agents in swarm id use to
// broadcast status and coordination messages to one another.
func SwarmSubject(swarmID string) string {
	return fmt.Sprintf("swarm:%s", swarmID)
}
