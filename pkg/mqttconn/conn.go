// Package mqttconn maintains the named broker connections. Each Conn owns
// its subscription set, reconnects on its own (paho auto-reconnect plus an
// exponential-backoff initial dial), and exposes a bounded publish. The
// rest of the core never blocks waiting for a reconnection.
package mqttconn

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// Config describes one broker session.
type Config struct {
	Name     string // "primary" | "secondary", used in logs only
	Host     string
	Port     int
	User     string
	Password string
	ClientID string
	TLS      bool
}

// MessageHandler receives every inbound message from a connection.
type MessageHandler func(topic string, payload []byte)

// Conn is a single named MQTT session.
type Conn struct {
	name   string
	client mqtt.Client
}

// Dial connects to the broker with exponential-backoff retries, then keeps
// the session alive via paho auto-reconnect. The subscription set is
// re-applied on every (re)connect. The connection is closed when ctx ends.
func Dial(ctx context.Context, cfg Config, subs map[string]byte, handler MessageHandler) (*Conn, error) {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	addr := fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("smarthome-%s-%s", cfg.Name, uuid.NewString()[:8])
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt[%s]: connection lost: %v", cfg.Name, err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Printf("mqtt[%s]: reconnecting to %s...", cfg.Name, addr)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		for topic, qos := range subs {
			t, q := topic, qos
			token := client.Subscribe(t, q, func(_ mqtt.Client, msg mqtt.Message) {
				handler(msg.Topic(), msg.Payload())
			})
			token.Wait()
			if token.Error() != nil {
				log.Printf("mqtt[%s]: subscribe %s failed: %v", cfg.Name, t, token.Error())
				continue
			}
			log.Printf("mqtt[%s]: subscribed to %s (qos=%d)", cfg.Name, t, q)
		}
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	maxRetries := 5

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("mqtt[%s]: connect to %s failed: %v", cfg.Name, addr, token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithMaxRetries(bo, uint64(maxRetries-1)))
	if err != nil {
		return nil, fmt.Errorf("mqtt[%s]: could not establish connection after retries: %w", cfg.Name, err)
	}
	log.Printf("mqtt[%s]: connected to %s", cfg.Name, addr)

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		log.Printf("mqtt[%s]: connection closed", cfg.Name)
	}()

	return &Conn{name: cfg.Name, client: client}, nil
}

// Name returns the connection's configured name.
func (c *Conn) Name() string { return c.name }

// IsUp reports whether the session currently has an open connection.
func (c *Conn) IsUp() bool { return c != nil && c.client.IsConnectionOpen() }

// Publish sends a payload with a bounded wait for the broker ack. A timed
// out or failed token is an error for the caller, never a hang.
func (c *Conn) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s on %s: timed out after %s", topic, c.name, publishTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("publish to %s on %s: %w", topic, c.name, token.Error())
	}
	return nil
}

// Close disconnects immediately. Used on shutdown paths that do not carry
// the dial context.
func (c *Conn) Close() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
		log.Printf("mqtt[%s]: disconnected", c.name)
	}
}
