package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arqui-grupo4/smarthome-backend/internal/model/messages"
	"github.com/arqui-grupo4/smarthome-backend/internal/topics"
)

// ErrNoTransport is returned when neither broker connection can take a
// publish. Callers treat it as a soft failure: log and wait for the next
// qualifying reading.
var ErrNoTransport = errors.New("no transport available")

// Transport is the slice of mqttconn.Conn the publisher needs.
type Transport interface {
	Name() string
	IsUp() bool
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

var (
	commandsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_commands_published_total",
		Help: "Actuator commands published by the automatic control engine.",
	}, []string{"actuator", "state"})
	commandFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_command_publish_failures_total",
		Help: "Actuator command publishes that failed on every connection.",
	}, []string{"actuator"})
)

// CommandPublisher resolves which connection owns an outbound topic (the
// same static table the dispatcher uses) and publishes there, falling back
// to the other connection when the owner is down. Connections are
// registered after dialing; until then every publish fails soft with
// ErrNoTransport and the controllers simply retry on the next reading.
type CommandPublisher struct {
	mu    sync.RWMutex
	conns map[topics.ConnName]Transport
}

func NewCommandPublisher() *CommandPublisher {
	return &CommandPublisher{conns: make(map[topics.ConnName]Transport, 2)}
}

// Register attaches a dialed connection under its name.
func (p *CommandPublisher) Register(name topics.ConnName, conn Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[name] = conn
}

// PublishFan publishes a fan command on /fan.
func (p *CommandPublisher) PublishFan(cmd messages.FanCommand) error {
	if err := p.publish(topics.Fan, cmd); err != nil {
		commandFailures.WithLabelValues("fan").Inc()
		return err
	}
	commandsPublished.WithLabelValues("fan", cmd.State).Inc()
	return nil
}

// PublishPump publishes a pump command on /pump.
func (p *CommandPublisher) PublishPump(cmd messages.PumpCommand) error {
	if err := p.publish(topics.Pump, cmd); err != nil {
		commandFailures.WithLabelValues("pump").Inc()
		return err
	}
	commandsPublished.WithLabelValues("pump", cmd.State).Inc()
	return nil
}

func (p *CommandPublisher) publish(topic string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal command for %s: %w", topic, err)
	}

	owner := topics.Owner[topic]
	p.mu.RLock()
	conn := p.conns[owner]
	if conn == nil || !conn.IsUp() {
		conn = p.fallback(owner)
	}
	p.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("publish %s: %w", topic, ErrNoTransport)
	}
	if err := conn.Publish(topic, topics.QoS(topic), false, b); err != nil {
		return err
	}
	log.Printf("control: published %s to %s via %s", string(b), topic, conn.Name())
	return nil
}

// fallback returns any live connection other than owner; caller holds the
// read lock.
func (p *CommandPublisher) fallback(owner topics.ConnName) Transport {
	for name, conn := range p.conns {
		if name == owner || conn == nil || !conn.IsUp() {
			continue
		}
		log.Printf("control: connection %s unavailable, falling back to %s", owner, name)
		return conn
	}
	return nil
}
