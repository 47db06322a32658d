package control

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/arqui-grupo4/smarthome-backend/internal/model/messages"
	"github.com/arqui-grupo4/smarthome-backend/internal/topics"
)

type fakeConn struct {
	name      string
	up        bool
	err       error
	topics    []string
	qos       []byte
	published [][]byte
}

func (c *fakeConn) Name() string { return c.name }
func (c *fakeConn) IsUp() bool   { return c.up }
func (c *fakeConn) Publish(topic string, qos byte, _ bool, payload []byte) error {
	if c.err != nil {
		return c.err
	}
	c.topics = append(c.topics, topic)
	c.qos = append(c.qos, qos)
	c.published = append(c.published, payload)
	return nil
}

func TestPublishGoesToOwningConnection(t *testing.T) {
	primary := &fakeConn{name: "primary", up: true}
	secondary := &fakeConn{name: "secondary", up: true}
	p := NewCommandPublisher()
	p.Register(topics.Primary, primary)
	p.Register(topics.Secondary, secondary)

	if err := p.PublishFan(messages.FanCommand{State: "on", Source: "backend"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(primary.topics) != 1 || primary.topics[0] != topics.Fan {
		t.Fatalf("fan command must go to the primary connection, got %v", primary.topics)
	}
	if len(secondary.topics) != 0 {
		t.Fatalf("secondary must not be used while primary is up")
	}
	if primary.qos[0] != 1 {
		t.Fatalf("commands are published with delivery acknowledgment (qos 1), got %d", primary.qos[0])
	}

	var cmd messages.FanCommand
	if err := json.Unmarshal(primary.published[0], &cmd); err != nil || cmd.State != "on" {
		t.Fatalf("payload should round-trip: %v %+v", err, cmd)
	}
}

func TestPublishFallsBackWhenOwnerDown(t *testing.T) {
	primary := &fakeConn{name: "primary", up: false}
	secondary := &fakeConn{name: "secondary", up: true}
	p := NewCommandPublisher()
	p.Register(topics.Primary, primary)
	p.Register(topics.Secondary, secondary)

	if err := p.PublishPump(messages.PumpCommand{State: "on", Source: "backend", Value: 25}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(secondary.topics) != 1 || secondary.topics[0] != topics.Pump {
		t.Fatalf("pump command should fall back to secondary, got %v", secondary.topics)
	}
}

func TestPublishNoTransport(t *testing.T) {
	p := NewCommandPublisher()
	p.Register(topics.Primary, &fakeConn{name: "primary", up: false})

	err := p.PublishFan(messages.FanCommand{State: "off"})
	if !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}

	// No registered connections at all behaves the same.
	empty := NewCommandPublisher()
	if err := empty.PublishPump(messages.PumpCommand{State: "on"}); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}
}
