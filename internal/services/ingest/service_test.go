package ingest

import (
	"context"
	"sync"
	"testing"

	"github.com/arqui-grupo4/smarthome-backend/internal/model"
	"github.com/arqui-grupo4/smarthome-backend/internal/model/messages"
	"github.com/arqui-grupo4/smarthome-backend/internal/services/control"
	"github.com/arqui-grupo4/smarthome-backend/internal/topics"
)

type fakeSink struct {
	mu       sync.Mutex
	readings []model.Reading
	actions  []model.ActuatorAction
}

func (s *fakeSink) SaveReading(_ context.Context, r model.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return nil
}

func (s *fakeSink) SaveAction(_ context.Context, a model.ActuatorAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, a)
	return nil
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []string
}

func (e *fakeEmitter) Emit(event string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *fakeEmitter) count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == event {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	mu    sync.Mutex
	fans  []messages.FanCommand
	pumps []messages.PumpCommand
}

func (p *fakePublisher) PublishFan(cmd messages.FanCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fans = append(p.fans, cmd)
	return nil
}

func (p *fakePublisher) PublishPump(cmd messages.PumpCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pumps = append(p.pumps, cmd)
	return nil
}

func newTestService() (*Service, *fakeSink, *fakeEmitter, *fakePublisher) {
	sink := &fakeSink{}
	hub := &fakeEmitter{}
	pub := &fakePublisher{}
	actions := NewActionLog(sink, hub)
	pump := control.NewPumpController(control.DefaultPumpConfig(), pub, actions)
	fan := control.NewFanController(pub, actions)
	return NewService(sink, hub, pump, fan), sink, hub, pub
}

func TestTemperatureMessageDrivesFan(t *testing.T) {
	svc, sink, hub, pub := newTestService()

	svc.HandleMessage(topics.Temperature, []byte(`{"temperature": 25}`))

	if len(sink.readings) != 1 || sink.readings[0].Kind != model.KindTemperature {
		t.Fatalf("expected one temperature reading, got %+v", sink.readings)
	}
	if len(pub.fans) != 1 || pub.fans[0].State != "on" {
		t.Fatalf("25°C should turn the fan on, got %+v", pub.fans)
	}
	if len(sink.actions) != 1 || sink.actions[0].Actuator != "fan" {
		t.Fatalf("expected one fan action record, got %+v", sink.actions)
	}
	if hub.count("newReading") != 1 || hub.count("actuatorAction") != 1 {
		t.Fatalf("expected one reading and one action emitted, got %v", hub.events)
	}
}

func TestInvalidTemperatureHasNoEffect(t *testing.T) {
	svc, sink, hub, pub := newTestService()

	svc.HandleMessage(topics.Temperature, []byte(`{"temperature": "sensor-error"}`))

	if len(sink.readings) != 0 || len(pub.fans) != 0 {
		t.Fatalf("invalid payload must neither persist nor evaluate, got %+v %+v", sink.readings, pub.fans)
	}
	if len(hub.events) != 0 {
		t.Fatalf("nothing should be emitted, got %v", hub.events)
	}
}

func TestSoilMessageDrivesPump(t *testing.T) {
	svc, sink, _, pub := newTestService()

	svc.HandleMessage(topics.Soil, []byte(`{"percent": 20}`))

	if len(sink.readings) != 1 || sink.readings[0].Kind != model.KindSoil {
		t.Fatalf("expected one soil reading, got %+v", sink.readings)
	}
	if len(pub.pumps) != 1 || pub.pumps[0].State != "on" {
		t.Fatalf("20%% should turn the pump on, got %+v", pub.pumps)
	}
}

func TestDisconnectedSoilProbeSkipsPump(t *testing.T) {
	svc, sink, _, pub := newTestService()

	svc.HandleMessage(topics.Soil, []byte(`{"soil_moisture_digital": 0, "connected": false}`))

	if len(sink.readings) != 0 {
		t.Fatalf("disconnected probe reading must not be persisted, got %+v", sink.readings)
	}
	if len(pub.pumps) != 0 {
		t.Fatalf("disconnected probe must not drive the pump, got %+v", pub.pumps)
	}
}

func TestActuatorStatusIdempotence(t *testing.T) {
	svc, sink, hub, _ := newTestService()

	svc.HandleMessage(topics.FanStatus, []byte(`{"state": "on"}`))
	svc.HandleMessage(topics.FanStatus, []byte(`{"state": "on"}`))

	if len(sink.readings) != 1 {
		t.Fatalf("repeated status must persist once, got %d readings", len(sink.readings))
	}
	if hub.count("newReading") != 1 {
		t.Fatalf("repeated status must emit once, got %v", hub.events)
	}

	// A real state change registers again.
	svc.HandleMessage(topics.FanStatus, []byte(`{"state": "off"}`))
	if len(sink.readings) != 2 {
		t.Fatalf("state flip should persist, got %d readings", len(sink.readings))
	}
}

func TestPumpCommandEchoIsAbsorbed(t *testing.T) {
	svc, sink, _, pub := newTestService()

	// Dry reading turns the pump on; the actuator then echoes the command
	// back on the status topic. The echo must not create a second record.
	svc.HandleMessage(topics.Soil, []byte(`{"percent": 20}`))
	if len(pub.pumps) != 1 {
		t.Fatalf("expected one pump command, got %+v", pub.pumps)
	}
	before := len(sink.readings)

	svc.HandleMessage(topics.PumpStatus, []byte(`{"state": "on"}`))
	if len(sink.readings) != before {
		t.Fatalf("loop-back echo must not persist, got %d readings", len(sink.readings))
	}
}

func TestAlertRedeliveryDeduplicated(t *testing.T) {
	svc, sink, _, _ := newTestService()

	payload := []byte(`{"message": "window broken", "location": "salon"}`)
	svc.HandleMessage(topics.Alerts, payload)
	svc.HandleMessage(topics.Alerts, payload)

	if len(sink.readings) != 1 {
		t.Fatalf("identical redelivery must be dropped, got %d readings", len(sink.readings))
	}

	// A different alert is not a redelivery.
	svc.HandleMessage(topics.Alerts, []byte(`{"message": "smoke", "location": "kitchen"}`))
	if len(sink.readings) != 2 {
		t.Fatalf("distinct alert should be processed, got %d readings", len(sink.readings))
	}
}

func TestEveryRoutedTopicHasAnOwner(t *testing.T) {
	svc, _, _, _ := newTestService()

	for _, topic := range svc.dispatcher.Topics() {
		if _, ok := topics.Owner[topic]; !ok {
			t.Fatalf("routed topic %s missing from the ownership table", topic)
		}
	}
	if len(svc.dispatcher.Topics()) != 11 {
		t.Fatalf("expected 11 routed topics, got %d", len(svc.dispatcher.Topics()))
	}
}

func TestUnknownTopicIgnored(t *testing.T) {
	svc, sink, hub, _ := newTestService()

	svc.HandleMessage("/garage", []byte(`{"state": "open"}`))

	if len(sink.readings) != 0 || len(hub.events) != 0 {
		t.Fatalf("unknown topic must be a no-op, got %+v %v", sink.readings, hub.events)
	}
}
