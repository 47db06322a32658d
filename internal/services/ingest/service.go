package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"github.com/arqui-grupo4/smarthome-backend/internal/model"
	"github.com/arqui-grupo4/smarthome-backend/internal/services/control"
	"github.com/arqui-grupo4/smarthome-backend/internal/topics"
	"github.com/arqui-grupo4/smarthome-backend/pkg/dedup"
)

// ActionLog persists actuator action records and emits them to live
// subscribers. It is handed to both controllers as their ActionRecorder.
type ActionLog struct {
	sink ReadingSink
	hub  Emitter
}

func NewActionLog(sink ReadingSink, hub Emitter) *ActionLog {
	return &ActionLog{sink: sink, hub: hub}
}

// RecordAction is best-effort on both legs; the command that triggered it
// has already been published and is never rolled back.
func (l *ActionLog) RecordAction(a model.ActuatorAction) {
	if err := l.sink.SaveAction(context.Background(), a); err != nil {
		log.Printf("ingest: action record not persisted: %v", err)
	}
	l.hub.Emit("actuatorAction", a)
}

// Service is the ingestion/dispatch/control pipeline. Each inbound message
// is processed to completion: normalize, persist, fan out, evaluate the
// relevant controller, possibly publish a command.
type Service struct {
	norm       *Normalizer
	sink       ReadingSink
	hub        Emitter
	pump       *control.PumpController
	fan        *control.FanController
	dispatcher *Dispatcher
	deduper    *dedup.Deduper
}

func NewService(sink ReadingSink, hub Emitter, pump *control.PumpController, fan *control.FanController) *Service {
	s := &Service{
		norm:    NewNormalizer(),
		sink:    sink,
		hub:     hub,
		pump:    pump,
		fan:     fan,
		deduper: dedup.New(10*time.Minute, 20000),
	}
	s.dispatcher = NewDispatcher(map[string]HandlerFunc{
		topics.Temperature:  s.handleTemperature,
		topics.Humidity:     s.handleHumidity,
		topics.Soil:         s.handleSoil,
		topics.Illumination: s.handleIllumination,
		topics.Entrance:     s.handleEntrance,
		topics.DoorStatus:   s.handleEntrance,
		topics.Alerts:       s.handleAlert,
		topics.Motion:       s.handleMotion,
		topics.Pump:         s.handlePumpStatus,
		topics.PumpStatus:   s.handlePumpStatus,
		topics.FanStatus:    s.handleFanStatus,
	})
	return s
}

// HandleMessage is the entry point wired into both broker connections.
func (s *Service) HandleMessage(topic string, payload []byte) {
	// /alerts is subscribed at QoS 1; identical redeliveries are dropped
	// before any processing.
	if topics.QoS(topic) == 1 && topic == topics.Alerts {
		h := sha256.Sum256(payload)
		if !s.deduper.ShouldProcess(hex.EncodeToString(h[:])) {
			messagesDropped.WithLabelValues(topic, "redelivery").Inc()
			return
		}
	}
	s.dispatcher.Dispatch(topic, payload)
}

// save persists a reading and fans it out; both legs are best-effort.
func (s *Service) save(r model.Reading) {
	if err := s.sink.SaveReading(context.Background(), r); err != nil {
		log.Printf("ingest: %s reading not persisted: %v", r.Kind, err)
	}
	readingsPersisted.WithLabelValues(string(r.Kind)).Inc()
	s.hub.Emit("newReading", r)
}

func (s *Service) dropped(topic string) {
	messagesDropped.WithLabelValues(topic, "unusable_payload").Inc()
}

func (s *Service) handleTemperature(payload []byte) {
	r, ok := s.norm.Temperature(payload)
	if !ok {
		log.Printf("ingest: invalid temperature payload dropped: %s", payload)
		s.dropped(topics.Temperature)
		return
	}
	s.save(r)
	s.fan.HandleTemperature(*r.Value)
}

func (s *Service) handleHumidity(payload []byte) {
	r, ok := s.norm.Humidity(payload)
	if !ok {
		log.Printf("ingest: invalid humidity payload dropped: %s", payload)
		s.dropped(topics.Humidity)
		return
	}
	s.save(r)
}

func (s *Service) handleSoil(payload []byte) {
	r, ok := s.norm.Soil(payload)
	if !ok {
		log.Printf("ingest: soil payload dropped (disconnected or unusable): %s", payload)
		s.dropped(topics.Soil)
		return
	}
	s.save(r)
	s.pump.HandleSoil(*r.Value, r.Unit)
}

func (s *Service) handleIllumination(payload []byte) {
	r, ok := s.norm.Illumination(payload)
	if !ok {
		s.dropped(topics.Illumination)
		return
	}
	s.save(r)
}

func (s *Service) handleEntrance(payload []byte) {
	r, ok := s.norm.Entrance(payload)
	if !ok {
		s.dropped(topics.Entrance)
		return
	}
	s.save(r)
}

func (s *Service) handleAlert(payload []byte) {
	r, ok := s.norm.Alert(payload)
	if !ok {
		s.dropped(topics.Alerts)
		return
	}
	s.save(r)
}

func (s *Service) handleMotion(payload []byte) {
	// No positive edge, no reading; this is the normal quiet case.
	r, ok := s.norm.Motion(payload)
	if !ok {
		return
	}
	s.save(r)
}

// handlePumpStatus ingests pump state reports, including the loop-back of
// our own commands. Reports equal to the last recorded state are no-ops
// so periodic echoes do not fabricate history.
func (s *Service) handlePumpStatus(payload []byte) {
	r, ok := s.norm.ActuatorStatus(model.KindPump, payload)
	if !ok {
		s.dropped(topics.PumpStatus)
		return
	}
	if !s.pump.ObserveStatus(r.Status) {
		statusDuplicates.WithLabelValues("pump").Inc()
		return
	}
	s.save(r)
}

func (s *Service) handleFanStatus(payload []byte) {
	r, ok := s.norm.ActuatorStatus(model.KindFan, payload)
	if !ok {
		s.dropped(topics.FanStatus)
		return
	}
	if !s.fan.ObserveStatus(r.Status) {
		statusDuplicates.WithLabelValues("fan").Inc()
		return
	}
	s.save(r)
}
