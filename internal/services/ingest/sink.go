package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/arqui-grupo4/smarthome-backend/internal/model"
)

const (
	readingMeasurement = "sensor_reading"
	actionMeasurement  = "actuator_action"
)

// ReadingSink persists normalized readings and actuator action records.
// Persistence is best-effort telemetry: failures are logged and never
// propagate into control decisions.
type ReadingSink interface {
	SaveReading(ctx context.Context, r model.Reading) error
	SaveAction(ctx context.Context, a model.ActuatorAction) error
}

// InfluxSink writes readings through the async WriteAPI (batched, errors
// observed on a listener) and action records through the blocking API
// behind a circuit breaker, since actions are rarer and worth the ack.
type InfluxSink struct {
	readings api.WriteAPI
	actions  api.WriteAPIBlocking
	breaker  *gobreaker.CircuitBreaker

	mu      sync.RWMutex
	lastErr time.Time
}

func NewInfluxSink(client influxdb2.Client, org, bucket string) *InfluxSink {
	s := &InfluxSink{
		readings: client.WriteAPI(org, bucket),
		actions:  client.WriteAPIBlocking(org, bucket),
		lastErr:  time.Now().Add(-24 * time.Hour),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "influx-actions",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
	}
	go func() {
		for err := range s.readings.Errors() {
			if err != nil {
				s.mu.Lock()
				s.lastErr = time.Now()
				s.mu.Unlock()
				log.Printf("ingest: influx write error: %v", err)
			}
		}
	}()
	return s
}

// SaveReading queues the reading on the async write path.
func (s *InfluxSink) SaveReading(_ context.Context, r model.Reading) error {
	s.readings.WritePoint(readingToPoint(r))
	return nil
}

// SaveAction writes synchronously so the action record is acknowledged;
// the breaker sheds load while Influx is down.
func (s *InfluxSink) SaveAction(ctx context.Context, a model.ActuatorAction) error {
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.actions.WritePoint(wctx, actionToPoint(a))
	})
	if err != nil {
		s.mu.Lock()
		s.lastErr = time.Now()
		s.mu.Unlock()
	}
	return err
}

// LastErrorAge reports how long ago the last write error happened; feeds
// /healthz and /readyz.
func (s *InfluxSink) LastErrorAge() time.Duration {
	if s == nil {
		return 99999 * time.Hour
	}
	s.mu.RLock()
	t := s.lastErr
	s.mu.RUnlock()
	return time.Since(t)
}

// Flush forces out any batched reading writes, used on shutdown.
func (s *InfluxSink) Flush() { s.readings.Flush() }

func readingToPoint(r model.Reading) *write.Point {
	tags := map[string]string{"type": string(r.Kind)}
	if r.Location != "" {
		tags["location"] = r.Location
	}
	if r.Device != "" {
		tags["device"] = r.Device
	}
	if r.Unit != "" {
		tags["unit"] = r.Unit
	}

	fields := map[string]interface{}{"status": r.Status}
	if r.Value != nil {
		fields["value"] = *r.Value
	}
	if r.State != "" {
		fields["state"] = r.State
	}
	if r.Color != "" {
		fields["color"] = r.Color
	}
	if r.Description != "" {
		fields["description"] = r.Description
	}
	if r.Pin != 0 {
		fields["pin"] = int64(r.Pin)
	}
	if r.Connected != nil {
		fields["connected"] = *r.Connected
	}
	if r.DeviceTimestamp != nil {
		fields["device_timestamp"] = r.DeviceTimestamp.UTC().Format(time.RFC3339)
	}
	return influxdb2.NewPoint(readingMeasurement, tags, fields, r.ServerTimestamp)
}

func actionToPoint(a model.ActuatorAction) *write.Point {
	tags := map[string]string{
		"actuator": a.Actuator,
		"source":   a.Source,
	}
	fields := map[string]interface{}{
		"state": a.State,
		// at least one field must always be present
		"count": int64(1),
	}
	if a.Reason != "" {
		fields["reason"] = a.Reason
	}
	if a.Value != nil {
		fields["value"] = *a.Value
	}
	if a.Unit != "" {
		fields["unit"] = a.Unit
	}
	return influxdb2.NewPoint(actionMeasurement, tags, fields, a.Timestamp)
}
