package control

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/arqui-grupo4/smarthome-backend/internal/model"
	"github.com/arqui-grupo4/smarthome-backend/internal/model/messages"
)

// Fixed fan thresholds: the 1 °C gap between on and off plus the 5 s guard
// keep the fan from oscillating when the temperature hovers near 20 °C.
const (
	fanOnThreshold  = 20.0
	fanOffThreshold = 19.0
	fanMinInterval  = 5 * time.Second
)

// FanPublisher is the outbound path for fan commands.
type FanPublisher interface {
	PublishFan(cmd messages.FanCommand) error
}

// FanController is the temperature→fan hysteresis state machine. Single
// instance, lives for the process lifetime, all state behind mu.
type FanController struct {
	mu           sync.Mutex
	isOn         bool
	lastOnAt     time.Time
	lastChangeAt time.Time
	lastRecorded TriState

	pub FanPublisher
	rec ActionRecorder
	now func() time.Time
}

func NewFanController(pub FanPublisher, rec ActionRecorder) *FanController {
	return &FanController{pub: pub, rec: rec, now: time.Now}
}

// HandleTemperature evaluates the state machine for one temperature
// reading. A failed publish leaves the controller in its prior logical
// state; the next qualifying reading gives a fresh chance.
func (f *FanController) HandleTemperature(value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()

	switch {
	case !f.isOn && value >= fanOnThreshold:
		// Turn on unless the fan is already recorded on and was switched
		// on moments ago (loop-back echo racing the next reading).
		if f.lastRecorded == StateOn && now.Sub(f.lastOnAt) < fanMinInterval {
			return
		}
		reason := fmt.Sprintf("temperature %.1f°C >= %.1f°C", value, fanOnThreshold)
		if !f.transition(true, value, reason, now) {
			return
		}
		f.lastOnAt = now

	case f.isOn && value <= fanOffThreshold:
		if now.Sub(f.lastChangeAt) < fanMinInterval {
			return
		}
		reason := fmt.Sprintf("temperature %.1f°C <= %.1f°C", value, fanOffThreshold)
		f.transition(false, value, reason, now)
	}
}

// transition publishes the command and, on success, applies the new state
// and records the action. Caller holds mu.
func (f *FanController) transition(on bool, value float64, reason string, now time.Time) bool {
	state := "off"
	if on {
		state = "on"
	}
	cmd := messages.FanCommand{State: state, Source: "backend", Reason: reason}
	if err := f.pub.PublishFan(cmd); err != nil {
		log.Printf("control: fan %s command not published: %v", state, err)
		return false
	}
	f.isOn = on
	f.lastChangeAt = now
	f.lastRecorded = triOf(on)
	f.rec.RecordAction(model.ActuatorAction{
		Actuator:  "fan",
		State:     state,
		Source:    "backend",
		Reason:    reason,
		Value:     &value,
		Unit:      model.UnitCelsius,
		Timestamp: now,
	})
	return true
}

// ObserveStatus ingests a state report echoed by the fan itself and
// reports whether it changed anything. Reports equal to the last recorded
// state are no-ops, so periodic status echoes do not fabricate history.
func (f *FanController) ObserveStatus(on bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastRecorded == triOf(on) {
		return false
	}
	f.lastRecorded = triOf(on)
	f.isOn = on
	if on {
		f.lastOnAt = f.now()
	}
	return true
}

// IsOn reports the current logical state.
func (f *FanController) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isOn
}
