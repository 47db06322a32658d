package control

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/arqui-grupo4/smarthome-backend/internal/model"
	"github.com/arqui-grupo4/smarthome-backend/internal/model/messages"
)

// wetDryGap is forced between the thresholds whenever a config update
// would leave wet <= dry, so the controller is always in a legal state.
const wetDryGap = 1.0

// PumpConfig is the runtime-mutable tuning of the pump controller.
type PumpConfig struct {
	Enabled           bool
	DryThreshold      float64 // percent; at or below -> dry
	WetThreshold      float64 // percent; at or above -> wet, always > dry
	DigitalDryValue   float64 // digital sensors: equality with this means dry
	MinOnDuration     time.Duration
	MinChangeInterval time.Duration
}

// DefaultPumpConfig matches the garden deployment.
func DefaultPumpConfig() PumpConfig {
	return PumpConfig{
		Enabled:           true,
		DryThreshold:      30,
		WetThreshold:      40,
		DigitalDryValue:   0,
		MinOnDuration:     30 * time.Second,
		MinChangeInterval: 10 * time.Second,
	}
}

// normalized auto-corrects an illegal threshold pair instead of rejecting
// the update.
func (c PumpConfig) normalized() PumpConfig {
	if c.WetThreshold <= c.DryThreshold {
		c.WetThreshold = c.DryThreshold + wetDryGap
	}
	return c
}

// PumpPublisher is the outbound path for pump commands.
type PumpPublisher interface {
	PublishPump(cmd messages.PumpCommand) error
}

// PumpController is the soil-moisture→pump hysteresis state machine.
// Single instance, owned state behind mu; the two broker connections may
// call into it concurrently.
type PumpController struct {
	mu           sync.Mutex
	cfg          PumpConfig
	isOn         bool
	lastChangeAt time.Time
	lastRecorded TriState

	pub PumpPublisher
	rec ActionRecorder
	now func() time.Time
}

func NewPumpController(cfg PumpConfig, pub PumpPublisher, rec ActionRecorder) *PumpController {
	return &PumpController{cfg: cfg.normalized(), pub: pub, rec: rec, now: time.Now}
}

// UpdateConfig swaps the tuning at runtime, auto-correcting wet<=dry, and
// returns the config actually applied.
func (p *PumpController) UpdateConfig(cfg PumpConfig) PumpConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg.normalized()
	log.Printf("control: pump config updated: %+v", p.cfg)
	return p.cfg
}

// Config returns a copy of the active tuning.
func (p *PumpController) Config() PumpConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// HandleSoil evaluates the state machine for one soil-moisture reading.
// Unit is "%", "digital" or empty; unit-less readings fall back to the
// percent thresholds, as the garden sensors predating the digital probe
// reported bare values.
func (p *PumpController) HandleSoil(value float64, unit string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cfg.Enabled {
		return
	}
	now := p.now()

	// Anti-spam guard: no change in either direction within the interval.
	if !p.lastChangeAt.IsZero() && now.Sub(p.lastChangeAt) < p.cfg.MinChangeInterval {
		return
	}

	var wantOn, wantOff bool
	if unit == model.UnitDigital {
		dry := value == p.cfg.DigitalDryValue
		wantOn = !p.isOn && dry
		wantOff = p.isOn && !dry
	} else {
		wantOn = !p.isOn && value <= p.cfg.DryThreshold
		wantOff = p.isOn && value >= p.cfg.WetThreshold
	}

	switch {
	case wantOn:
		p.transition(true, value, unit, now)
	case wantOff:
		// Minimum-runtime guard: never short-cycle the pump off, even if
		// the wet threshold is already satisfied.
		if now.Sub(p.lastChangeAt) < p.cfg.MinOnDuration {
			log.Printf("control: pump off suppressed, on for %s < min %s",
				now.Sub(p.lastChangeAt).Truncate(time.Millisecond), p.cfg.MinOnDuration)
			return
		}
		p.transition(false, value, unit, now)
	}
}

// transition publishes the command, then speculatively applies the new
// state and records the action. The actuator's own echo on /pump/status is
// absorbed by ObserveStatus, which sees the same recorded state. Caller
// holds mu.
func (p *PumpController) transition(on bool, value float64, unit string, now time.Time) {
	state := "off"
	if on {
		state = "on"
	}
	cmd := messages.PumpCommand{State: state, Source: "backend", Value: value, Unit: unit}
	if err := p.pub.PublishPump(cmd); err != nil {
		log.Printf("control: pump %s command not published: %v", state, err)
		return
	}
	p.isOn = on
	p.lastChangeAt = now
	p.lastRecorded = triOf(on)
	p.rec.RecordAction(model.ActuatorAction{
		Actuator:  "pump",
		State:     state,
		Source:    "backend",
		Reason:    fmt.Sprintf("soil moisture %.1f%s", value, unit),
		Value:     &value,
		Unit:      unit,
		Timestamp: now,
	})
}

// ObserveStatus ingests a pump state report and reports whether it changed
// anything. Equal reports are no-ops so periodic echoes do not produce
// duplicate history.
func (p *PumpController) ObserveStatus(on bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRecorded == triOf(on) {
		return false
	}
	p.lastRecorded = triOf(on)
	p.isOn = on
	return true
}

// IsOn reports the current logical state.
func (p *PumpController) IsOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isOn
}
