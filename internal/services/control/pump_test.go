package control

import (
	"errors"
	"testing"
	"time"

	"github.com/arqui-grupo4/smarthome-backend/internal/model"
)

func testPumpConfig() PumpConfig {
	return PumpConfig{
		Enabled:           true,
		DryThreshold:      30,
		WetThreshold:      40,
		DigitalDryValue:   0,
		MinOnDuration:     5 * time.Second,
		MinChangeInterval: 1 * time.Second,
	}
}

func newTestPump(cfg PumpConfig) (*PumpController, *fakeCommander, *fakeRecorder, *fakeClock) {
	pub := &fakeCommander{}
	rec := &fakeRecorder{}
	clock := newFakeClock()
	p := NewPumpController(cfg, pub, rec)
	p.now = clock.now
	return p, pub, rec, clock
}

func TestPumpPercentThresholds(t *testing.T) {
	p, pub, rec, clock := newTestPump(testPumpConfig())

	// 25 % <= dry threshold: turn on.
	p.HandleSoil(25, model.UnitPercent)
	if !p.IsOn() {
		t.Fatalf("pump should be on at 25%%")
	}
	if len(pub.pumps) != 1 || pub.pumps[0].State != "on" {
		t.Fatalf("expected one on command, got %+v", pub.pumps)
	}
	if pub.pumps[0].Value != 25 || pub.pumps[0].Unit != model.UnitPercent {
		t.Fatalf("command must carry the triggering reading, got %+v", pub.pumps[0])
	}

	// Wet reading before the minimum runtime: stays on.
	clock.advance(2 * time.Second)
	p.HandleSoil(45, model.UnitPercent)
	if !p.IsOn() {
		t.Fatalf("pump must not short-cycle off before MinOnDuration")
	}

	// Same wet reading after the minimum runtime: turns off.
	clock.advance(4 * time.Second)
	p.HandleSoil(45, model.UnitPercent)
	if p.IsOn() {
		t.Fatalf("pump should be off after MinOnDuration elapsed")
	}
	if len(pub.pumps) != 2 || pub.pumps[1].State != "off" {
		t.Fatalf("expected on+off commands, got %+v", pub.pumps)
	}
	if len(rec.actions) != 2 {
		t.Fatalf("expected 2 action records, got %d", len(rec.actions))
	}
}

func TestPumpMinChangeInterval(t *testing.T) {
	p, pub, _, clock := newTestPump(testPumpConfig())

	p.HandleSoil(25, model.UnitPercent)
	if !p.IsOn() {
		t.Fatalf("pump should be on")
	}

	// Any reading inside the anti-spam window is ignored entirely.
	clock.advance(500 * time.Millisecond)
	p.HandleSoil(45, model.UnitPercent)
	if !p.IsOn() || len(pub.pumps) != 1 {
		t.Fatalf("no evaluation inside MinChangeInterval, got %+v", pub.pumps)
	}
}

func TestPumpDigitalSensor(t *testing.T) {
	p, pub, _, clock := newTestPump(testPumpConfig())

	// Digital 0 == configured dry value: turn on.
	p.HandleSoil(0, model.UnitDigital)
	if !p.IsOn() {
		t.Fatalf("pump should turn on for digital dry reading")
	}

	// Digital 1 != dry value after the guards: turn off.
	clock.advance(6 * time.Second)
	p.HandleSoil(1, model.UnitDigital)
	if p.IsOn() {
		t.Fatalf("pump should turn off for digital wet reading")
	}
	if len(pub.pumps) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(pub.pumps))
	}
}

func TestPumpUnitlessFallsBackToPercent(t *testing.T) {
	p, _, _, _ := newTestPump(testPumpConfig())

	// Unit-less readings use the percent heuristic.
	p.HandleSoil(20, "")
	if !p.IsOn() {
		t.Fatalf("unit-less dry reading should turn the pump on")
	}
}

func TestPumpDisabled(t *testing.T) {
	cfg := testPumpConfig()
	cfg.Enabled = false
	p, pub, _, _ := newTestPump(cfg)

	p.HandleSoil(5, model.UnitPercent)
	if p.IsOn() || len(pub.pumps) != 0 {
		t.Fatalf("disabled controller must not act, got %+v", pub.pumps)
	}
}

func TestPumpPublishFailureKeepsState(t *testing.T) {
	p, pub, rec, clock := newTestPump(testPumpConfig())
	pub.err = errors.New("no transport available")

	p.HandleSoil(25, model.UnitPercent)
	if p.IsOn() {
		t.Fatalf("failed publish must leave the pump logically off")
	}
	if len(rec.actions) != 0 {
		t.Fatalf("no action record on failed publish")
	}

	// Next qualifying reading retries once the transport is back.
	pub.err = nil
	clock.advance(2 * time.Second)
	p.HandleSoil(25, model.UnitPercent)
	if !p.IsOn() {
		t.Fatalf("pump should turn on after transport recovery")
	}
}

func TestPumpConfigAutoCorrection(t *testing.T) {
	p, _, _, _ := newTestPump(testPumpConfig())

	applied := p.UpdateConfig(PumpConfig{
		Enabled:           true,
		DryThreshold:      50,
		WetThreshold:      45, // illegal: wet <= dry
		MinOnDuration:     time.Second,
		MinChangeInterval: time.Second,
	})
	if applied.WetThreshold != 51 {
		t.Fatalf("wet threshold should be raised to dry+1, got %v", applied.WetThreshold)
	}

	// Equality is corrected too, and never rejected.
	applied = p.UpdateConfig(PumpConfig{DryThreshold: 30, WetThreshold: 30})
	if applied.WetThreshold != 31 {
		t.Fatalf("equal thresholds should be corrected, got %v", applied.WetThreshold)
	}
}

func TestPumpObserveStatusSuppressesDuplicates(t *testing.T) {
	p, _, _, _ := newTestPump(testPumpConfig())

	if !p.ObserveStatus(true) {
		t.Fatalf("first report must be new")
	}
	if p.ObserveStatus(true) {
		t.Fatalf("echoed report must be suppressed")
	}
	if !p.ObserveStatus(false) {
		t.Fatalf("flip must register")
	}
}

func TestPumpLoopBackEchoIsDuplicate(t *testing.T) {
	p, _, _, _ := newTestPump(testPumpConfig())

	// The controller turns the pump on; the actuator echoes "on" back via
	// the status topic. That echo must not register as a new observation.
	p.HandleSoil(25, model.UnitPercent)
	if !p.IsOn() {
		t.Fatalf("pump should be on")
	}
	if p.ObserveStatus(true) {
		t.Fatalf("loop-back echo of our own command must be a no-op")
	}
}
