// Package control runs the two hysteresis controllers (irrigation pump by
// soil moisture, cooling fan by temperature). Controllers are evaluated
// inline with message handling, once per relevant reading; there is no
// polling loop. Both broker connections may deliver concurrently, so every
// access to controller state goes through the controller's mutex.
package control

import (
	"github.com/arqui-grupo4/smarthome-backend/internal/model"
)

// TriState tracks the last externally observed actuator state. Unset until
// the first status echo or transition is seen.
type TriState int

const (
	StateUnset TriState = iota
	StateOff
	StateOn
)

func triOf(on bool) TriState {
	if on {
		return StateOn
	}
	return StateOff
}

// ActionRecorder persists and emits the auxiliary actuator-action record
// produced on each decided transition. Failures are the recorder's problem:
// a command already published is never rolled back.
type ActionRecorder interface {
	RecordAction(a model.ActuatorAction)
}
