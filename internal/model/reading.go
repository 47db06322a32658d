package model

import "time"

// Kind identifies what a Reading measures or reports.
type Kind string

const (
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindSoil        Kind = "soil"
	KindLight       Kind = "light"
	KindDoor        Kind = "door"
	KindMotion      Kind = "motion"
	KindAlarm       Kind = "alarm"
	KindPump        Kind = "pump"
	KindFan         Kind = "fan"
)

// Units used by the board firmware.
const (
	UnitCelsius = "°C"
	UnitPercent = "%"
	UnitDigital = "digital"
)

// Reading is the normalized form of every inbound sensor or actuator event.
// Numeric kinds carry Value, symbolic kinds carry State; never both.
// ServerTimestamp is set at normalization time and is authoritative for
// ordering; DeviceTimestamp is whatever the origin device reported.
type Reading struct {
	Kind            Kind       `json:"type"`
	Value           *float64   `json:"value,omitempty"`
	State           string     `json:"state,omitempty"`
	Unit            string     `json:"unit,omitempty"`
	Status          bool       `json:"status"`
	Description     string     `json:"description,omitempty"`
	Location        string     `json:"location,omitempty"`
	Device          string     `json:"device,omitempty"`
	Pin             int        `json:"pin,omitempty"`
	Color           string     `json:"color,omitempty"`
	Connected       *bool      `json:"connected,omitempty"`
	DeviceTimestamp *time.Time `json:"deviceTimestamp,omitempty"`
	ServerTimestamp time.Time  `json:"timestamp"`
}

// ActuatorAction is the auxiliary record persisted whenever the control
// engine decides a transition, distinct from the sensor reading that
// triggered it.
type ActuatorAction struct {
	Actuator  string    `json:"actuator"` // pump | fan
	State     string    `json:"state"`    // on | off
	Source    string    `json:"source"`
	Reason    string    `json:"reason,omitempty"`
	Value     *float64  `json:"value,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
