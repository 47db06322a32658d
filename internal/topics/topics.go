// Package topics is the single source of truth for the MQTT topic layout:
// which topics exist, which connection owns each one, and at what QoS it
// is subscribed. Both the inbound dispatcher and the outbound command
// publisher consult the same table so the two can never diverge.
package topics

// Topic names as published by the board firmware. The Spanish telemetry
// names come from the sensor scripts and are part of the wire contract.
const (
	Temperature  = "/temperatura"
	Humidity     = "/humedad_aire"
	Soil         = "/humedad_suelo"
	Motion       = "/motion"
	Illumination = "/illumination"
	Entrance     = "/entrance"
	DoorStatus   = "/door/status"
	Alerts       = "/alerts"
	Pump         = "/pump"
	PumpStatus   = "/pump/status"
	Fan          = "/fan"
	FanStatus    = "/fan/status"
)

// ConnName names one of the two broker connections.
type ConnName string

const (
	Primary   ConnName = "primary"
	Secondary ConnName = "secondary"
)

// Owner maps every topic the core touches (inbound or outbound) to the
// connection that owns it. Primary carries environmental telemetry and
// actuator state, secondary carries device/state events.
var Owner = map[string]ConnName{
	Temperature:  Primary,
	Humidity:     Primary,
	Soil:         Primary,
	Pump:         Primary,
	PumpStatus:   Primary,
	Fan:          Primary,
	FanStatus:    Primary,
	Motion:       Secondary,
	Illumination: Secondary,
	Entrance:     Secondary,
	DoorStatus:   Secondary,
	Alerts:       Secondary,
}

// Subscriptions returns the topic→QoS set owned by the given connection.
// /fan is outbound-only (fan state comes back on /fan/status), /pump is
// both: manual pump commands from other clients arrive there too.
func Subscriptions(conn ConnName) map[string]byte {
	out := make(map[string]byte)
	for t, owner := range Owner {
		if owner != conn || t == Fan {
			continue
		}
		out[t] = QoS(t)
	}
	return out
}

// QoS returns the per-topic QoS. Commands need delivery acknowledgment,
// alerts may be redelivered (deduplicated downstream); everything else is
// fire-and-forget telemetry.
func QoS(topic string) byte {
	switch topic {
	case Pump, Fan, Alerts:
		return 1
	}
	return 0
}
