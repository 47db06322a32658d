package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/arqui-grupo4/smarthome-backend/internal/model"
)

// Normalizer converts raw topic payloads into Readings. Payloads that are
// not JSON objects degrade to {"value": "<raw>"} instead of being
// rejected; per-topic rules then decide whether anything usable remains.
// Every function returns ok=false for a discarded message, which is an
// expected outcome, not an error.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

func decodePayload(payload []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil || m == nil {
		return map[string]any{"value": strings.TrimSpace(string(payload))}
	}
	return m
}

// Temperature normalizes a /temperatura payload. Non-numeric temperature
// values are dropped, never persisted as null readings.
func (n *Normalizer) Temperature(payload []byte) (model.Reading, bool) {
	m := decodePayload(payload)
	v, ok := numField(m, "temperature")
	if !ok {
		return model.Reading{}, false
	}
	r := n.envReading(model.KindTemperature, v, model.UnitCelsius, m)
	return r, true
}

// Humidity normalizes a /humedad_aire payload, same rules as temperature.
func (n *Normalizer) Humidity(payload []byte) (model.Reading, bool) {
	m := decodePayload(payload)
	v, ok := numField(m, "humidity")
	if !ok {
		return model.Reading{}, false
	}
	r := n.envReading(model.KindHumidity, v, model.UnitPercent, m)
	return r, true
}

// envReading builds the common shape of temperature/humidity readings.
func (n *Normalizer) envReading(kind model.Kind, v float64, unit string, m map[string]any) model.Reading {
	loc := strField(m, "location")
	if loc == "" {
		loc = "interior"
	}
	return model.Reading{
		Kind:            kind,
		Value:           &v,
		Unit:            unit,
		Description:     strField(m, "description"),
		Location:        loc,
		Device:          strField(m, "device"),
		Pin:             int(numFieldOr(m, "pin", 0)),
		Connected:       boolFieldPtr(m, "connected"),
		DeviceTimestamp: timeField(m, "timestamp"),
		ServerTimestamp: n.now(),
	}
}

// Soil normalizes a /humedad_suelo payload. A reading explicitly marked
// connected=false is discarded outright: the probe is out of the ground
// and must not drive the pump. Field priority: digital 0/1, then percent,
// then a bare value (older firmware).
func (n *Normalizer) Soil(payload []byte) (model.Reading, bool) {
	m := decodePayload(payload)
	if c, ok := boolField(m, "connected"); ok && !c {
		return model.Reading{}, false
	}

	var (
		v    float64
		unit string
		ok   bool
	)
	if v, ok = numField(m, "soil_moisture_digital"); ok {
		unit = model.UnitDigital
	} else if v, ok = numField(m, "percent"); ok {
		unit = model.UnitPercent
	} else if v, ok = numField(m, "value"); ok {
		unit = ""
	} else {
		return model.Reading{}, false
	}

	return model.Reading{
		Kind:            model.KindSoil,
		Value:           &v,
		Unit:            unit,
		Description:     strField(m, "state"),
		Location:        strField(m, "location"),
		Device:          strField(m, "device"),
		Pin:             int(numFieldOr(m, "pin", 0)),
		Connected:       boolFieldPtr(m, "connected"),
		DeviceTimestamp: timeField(m, "timestamp"),
		ServerTimestamp: n.now(),
	}, true
}

// Illumination normalizes an /illumination payload from the RGB LED
// controller.
func (n *Normalizer) Illumination(payload []byte) (model.Reading, bool) {
	m := decodePayload(payload)
	state := strField(m, "state")
	color := strField(m, "color")
	value := color
	if value == "" {
		value = state
	}
	if value == "" {
		return model.Reading{}, false
	}
	room := strField(m, "room")
	desc := room
	if desc == "" {
		desc = "RGB LED"
	}
	return model.Reading{
		Kind:            model.KindLight,
		State:           value,
		Status:          state == "on",
		Color:           color,
		Description:     desc,
		Location:        room,
		ServerTimestamp: n.now(),
	}, true
}

// Entrance normalizes /entrance and /door/status payloads.
func (n *Normalizer) Entrance(payload []byte) (model.Reading, bool) {
	m := decodePayload(payload)
	action := strField(m, "action")
	if action == "" {
		action = strField(m, "state")
	}
	if action == "" {
		return model.Reading{}, false
	}
	return model.Reading{
		Kind:            model.KindDoor,
		State:           action,
		Status:          action == "open",
		Description:     "front door",
		Location:        "entrance",
		ServerTimestamp: n.now(),
	}, true
}

// Alert normalizes an /alerts payload; an empty message still registers as
// a generic triggered alarm.
func (n *Normalizer) Alert(payload []byte) (model.Reading, bool) {
	m := decodePayload(payload)
	msg := strField(m, "message")
	if msg == "" {
		msg = "alert triggered"
	}
	desc := strField(m, "description")
	if desc == "" {
		desc = "alarm system"
	}
	loc := strField(m, "location")
	if loc == "" {
		loc = "general"
	}
	return model.Reading{
		Kind:            model.KindAlarm,
		State:           msg,
		Status:          true,
		Description:     desc,
		Location:        loc,
		ServerTimestamp: n.now(),
	}, true
}

// Motion normalizes a /motion payload. Only the positive edge is recorded;
// absence of motion is not a reading.
func (n *Normalizer) Motion(payload []byte) (model.Reading, bool) {
	m := decodePayload(payload)
	mv, present := m["motion"]
	if !present {
		return model.Reading{}, false
	}
	detected := false
	switch t := mv.(type) {
	case bool:
		detected = t
	case string:
		detected = strings.EqualFold(strings.TrimSpace(t), "detected")
	}
	if !detected {
		return model.Reading{}, false
	}
	loc := strField(m, "location")
	if loc == "" {
		loc = "exterior"
	}
	return model.Reading{
		Kind:            model.KindMotion,
		State:           "detected",
		Status:          true,
		Description:     "PIR sensor",
		Location:        loc,
		ServerTimestamp: n.now(),
	}, true
}

// ActuatorStatus normalizes /pump, /pump/status and /fan/status payloads
// into an on/off reading of the given kind. Accepts state/value/fan/pump
// fields, case-insensitively, restricted to {on, off, true, false, 1, 0};
// anything else is ignored.
func (n *Normalizer) ActuatorStatus(kind model.Kind, payload []byte) (model.Reading, bool) {
	m := decodePayload(payload)
	var (
		on    bool
		found bool
	)
	for _, field := range []string{"state", "value", "fan", "pump"} {
		raw, present := m[field]
		if !present {
			continue
		}
		if v, ok := parseOnOff(raw); ok {
			on, found = v, true
			break
		}
	}
	if !found {
		return model.Reading{}, false
	}
	state := "off"
	if on {
		state = "on"
	}
	return model.Reading{
		Kind:            kind,
		State:           state,
		Status:          on,
		Device:          strField(m, "device"),
		Pin:             int(numFieldOr(m, "pin", 0)),
		DeviceTimestamp: timeField(m, "timestamp"),
		ServerTimestamp: n.now(),
	}, true
}

// parseOnOff maps the accepted on/off spellings to a boolean.
func parseOnOff(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		if t == 1 {
			return true, true
		}
		if t == 0 {
			return false, true
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "on", "true", "1":
			return true, true
		case "off", "false", "0":
			return false, true
		}
	}
	return false, false
}

// ----- loose-field helpers (payload shapes vary per device firmware) -----

func numField(m map[string]any, key string) (float64, bool) {
	switch t := m[key].(type) {
	case float64:
		return t, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func numFieldOr(m map[string]any, key string, def float64) float64 {
	if v, ok := numField(m, key); ok {
		return v
	}
	return def
}

func strField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func boolField(m map[string]any, key string) (bool, bool) {
	b, ok := m[key].(bool)
	return b, ok
}

func boolFieldPtr(m map[string]any, key string) *bool {
	if b, ok := m[key].(bool); ok {
		return &b
	}
	return nil
}

// timeField accepts RFC3339 strings and unix-seconds numbers, the two
// timestamp shapes the board scripts produce.
func timeField(m map[string]any, key string) *time.Time {
	switch t := m[key].(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(t)); err == nil {
			return &ts
		}
	case float64:
		if t > 0 {
			ts := time.Unix(int64(t), int64((t-float64(int64(t)))*1e9))
			return &ts
		}
	}
	return nil
}
