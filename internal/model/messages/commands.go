package messages

// FanCommand is published on /fan when the control engine decides a
// transition. The board echoes the applied state back on /fan/status.
type FanCommand struct {
	State  string `json:"state"`  // on | off
	Source string `json:"source"` // always "backend" for automatic control
	Reason string `json:"reason"`
}

// PumpCommand is published on /pump. Value/Unit carry the soil reading
// that triggered the decision, for traceability on the device side.
type PumpCommand struct {
	State  string  `json:"state"`
	Source string  `json:"source"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
}
