package ingest

import (
	"encoding/json"
	"net/http"
	"time"
)

// ConnStatus is what the health handlers need from a broker connection.
type ConnStatus interface {
	Name() string
	IsUp() bool
}

// ErrorAged reports how long ago the sink last failed a write.
type ErrorAged interface {
	LastErrorAge() time.Duration
}

type healthHandler struct {
	conns []ConnStatus
	sink  ErrorAged
}

// NewHealthHandler serves /healthz: ok when both connections are open and
// no recent sink write errors; degraded while at least one connection is
// up; down otherwise. Never fails the process.
func NewHealthHandler(sink ErrorAged, conns ...ConnStatus) http.Handler {
	return &healthHandler{conns: conns, sink: sink}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	type status struct {
		Status          string          `json:"status"`
		Connections     map[string]bool `json:"connections"`
		LastWriteErrorS float64         `json:"last_write_error_age_sec"`
	}
	st := status{Connections: make(map[string]bool, len(h.conns))}
	up := 0
	for _, c := range h.conns {
		open := c.IsUp()
		st.Connections[c.Name()] = open
		if open {
			up++
		}
	}
	st.LastWriteErrorS = h.sink.LastErrorAge().Seconds()

	switch {
	case up == len(h.conns) && h.sink.LastErrorAge() > 30*time.Second:
		st.Status = "ok"
	case up > 0:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

type readyHandler struct {
	conns    []ConnStatus
	sink     ErrorAged
	minError time.Duration
}

// NewReadyHandler serves /readyz: 200 only when every dependency is up.
func NewReadyHandler(sink ErrorAged, minOkErrorAge time.Duration, conns ...ConnStatus) http.Handler {
	return &readyHandler{conns: conns, sink: sink, minError: minOkErrorAge}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	ready := h.sink.LastErrorAge() > h.minError
	for _, c := range h.conns {
		if !c.IsUp() {
			ready = false
		}
	}
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Ready bool `json:"ready"`
	}{ready})
}
