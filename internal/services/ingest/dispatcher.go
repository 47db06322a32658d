package ingest

import "log"

// HandlerFunc processes one raw message already routed to its topic.
type HandlerFunc func(payload []byte)

// Dispatcher routes each inbound message to exactly one handler by topic,
// regardless of which connection delivered it. Unknown topics are logged
// and dropped: broker subscriptions are a superset the system may grow
// into, so this is not an error condition.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

func NewDispatcher(handlers map[string]HandlerFunc) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Dispatch runs the handler registered for topic, if any.
func (d *Dispatcher) Dispatch(topic string, payload []byte) {
	h, ok := d.handlers[topic]
	if !ok {
		log.Printf("ingest: no handler for topic %s, message dropped", topic)
		messagesDropped.WithLabelValues(topic, "unknown_topic").Inc()
		return
	}
	h(payload)
}

// Topics returns the set of routed topics, used to cross-check the
// ownership table.
func (d *Dispatcher) Topics() []string {
	out := make([]string, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, t)
	}
	return out
}
