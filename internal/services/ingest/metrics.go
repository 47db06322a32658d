package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readingsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_readings_persisted_total",
		Help: "Normalized readings handed to the sink, by kind.",
	}, []string{"type"})

	messagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_messages_dropped_total",
		Help: "Inbound messages discarded during dispatch or normalization.",
	}, []string{"topic", "reason"})

	statusDuplicates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smarthome_status_duplicates_total",
		Help: "Actuator state reports suppressed as duplicates of the last recorded state.",
	}, []string{"actuator"})
)
