package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arqui-grupo4/smarthome-backend/internal/services/control"
	"github.com/arqui-grupo4/smarthome-backend/internal/services/ingest"
	"github.com/arqui-grupo4/smarthome-backend/internal/topics"
	"github.com/arqui-grupo4/smarthome-backend/pkg/mqttconn"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === InfluxDB ===
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(cfg.BatchSize)).
		SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	influx := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)
	defer influx.Close()
	sink := ingest.NewInfluxSink(influx, cfg.InfluxOrg, cfg.InfluxBucket)

	// === Fan-out + controllers + pipeline ===
	hub := ingest.NewHub()
	actions := ingest.NewActionLog(sink, hub)
	pub := control.NewCommandPublisher()
	pump := control.NewPumpController(cfg.Pump, pub, actions)
	fan := control.NewFanController(pub, actions)
	svc := ingest.NewService(sink, hub, pump, fan)

	if cfg.ControlConfigFile != "" {
		if err := watchControlConfig(cfg.ControlConfigFile, cfg.Pump, pump); err != nil {
			log.Printf("main: control config file unusable, keeping env values: %v", err)
		}
	}

	// === MQTT connections ===
	// The primary carries the telemetry the controllers depend on and is
	// mandatory; a missing secondary only degrades the device-event feed.
	primary, err := mqttconn.Dial(ctx, cfg.Primary, topics.Subscriptions(topics.Primary), svc.HandleMessage)
	if err != nil {
		log.Fatalf("main: primary connection: %v", err)
	}
	pub.Register(topics.Primary, primary)

	secondary, err := mqttconn.Dial(ctx, cfg.Secondary, topics.Subscriptions(topics.Secondary), svc.HandleMessage)
	if err != nil {
		log.Printf("main: secondary connection unavailable, continuing degraded: %v", err)
	} else {
		pub.Register(topics.Secondary, secondary)
	}

	// === HTTP ===
	conns := []ingest.ConnStatus{primary}
	if secondary != nil {
		conns = append(conns, secondary)
	}
	mux := http.NewServeMux()
	mux.Handle("/healthz", ingest.NewHealthHandler(sink, conns...))
	mux.Handle("/readyz", ingest.NewReadyHandler(sink, 2*time.Second, conns...))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/ws", hub)

	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("ingest: HTTP listening on :%d", cfg.HTTPPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// === Wait for signal ===
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Printf("ingest: shutting down...")

	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.ReadinessGrace)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
	hub.Close()

	// Close connections (in-flight evaluations are not awaited) and let
	// the batched reading writes drain.
	cancel()
	sink.Flush()
	time.Sleep(cfg.FlushInterval + 100*time.Millisecond)
}
