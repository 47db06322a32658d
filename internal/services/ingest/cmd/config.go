package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/arqui-grupo4/smarthome-backend/internal/services/control"
	"github.com/arqui-grupo4/smarthome-backend/pkg/mqttconn"
)

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64); err == nil {
			return f
		}
	}
	return def
}

type config struct {
	Primary   mqttconn.Config
	Secondary mqttconn.Config

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	BatchSize     int
	FlushInterval time.Duration

	HTTPPort       int
	ReadinessGrace time.Duration

	Pump              control.PumpConfig
	ControlConfigFile string
}

func loadConfig() config {
	host := envStr("HOSTNAME", "ingest")
	return config{
		Primary: mqttconn.Config{
			Name:     "primary",
			Host:     envStr("MQTT_PRIMARY_HOST", "localhost"),
			Port:     envInt("MQTT_PRIMARY_PORT", 1883),
			User:     envStr("MQTT_PRIMARY_USER", ""),
			Password: envStr("MQTT_PRIMARY_PASSWORD", ""),
			ClientID: envStr("MQTT_PRIMARY_CLIENT_ID", host+"-primary"),
			TLS:      envBool("MQTT_PRIMARY_TLS", false),
		},
		Secondary: mqttconn.Config{
			Name:     "secondary",
			Host:     envStr("MQTT_SECONDARY_HOST", "localhost"),
			Port:     envInt("MQTT_SECONDARY_PORT", 1883),
			User:     envStr("MQTT_SECONDARY_USER", ""),
			Password: envStr("MQTT_SECONDARY_PASSWORD", ""),
			ClientID: envStr("MQTT_SECONDARY_CLIENT_ID", host+"-secondary"),
			TLS:      envBool("MQTT_SECONDARY_TLS", false),
		},

		InfluxURL:    envStr("INFLUX_URL", "http://localhost:8086"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    envStr("INFLUX_ORG", "smarthome"),
		InfluxBucket: envStr("INFLUX_BUCKET", "readings"),

		BatchSize:     envInt("WRITE_BATCH_SIZE", 10),
		FlushInterval: time.Duration(envInt("WRITE_FLUSH_INTERVAL_MS", 200)) * time.Millisecond,

		HTTPPort:       envInt("HTTP_PORT", 8080),
		ReadinessGrace: 5 * time.Second,

		Pump: control.PumpConfig{
			Enabled:           envBool("AUTO_PUMP_ENABLED", true),
			DryThreshold:      envFloat("PUMP_DRY_THRESHOLD", 30),
			WetThreshold:      envFloat("PUMP_WET_THRESHOLD", 40),
			DigitalDryValue:   envFloat("PUMP_DIGITAL_DRY_VALUE", 0),
			MinOnDuration:     time.Duration(envInt("PUMP_MIN_ON_MS", 30000)) * time.Millisecond,
			MinChangeInterval: time.Duration(envInt("PUMP_MIN_CHANGE_MS", 10000)) * time.Millisecond,
		},
		ControlConfigFile: envStr("CONTROL_CONFIG_FILE", ""),
	}
}

// pumpConfigFromViper overlays the watched file on top of the env-derived
// base; keys absent from the file keep their base values.
func pumpConfigFromViper(v *viper.Viper, base control.PumpConfig) control.PumpConfig {
	out := base
	if v.IsSet("pump.enabled") {
		out.Enabled = v.GetBool("pump.enabled")
	}
	if v.IsSet("pump.dry_threshold") {
		out.DryThreshold = v.GetFloat64("pump.dry_threshold")
	}
	if v.IsSet("pump.wet_threshold") {
		out.WetThreshold = v.GetFloat64("pump.wet_threshold")
	}
	if v.IsSet("pump.digital_dry_value") {
		out.DigitalDryValue = v.GetFloat64("pump.digital_dry_value")
	}
	if v.IsSet("pump.min_on_ms") {
		out.MinOnDuration = time.Duration(v.GetInt("pump.min_on_ms")) * time.Millisecond
	}
	if v.IsSet("pump.min_change_ms") {
		out.MinChangeInterval = time.Duration(v.GetInt("pump.min_change_ms")) * time.Millisecond
	}
	return out
}

// watchControlConfig applies the control file now and on every write,
// debounced: editors tend to fire several events per save. Threshold
// sanity (wet > dry) is enforced by the controller itself.
func watchControlConfig(path string, base control.PumpConfig, pump *control.PumpController) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	pump.UpdateConfig(pumpConfigFromViper(v, base))

	var lastChange time.Time
	const debounce = 2 * time.Second
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&fsnotify.Write != fsnotify.Write {
			return
		}
		now := time.Now()
		if now.Sub(lastChange) < debounce {
			return
		}
		lastChange = now

		if err := v.ReadInConfig(); err != nil {
			log.Printf("config: control file reload failed: %v", err)
			return
		}
		applied := pump.UpdateConfig(pumpConfigFromViper(v, base))
		log.Printf("config: control file %s reloaded: %+v", e.Name, applied)
	})
	v.WatchConfig()
	return nil
}
