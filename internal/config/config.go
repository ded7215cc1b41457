// Package config loads controller settings from defaults, an optional YAML
// file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"furitingoasis/greenhouse/internal/control"
	"furitingoasis/greenhouse/internal/controller"
	"furitingoasis/greenhouse/internal/sensors"
)

type EnvKey string

const (
	EnvConfigFile EnvKey = "GREENHOUSE_CONFIG"
	EnvLogLevel   EnvKey = "LOG_LEVEL"

	EnvMQTTBroker      EnvKey = "MQTT_BROKER"
	EnvMQTTClientID    EnvKey = "MQTT_CLIENT_ID"
	EnvMQTTUsername    EnvKey = "MQTT_USERNAME"
	EnvMQTTPassword    EnvKey = "MQTT_PASSWORD"
	EnvMQTTTopicPrefix EnvKey = "MQTT_TOPIC_PREFIX"

	EnvHistoryPath      EnvKey = "HISTORY_PATH"
	EnvHistoryRetention EnvKey = "HISTORY_RETENTION"

	EnvSiteAddr  EnvKey = "SITE_ADDR"
	EnvSiteLimit EnvKey = "SITE_LIMIT"
)

type Config struct {
	LogLevel   slog.Level         `yaml:"log_level"`
	Thresholds control.Thresholds `yaml:"thresholds"`
	Timing     controller.Timing  `yaml:"timing"`
	Pins       Pins               `yaml:"pins"`
	MQTT       MQTT               `yaml:"mqtt"`
	History    History            `yaml:"history"`
	SiteAddr   string             `yaml:"site_addr"`
	SiteLimit  int                `yaml:"site_limit"`
}

// Pins are raspi header pin names; Analog names ADS1115 channels.
type Pins struct {
	Button          string           `yaml:"button"`
	ButtonActiveLow bool             `yaml:"button_active_low"`
	Heater          string           `yaml:"heater"`
	HumidityRelay   string           `yaml:"humidity_relay"`
	GrowLight       string           `yaml:"grow_light"`
	Alert           string           `yaml:"alert"`
	Vent            string           `yaml:"vent"`
	RelayActiveLow  bool             `yaml:"relay_active_low"`
	Analog          sensors.Channels `yaml:"analog"`
	ADCReference    float64          `yaml:"adc_reference_volts"`
}

type MQTT struct {
	Broker        string        `yaml:"broker"`
	ClientID      string        `yaml:"client_id"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	TopicPrefix   string        `yaml:"topic_prefix"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// Enabled reports whether a broker is configured.
func (m MQTT) Enabled() bool { return m.Broker != "" }

// History.WriteTimeout must stay below the monitoring interval.
type History struct {
	Path          string        `yaml:"path"`
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

func (h History) Enabled() bool { return h.Path != "" }

func Default() *Config {
	return &Config{
		LogLevel:   slog.LevelInfo,
		Thresholds: control.DefaultThresholds(),
		Timing:     controller.DefaultTiming(),
		Pins: Pins{
			Button:          "18",
			ButtonActiveLow: true,
			Heater:          "11",
			HumidityRelay:   "13",
			GrowLight:       "15",
			Alert:           "16",
			Vent:            "12",
			Analog: sensors.Channels{
				Soil:        "0",
				AirHumidity: "1",
				Light:       "2",
				Temperature: "3",
			},
			ADCReference: sensors.ReferenceVolts,
		},
		MQTT: MQTT{
			ClientID:      "greenhouse-controller",
			TopicPrefix:   "greenhouse",
			MaxRetries:    3,
			RetryInterval: 2 * time.Second,
		},
		History: History{
			Retention:     48 * time.Hour,
			PruneInterval: time.Hour,
			WriteTimeout:  100 * time.Millisecond,
		},
		SiteAddr:  ":8080",
		SiteLimit: 200,
	}
}

// Load builds the configuration for the controller and the site.
func Load() (*Config, error) {
	cfg := Default()

	if path := getStringEnv(EnvConfigFile, ""); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()
		if err := cfg.Decode(f); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Decode overlays YAML from r onto cfg. Keys absent from the document keep
// their current values.
func (cfg *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func (cfg *Config) applyEnv() error {
	level, err := getLogLevelEnv(EnvLogLevel, cfg.LogLevel)
	if err != nil {
		return err
	}
	cfg.LogLevel = level

	cfg.MQTT.Broker = getStringEnv(EnvMQTTBroker, cfg.MQTT.Broker)
	cfg.MQTT.ClientID = getStringEnv(EnvMQTTClientID, cfg.MQTT.ClientID)
	cfg.MQTT.Username = getStringEnv(EnvMQTTUsername, cfg.MQTT.Username)
	cfg.MQTT.Password = getStringEnv(EnvMQTTPassword, cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = getStringEnv(EnvMQTTTopicPrefix, cfg.MQTT.TopicPrefix)

	cfg.History.Path = getStringEnv(EnvHistoryPath, cfg.History.Path)
	retention, err := getDurationEnv(EnvHistoryRetention, cfg.History.Retention)
	if err != nil {
		return err
	}
	cfg.History.Retention = retention

	cfg.SiteAddr = getStringEnv(EnvSiteAddr, cfg.SiteAddr)
	limit, err := getIntEnv(EnvSiteLimit, cfg.SiteLimit)
	if err != nil {
		return err
	}
	cfg.SiteLimit = limit
	return nil
}

func (cfg *Config) Validate() error {
	var errs []error
	if err := cfg.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thresholds: %w", err))
	}
	if err := cfg.Timing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("timing: %w", err))
	}

	p := cfg.Pins
	for name, pin := range map[string]string{
		"button":              p.Button,
		"heater":              p.Heater,
		"humidity_relay":      p.HumidityRelay,
		"grow_light":          p.GrowLight,
		"alert":               p.Alert,
		"vent":                p.Vent,
		"analog.temperature":  p.Analog.Temperature,
		"analog.soil":         p.Analog.Soil,
		"analog.air_humidity": p.Analog.AirHumidity,
		"analog.light":        p.Analog.Light,
	} {
		if strings.TrimSpace(pin) == "" {
			errs = append(errs, fmt.Errorf("pins.%s is empty", name))
		}
	}
	if p.ADCReference <= 0 {
		errs = append(errs, errors.New("pins.adc_reference_volts must be positive"))
	}

	if cfg.MQTT.Enabled() {
		if cfg.MQTT.ClientID == "" || cfg.MQTT.TopicPrefix == "" {
			errs = append(errs, errors.New("mqtt.client_id and mqtt.topic_prefix are required with a broker"))
		}
		if cfg.MQTT.MaxRetries < 1 {
			errs = append(errs, errors.New("mqtt.max_retries must be at least 1"))
		}
	}
	if cfg.History.Enabled() && (cfg.History.Retention <= 0 || cfg.History.PruneInterval <= 0 || cfg.History.WriteTimeout <= 0) {
		errs = append(errs, errors.New("history durations must be positive"))
	}
	if cfg.History.Enabled() && cfg.History.WriteTimeout >= cfg.Timing.MonitorInterval {
		errs = append(errs, errors.New("history.write_timeout must be shorter than timing.monitor_interval"))
	}
	if cfg.SiteLimit < 1 {
		errs = append(errs, errors.New("site_limit must be at least 1"))
	}
	return errors.Join(errs...)
}

func getStringEnv(key EnvKey, fallback string) string {
	if v, ok := os.LookupEnv(string(key)); ok && v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key EnvKey, fallback time.Duration) (time.Duration, error) {
	v := getStringEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getLogLevelEnv(key EnvKey, fallback slog.Level) (slog.Level, error) {
	v := getStringEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return level, nil
}

func getIntEnv(key EnvKey, fallback int) (int, error) {
	v := getStringEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
