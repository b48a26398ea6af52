package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"nmea-bridge/internal/throttle"
)

type Config struct {
	UDP     UDPConfig     `yaml:"udp"`
	TCP     TCPConfig     `yaml:"tcp"`
	Serial  SerialConfig  `yaml:"serial"`
	NATS    NATSConfig    `yaml:"nats"`
	Device  DeviceConfig  `yaml:"device"`
	Sensors SensorsConfig `yaml:"sensors"`
	AIS     AISConfig     `yaml:"ais"`
	Logging LoggingConfig `yaml:"logging"`
	Web     WebConfig     `yaml:"web"`
	LED     LEDConfig     `yaml:"led"`
	Stats   StatsConfig   `yaml:"stats"`
}

type UDPConfig struct {
	BindAddress string            `yaml:"bind_address"`
	Sources     []UDPSourceConfig `yaml:"sources"`
	// Forward repeats every accepted sentence to this host:port.
	Forward string `yaml:"forward"`
}

type UDPSourceConfig struct {
	Name        string `yaml:"name"`
	Port        int    `yaml:"port"`
	Enabled     *bool  `yaml:"enabled"`
	Description string `yaml:"description"`
}

type TCPConfig struct {
	Sources []TCPSourceConfig `yaml:"sources"`
}

type TCPSourceConfig struct {
	Name           string        `yaml:"name"`
	Addr           string        `yaml:"addr"`
	Enabled        *bool         `yaml:"enabled"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type SerialConfig struct {
	Sources []SerialSourceConfig `yaml:"sources"`
}

type SerialSourceConfig struct {
	Name    string `yaml:"name"`
	Device  string `yaml:"device"`
	Baud    int    `yaml:"baud"`
	Enabled *bool  `yaml:"enabled"`
}

type NATSConfig struct {
	URL             string        `yaml:"url"`
	ClientName      string        `yaml:"client_name"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	TopicPrefix     string        `yaml:"topic_prefix"`
	DiscoveryPrefix string        `yaml:"discovery_prefix"`
	KVBucket        string        `yaml:"kv_bucket"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

type DeviceConfig struct {
	Identifiers  string `yaml:"identifiers"`
	Name         string `yaml:"name"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
}

type SensorsConfig struct {
	Throttle      map[string]time.Duration `yaml:"throttle"`
	DeviceTracker DeviceTrackerConfig      `yaml:"device_tracker"`
}

type DeviceTrackerConfig struct {
	Enabled *bool `yaml:"enabled"`
}

type AISConfig struct {
	VesselTimeout    time.Duration `yaml:"vessel_timeout"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	MultipartTimeout time.Duration `yaml:"multipart_timeout"`
	MaxVessels       int           `yaml:"max_vessels"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type LEDConfig struct {
	GPIO int           `yaml:"gpio"`
	Hold time.Duration `yaml:"hold"`
}

type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// IsEnabled treats a missing flag as enabled.
func (s UDPSourceConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

func (s TCPSourceConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

func (s SerialSourceConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

func (d DeviceTrackerConfig) IsEnabled() bool { return d.Enabled == nil || *d.Enabled }

// ThrottleIntervals converts the throttle map to typed categories.
func (s SensorsConfig) ThrottleIntervals() map[throttle.Category]time.Duration {
	out := make(map[throttle.Category]time.Duration, len(s.Throttle))
	for k, v := range s.Throttle {
		out[throttle.Category(k)] = v
	}
	return out
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if cfg.NATS.ClientName == "" {
		cfg.NATS.ClientName = "nmea-bridge-" + uuid.NewString()[:8]
	}
	if cfg.NATS.TopicPrefix == "" {
		cfg.NATS.TopicPrefix = "navnet"
	}
	if cfg.NATS.DiscoveryPrefix == "" {
		cfg.NATS.DiscoveryPrefix = "homeassistant"
	}
	if cfg.NATS.ConnectTimeout < 0 {
		return fmt.Errorf("nats.connect_timeout must be >= 0")
	}
	if cfg.NATS.ConnectTimeout == 0 {
		cfg.NATS.ConnectTimeout = 30 * time.Second
	}

	if cfg.Device.Identifiers == "" {
		cfg.Device.Identifiers = "navnet_bridge"
	}
	if cfg.Device.Name == "" {
		cfg.Device.Name = "Navnet"
	}
	if cfg.Device.Manufacturer == "" {
		cfg.Device.Manufacturer = "Furuno"
	}
	if cfg.Device.Model == "" {
		cfg.Device.Model = "NavNet"
	}

	if cfg.UDP.BindAddress == "" {
		cfg.UDP.BindAddress = "0.0.0.0"
	}
	enabled := 0
	for i, s := range cfg.UDP.Sources {
		if s.Name == "" || s.Port == 0 {
			return fmt.Errorf("udp.sources[%d] must have 'name' and 'port'", i)
		}
		if s.Port < 0 || s.Port > 65535 {
			return fmt.Errorf("udp.sources[%d].port must be 1-65535", i)
		}
		if s.IsEnabled() {
			enabled++
		}
	}
	for i, s := range cfg.TCP.Sources {
		if s.Name == "" || s.Addr == "" {
			return fmt.Errorf("tcp.sources[%d] must have 'name' and 'addr'", i)
		}
		if s.ReconnectDelay < 0 {
			return fmt.Errorf("tcp.sources[%d].reconnect_delay must be >= 0", i)
		}
		if s.ReconnectDelay == 0 {
			cfg.TCP.Sources[i].ReconnectDelay = 5 * time.Second
		}
		if s.IsEnabled() {
			enabled++
		}
	}
	for i, s := range cfg.Serial.Sources {
		if s.Name == "" || s.Device == "" {
			return fmt.Errorf("serial.sources[%d] must have 'name' and 'device'", i)
		}
		if s.Baud == 0 {
			cfg.Serial.Sources[i].Baud = 4800
		}
		if s.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled source is required")
	}

	for k, v := range cfg.Sensors.Throttle {
		if !throttle.ValidCategory(throttle.Category(k)) {
			return fmt.Errorf("sensors.throttle.%s is not a known category", k)
		}
		if v < 0 {
			return fmt.Errorf("sensors.throttle.%s must be >= 0", k)
		}
	}

	if cfg.AIS.VesselTimeout < 0 || cfg.AIS.CleanupInterval < 0 || cfg.AIS.MultipartTimeout < 0 {
		return fmt.Errorf("ais timeouts must be >= 0")
	}
	if cfg.AIS.VesselTimeout == 0 {
		cfg.AIS.VesselTimeout = 600 * time.Second
	}
	if cfg.AIS.CleanupInterval == 0 {
		cfg.AIS.CleanupInterval = 60 * time.Second
	}
	if cfg.AIS.MultipartTimeout == 0 {
		cfg.AIS.MultipartTimeout = 5 * time.Second
	}
	if cfg.AIS.MaxVessels < 0 {
		return fmt.Errorf("ais.max_vessels must be >= 0")
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}
	if !logLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json")
	}

	if cfg.LED.GPIO < 0 {
		return fmt.Errorf("led.gpio must be >= 0")
	}

	if cfg.Stats.Interval < 0 {
		return fmt.Errorf("stats.interval must be >= 0")
	}
	if cfg.Stats.Interval == 0 {
		cfg.Stats.Interval = 60 * time.Second
	}
	return nil
}
