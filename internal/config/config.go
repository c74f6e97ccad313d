package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	MQTT            MQTTConfig        `yaml:"mqtt"`
	Geo             GeoConfig         `yaml:"geo"`
	Automation      AutomationConfig  `yaml:"automation"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// MQTTConfig contains broker connection settings
type MQTTConfig struct {
	Broker         string   `yaml:"broker"` // e.g. tcp://localhost:1883, ssl://broker:8883
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	BaseTopic      string   `yaml:"base_topic"` // zigbee2mqtt base topic
	QoS            int      `yaml:"qos"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"` // Outbound command pacing
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// GeoConfig contains the location used for sunrise and sunset
type GeoConfig struct {
	Name        string   `yaml:"name"`
	Timezone    string   `yaml:"timezone"`
	Lat         float64  `yaml:"lat,omitempty"`
	Lon         float64  `yaml:"lon,omitempty"`
	HTTPTimeout Duration `yaml:"http_timeout"` // Timeout for geocoding HTTP requests
}

// HasCoordinates reports whether lat/lon are configured, so no geocoding is needed.
func (g GeoConfig) HasCoordinates() bool {
	return g.Lat != 0 || g.Lon != 0
}

// Location loads the configured timezone. "Local" and "" mean the host timezone.
func (g GeoConfig) Location() (*time.Location, error) {
	if g.Timezone == "" || g.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(g.Timezone)
}

// AutomationConfig contains automation engine timings
type AutomationConfig struct {
	TickInterval   Duration `yaml:"tick_interval"`   // Time-trigger evaluation period
	Debounce       Duration `yaml:"debounce"`        // Click debounce window
	TimeTransition float64  `yaml:"time_transition"` // Seconds, for time-triggered recalls and offs
	IdleTransition float64  `yaml:"idle_transition"` // Seconds, for idle offs
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"` // default: true
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// IsEnabled returns whether the ledger records events
func (c LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 256)
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 256
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Seconds converts a transition in seconds to a time.Duration
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration YAML, expanding environment variables and applying defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./lightlynx.sqlite"
	}

	// MQTT defaults
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "lightlynx-" + uuid.NewString()[:8]
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = "zigbee2mqtt"
	}
	cfg.MQTT.BaseTopic = strings.TrimSuffix(cfg.MQTT.BaseTopic, "/")
	if cfg.MQTT.QoS == 0 {
		cfg.MQTT.QoS = 1
	}
	if cfg.MQTT.RateLimitRPS == 0 {
		cfg.MQTT.RateLimitRPS = 20.0
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}

	// Geo defaults
	if cfg.Geo.Timezone == "" {
		cfg.Geo.Timezone = "Local"
	}
	if cfg.Geo.HTTPTimeout == 0 {
		cfg.Geo.HTTPTimeout = Duration(10 * time.Second)
	}

	// Automation defaults
	if cfg.Automation.TickInterval == 0 {
		cfg.Automation.TickInterval = Duration(10 * time.Second)
	}
	if cfg.Automation.Debounce == 0 {
		cfg.Automation.Debounce = Duration(300 * time.Millisecond)
	}
	if cfg.Automation.TimeTransition == 0 {
		cfg.Automation.TimeTransition = 10
	}
	if cfg.Automation.IdleTransition == 0 {
		cfg.Automation.IdleTransition = 30
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (cfg *Config) validate() error {
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if cfg.MQTT.RateLimitRPS < 0 {
		return fmt.Errorf("mqtt.rate_limit_rps must be positive, got %v", cfg.MQTT.RateLimitRPS)
	}
	if !cfg.Geo.HasCoordinates() && cfg.Geo.Name == "" {
		return fmt.Errorf("geo: either lat/lon or name must be set")
	}
	if cfg.Geo.Lat < -90 || cfg.Geo.Lat > 90 {
		return fmt.Errorf("geo.lat out of range: %v", cfg.Geo.Lat)
	}
	if cfg.Geo.Lon < -180 || cfg.Geo.Lon > 180 {
		return fmt.Errorf("geo.lon out of range: %v", cfg.Geo.Lon)
	}
	if _, err := cfg.Geo.Location(); err != nil {
		return fmt.Errorf("geo.timezone: %w", err)
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
