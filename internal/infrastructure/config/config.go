package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/occupancy-core/internal/occupancy"
)

// Config is the root configuration structure for the occupancy daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig       `yaml:"site"`
	Locations []LocationConfig `yaml:"locations"`
	Engine    EngineConfig     `yaml:"engine"`
	Database  DatabaseConfig   `yaml:"database"`
	MQTT      MQTTConfig       `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig   `yaml:"influxdb"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// LocationConfig describes one node of the occupancy forest.
//
// ContributesToParent uses a pointer so that an absent YAML key can take
// its documented default (true) while an explicit false is preserved.
// An empty Kind or Strategy takes its default (area, independent).
type LocationConfig struct {
	ID                  string         `yaml:"id"`
	ParentID            string         `yaml:"parent_id"`
	Kind                string         `yaml:"kind"`
	Strategy            string         `yaml:"occupancy_strategy"`
	ContributesToParent *bool          `yaml:"contributes_to_parent"`
	Timeouts            map[string]int `yaml:"timeouts"`
}

// EngineConfig contains engine-wide fallback timeouts, in minutes.
type EngineConfig struct {
	DefaultPulseMinutes    int `yaml:"default_pulse_minutes"`
	DefaultTrailingMinutes int `yaml:"default_trailing_minutes"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: OCCUPANCY_SECTION_KEY
// For example: OCCUPANCY_DATABASE_PATH, OCCUPANCY_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Occupancy Core",
			Timezone: "UTC",
		},
		Engine: EngineConfig{
			DefaultPulseMinutes:    10,
			DefaultTrailingMinutes: 2,
		},
		Database: DatabaseConfig{
			Path:        "./data/occupancy.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "occupancyd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: OCCUPANCY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OCCUPANCY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("OCCUPANCY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("OCCUPANCY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("OCCUPANCY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("OCCUPANCY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Location forest integrity (unique IDs, resolvable parents, no cycles)
// is the engine's job at construction; validation here covers only what
// the engine cannot see, plus basic daemon settings.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if len(c.Locations) == 0 {
		errs = append(errs, "at least one location is required")
	}

	for i, loc := range c.Locations {
		if loc.ID == "" {
			errs = append(errs, fmt.Sprintf("locations[%d].id is required", i))
		}
		switch loc.Kind {
		case "", string(occupancy.KindArea), string(occupancy.KindVirtual):
		default:
			errs = append(errs, fmt.Sprintf("locations[%d].kind %q is not area or virtual", i, loc.Kind))
		}
		switch loc.Strategy {
		case "", string(occupancy.StrategyIndependent), string(occupancy.StrategyFollowParent):
		default:
			errs = append(errs, fmt.Sprintf("locations[%d].occupancy_strategy %q is not independent or follow_parent", i, loc.Strategy))
		}
		for category, minutes := range loc.Timeouts {
			if minutes <= 0 {
				errs = append(errs, fmt.Sprintf("locations[%d].timeouts[%s] must be positive", i, category))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// EngineLocations converts the YAML location entries into engine configs,
// applying the documented defaults for absent keys.
func (c *Config) EngineLocations() []occupancy.LocationConfig {
	configs := make([]occupancy.LocationConfig, 0, len(c.Locations))
	for _, loc := range c.Locations {
		cfg := occupancy.LocationConfig{
			ID:                  loc.ID,
			ParentID:            loc.ParentID,
			Kind:                occupancy.KindArea,
			Strategy:            occupancy.StrategyIndependent,
			ContributesToParent: true,
			Timeouts:            loc.Timeouts,
		}
		if loc.Kind != "" {
			cfg.Kind = occupancy.LocationKind(loc.Kind)
		}
		if loc.Strategy != "" {
			cfg.Strategy = occupancy.OccupancyStrategy(loc.Strategy)
		}
		if loc.ContributesToParent != nil {
			cfg.ContributesToParent = *loc.ContributesToParent
		}
		configs = append(configs, cfg)
	}
	return configs
}
