// Occupancy Core - Hierarchical Occupancy Daemon
//
// This is the main entry point for the occupancy daemon. It wires the
// pure occupancy engine to the outside world: MQTT for sensor events
// and published state, SQLite for snapshot persistence, InfluxDB for
// transition history, and a single timer driving the engine's
// "wake me up" protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/occupancy-core/migrations"

	"github.com/nerrad567/occupancy-core/internal/host"
	"github.com/nerrad567/occupancy-core/internal/infrastructure/config"
	"github.com/nerrad567/occupancy-core/internal/infrastructure/database"
	"github.com/nerrad567/occupancy-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/occupancy-core/internal/infrastructure/logging"
	"github.com/nerrad567/occupancy-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/occupancy-core/internal/occupancy"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// mqttDisconnectGrace allows in-flight messages to drain at shutdown.
const mqttDisconnectGrace = 250 * time.Millisecond

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting occupancy daemon",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "locations", len(cfg.Locations))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Build the engine from the configured location forest
	engine, err := occupancy.NewEngine(cfg.EngineLocations(), occupancy.Options{
		DefaultPulseTimeout:    time.Duration(cfg.Engine.DefaultPulseMinutes) * time.Minute,
		DefaultTrailingTimeout: time.Duration(cfg.Engine.DefaultTrailingMinutes) * time.Minute,
		Logger:                 log.With("component", "engine"),
	})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	// Open database and apply migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	// InfluxDB is optional: occupancy keeps working without history.
	var recorder host.Recorder
	influx, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case err == nil:
		defer influx.Close()
		influx.SetErrorCallback(func(err error) {
			log.Warn("influxdb write failed", "error", err)
		})
		recorder = influx
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL)
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("influxdb disabled, transition history off")
	default:
		log.Warn("influxdb unavailable, continuing without history", "error", err)
	}

	// Connect to the MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.With("component", "mqtt"))
	defer mqttClient.Disconnect(mqttDisconnectGrace)
	log.Info("mqtt connected",
		"broker", cfg.MQTT.Broker.Host,
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Assemble the host and restore persisted state
	h := host.New(engine, host.Options{
		Publisher: mqttClient,
		Recorder:  recorder,
		Store:     host.NewStore(db),
		Logger:    log.With("component", "host"),
		QoS:       byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
	})
	defer h.Stop()

	if err := h.Start(ctx); err != nil {
		return fmt.Errorf("restoring engine state: %w", err)
	}

	// Sensor adapters publish to occupancy/event/{location_id}
	topics := mqtt.Topics{}
	if err := mqttClient.Subscribe(topics.EventWildcard(), byte(cfg.MQTT.QoS), h.HandleMessage); err != nil { // #nosec G115
		return fmt.Errorf("subscribing to events: %w", err)
	}

	log.Info("occupancy daemon started", "site", cfg.Site.ID)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Host timer
	// 2. MQTT (publishes offline status)
	// 3. InfluxDB flush (if enabled)
	// 4. Database

	log.Info("occupancy daemon stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OCCUPANCY_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OCCUPANCY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
