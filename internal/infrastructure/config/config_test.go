package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

const validConfig = `
site:
  id: test-site
  name: Test House
locations:
  - id: kitchen
    parent_id: main_floor
    kind: area
    timeouts:
      motion: 10
      presence: 2
  - id: main_floor
    kind: virtual
    timeouts:
      propagated: 5
  - id: backyard
    parent_id: main_floor
    kind: area
    contributes_to_parent: false
  - id: landing
    parent_id: main_floor
    kind: area
    occupancy_strategy: follow_parent
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("site.id = %q, want test-site", cfg.Site.ID)
	}
	if len(cfg.Locations) != 4 {
		t.Fatalf("locations = %d, want 4", len(cfg.Locations))
	}
	// Defaults survive partial YAML.
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("mqtt port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Engine.DefaultPulseMinutes != 10 {
		t.Errorf("default_pulse_minutes = %d, want 10", cfg.Engine.DefaultPulseMinutes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load should fail for a missing file")
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "site: [unclosed")); err == nil {
		t.Fatal("Load should fail for malformed YAML")
	}
}

func TestValidateRejectsEmptyLocations(t *testing.T) {
	_, err := Load(writeConfig(t, "site:\n  id: x\n"))
	if err == nil || !strings.Contains(err.Error(), "at least one location") {
		t.Fatalf("err = %v, want missing locations complaint", err)
	}
}

func TestValidateRejectsBadStrategy(t *testing.T) {
	content := `
site:
  id: x
locations:
  - id: kitchen
    occupancy_strategy: psychic
`
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("Load should reject an unknown strategy")
	}
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	content := `
site:
  id: x
locations:
  - id: kitchen
    timeouts:
      motion: 0
`
	if _, err := Load(writeConfig(t, content)); err == nil {
		t.Fatal("Load should reject a zero timeout")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OCCUPANCY_DATABASE_PATH", "/var/lib/occupancy/state.db")
	t.Setenv("OCCUPANCY_MQTT_HOST", "broker.local")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Path != "/var/lib/occupancy/state.db" {
		t.Errorf("database.path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("mqtt host = %q, want broker.local", cfg.MQTT.Broker.Host)
	}
}

func TestEngineLocationsAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	locations := cfg.EngineLocations()
	byID := make(map[string]int)
	for i, loc := range locations {
		byID[loc.ID] = i
	}

	kitchen := locations[byID["kitchen"]]
	if !kitchen.ContributesToParent {
		t.Error("contributes_to_parent should default to true")
	}
	if kitchen.Timeouts["motion"] != 10 {
		t.Errorf("kitchen motion timeout = %d, want 10", kitchen.Timeouts["motion"])
	}

	backyard := locations[byID["backyard"]]
	if backyard.ContributesToParent {
		t.Error("explicit contributes_to_parent: false was lost")
	}

	landing := locations[byID["landing"]]
	if landing.Strategy != "follow_parent" {
		t.Errorf("landing strategy = %s, want follow_parent", landing.Strategy)
	}
}
