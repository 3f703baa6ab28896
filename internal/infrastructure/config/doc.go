// Package config provides configuration loading for the occupancy daemon.
//
// Configuration is loaded from a YAML file with environment variable
// overrides for deployment-specific and secret values. The location
// forest the engine runs on is part of the configuration: locations are
// static, so changing the hierarchy means editing config.yaml and
// restarting the daemon.
//
// # Loading Order
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. Environment variables (OCCUPANCY_SECTION_KEY)
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	engine, err := occupancy.NewEngine(cfg.EngineLocations(), occupancy.Options{})
package config
