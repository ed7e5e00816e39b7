// Package config handles loading and validating smart-home configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with SMARTHOME_* environment variables
//   - Validation of shared and role-specific sections
//   - Default value handling
//
// A single binary runs either as a device node or as a client monitor. Both
// roles share the MQTT and logging sections; DeviceConfig and ClientConfig
// carry their own Validate methods, which the command for that role calls
// after Load.
//
// Security Considerations:
//   - Broker credentials and the InfluxDB token should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/device.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Device.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
