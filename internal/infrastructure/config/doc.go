// Package config handles loading and validating the controller daemon's configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with BLOXD_* environment variables
//   - Validation of required fields and ranges
//   - Default value handling
//
// Sensitive values (MQTT password, InfluxDB token) should be supplied through
// the environment rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/bloxd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Controller.Name)
package config
