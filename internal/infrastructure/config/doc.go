// Package config handles loading and validating newsdesk configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a local .env file (if present) before environment overrides
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The bootstrap admin password is not configurable here; it is a documented
//     value that operators must change on first login
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.Path)
package config
