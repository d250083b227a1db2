// Package config handles loading and validating the Gray Logic Conga bridge
// configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Account passwords should be set via CONGA_PASSWORD rather than the file
//   - The config file should have restricted permissions (0600)
//   - AccountConfig.String never prints the password
//
// Usage:
//
//	cfg, err := config.Load("configs/conga.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.ID)
package config
