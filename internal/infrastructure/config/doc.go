// Package config handles loading and validating the gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Printer passwords should be set via BAMBUFARM_PRINTER_<DEV_ID>_PASSWORD
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("bambufarm.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Address)
//
// Example configuration:
//
//	endpoint: "[::1]:47403"
//	printers:
//	  - dev_id: "01S00C000000001"
//	    name: "Left X1C"
//	    model: "x1c"
//	    host: "192.168.1.40"
//	    password: "12345678"
package config
