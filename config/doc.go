// Package config loads the dataflow service configuration.
//
// Values come from a config.yml found next to the binary or given
// explicitly, then from a .env file, then from DATAFLOW_ environment
// variables, which win. Nested keys map to underscores:
// DATAFLOW_STATUS_ADDR sets status.addr.
//
//	cfg, err := config.Load("dataflow", config.WithConfigFile("config.yml"))
package config
