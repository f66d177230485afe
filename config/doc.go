// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the application configuration structure
// including the listening address, backend servers, selection algorithm,
// health check timing, monitoring and inbound rate limiting.
package config
