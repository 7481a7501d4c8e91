// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the proxy configuration: the listening
// address and outbound bind address, the reverse proxy rules and mode flags,
// the admin endpoint and the log level.
package config
