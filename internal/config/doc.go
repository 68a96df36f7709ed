// Package config loads the service configuration from YAML, applies
// environment overrides (optionally seeded from a .env file) and validates
// every section.
package config
