// Package config provides centralized configuration management for the
// ChainChat console agent. It loads a single JSON file at startup, resolves
// secrets from environment variables, and applies sensible defaults so the
// binary can run with a minimal configuration.
package config
