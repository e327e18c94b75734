// Package config loads, normalizes, and validates the TOML configuration
// file. Strategy subcommands use it for defaults; command-line flags override
// individual fields.
package config
