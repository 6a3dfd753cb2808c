// Package config loads, validates, and defaults the TOML configuration used
// by the vitae daemon and CLI.
package config
