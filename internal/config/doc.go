// Package config defines the daemon settings and provides helpers to load,
// validate and save them in YAML format.
//
// Validate applies production defaults for every unset field, so a minimal
// settings file only needs the channel credentials.
package config
