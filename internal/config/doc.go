// Package config loads and validates the collector's YAML configuration.
package config
