package config

import (
	"strings"
)

const (
	// EnvPrefix is the prefix for all environment variables read by the CLI.
	EnvPrefix = "SETVERSION_"

	// AWSRegionEnvVar holds the region used for parameter store writes.
	AWSRegionEnvVar = "AWS_REGION"

	Debug      = "debug"
	ConfigFile = "config"
)

// KebabToSnakeCase converts a kebab-case flag name to the snake_case key
// viper expects.
func KebabToSnakeCase(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}

// NormalizeFlagName maps a flag name to its canonical viper key.
func NormalizeFlagName(s string) string {
	return KebabToSnakeCase(strings.ToLower(s))
}
