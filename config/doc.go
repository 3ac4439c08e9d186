// Package config provides unified configuration loading for the VoiceFlow
// service: defaults, YAML file overrides and environment variable overrides,
// in that precedence order.
package config
