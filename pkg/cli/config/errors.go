package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound   = goerr.New("configuration file not found")
	ErrInvalidConfig    = goerr.New("invalid configuration")
	ErrInvalidDuration  = goerr.New("invalid duration")
	ErrUnknownStage     = goerr.New("unknown stage")
	ErrUnknownBackend   = goerr.New("unknown repository backend")
	ErrUnknownProvider  = goerr.New("unknown embedding provider")
	ErrMissingParameter = goerr.New("required parameter is missing")
)

// Context keys for error values
const (
	ConfigPathKey = "config_path"
	SectionKey    = "section"
	FieldKey      = "field"
	ValueKey      = "value"
)
