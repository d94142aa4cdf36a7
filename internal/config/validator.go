package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "bridge.port")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBridge()...)
	errors = append(errors, c.validateCapture()...)
	errors = append(errors, c.validateProxy()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateBridge checks the bridge listener configuration.
// The bridge must only ever bind a loopback address.
func (c *Config) validateBridge() []ValidationError {
	var errors []ValidationError

	ip := net.ParseIP(c.Bridge.Host)
	if ip == nil {
		errors = append(errors, ValidationError{
			Field:   "bridge.host",
			Value:   c.Bridge.Host,
			Message: "must be an IP address",
		})
	} else if !ip.IsLoopback() {
		errors = append(errors, ValidationError{
			Field:   "bridge.host",
			Value:   c.Bridge.Host,
			Message: "must be a loopback address",
		})
	}

	if c.Bridge.Port < 1 || c.Bridge.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "bridge.port",
			Value:   c.Bridge.Port,
			Message: "must be between 1 and 65535",
		})
	}

	return errors
}

func (c *Config) validateCapture() []ValidationError {
	var errors []ValidationError

	if c.Capture.BufferLines < 1 {
		errors = append(errors, ValidationError{
			Field:   "capture.buffer_lines",
			Value:   c.Capture.BufferLines,
			Message: "must be at least 1",
		})
	}

	if c.Capture.DefaultOutputLines < 1 {
		errors = append(errors, ValidationError{
			Field:   "capture.default_output_lines",
			Value:   c.Capture.DefaultOutputLines,
			Message: "must be at least 1",
		})
	}

	if c.Capture.PIDResolveTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "capture.pid_resolve_timeout_ms",
			Value:   c.Capture.PIDResolveTimeoutMs,
			Message: "must not be negative",
		})
	}

	return errors
}

func (c *Config) validateProxy() []ValidationError {
	var errors []ValidationError

	if c.Proxy.TimeoutMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "proxy.timeout_ms",
			Value:   c.Proxy.TimeoutMs,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
