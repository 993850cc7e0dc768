package config

import (
	"errors"
	"fmt"
	"strings"
)

// Engine limits.
const (
	MinBufferSize    = 8
	MaxBufferSize    = 256
	MaxSettleDelayMs = 150
	MaxPopupMs       = 10000
)

// ErrInvalidConfig is wrapped by validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// IsWarning reports whether the issue is tolerated at startup.
func (e *ValidationError) IsWarning() bool {
	return strings.HasPrefix(e.Field, "shortcuts.path")
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// ValidateConfig checks every section. It returns nil or a ValidationErrors
// holding at least one error-level entry.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return ValidationErrors{*RequiredFieldError("config")}
	}

	var errs ValidationErrors
	if cfg.Version < 1 || cfg.Version > Version {
		errs = append(errs, *RangeError("version", 1, Version))
	}
	if cfg.PopupDurationMs < 0 || cfg.PopupDurationMs > MaxPopupMs {
		errs = append(errs, *RangeError("popup_duration_ms", 0, MaxPopupMs))
	}
	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateShortcuts(&cfg.Shortcuts)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateStats(&cfg.Stats)...)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors
	if e.BufferSize < MinBufferSize || e.BufferSize > MaxBufferSize {
		errs = append(errs, *RangeError("engine.buffer_size", MinBufferSize, MaxBufferSize))
	}
	if e.SettleDelayMs < 0 || e.SettleDelayMs > MaxSettleDelayMs {
		errs = append(errs, *RangeError("engine.settle_delay_ms", 0, MaxSettleDelayMs))
	}
	return errs
}

func validateShortcuts(s *ShortcutsConfig) ValidationErrors {
	var errs ValidationErrors
	if s.Watch && s.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "shortcuts.path",
			Message: "watch is enabled but no overlay path is set",
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output includes a file",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size cannot be negative",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func validateStats(s *StatsConfig) ValidationErrors {
	var errs ValidationErrors
	if !s.Enabled {
		return errs
	}
	if s.Path == "" {
		errs = append(errs, *RequiredFieldError("stats.path"))
	}
	if s.QueueSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "stats.queue_size",
			Message: "queue size must be at least 1",
		})
	}
	if s.TopN < 1 {
		errs = append(errs, ValidationError{
			Field:   "stats.top_n",
			Message: "top_n must be at least 1",
		})
	}
	return errs
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
