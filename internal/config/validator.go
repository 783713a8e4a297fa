package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "execution.unit_timeout_minutes")
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
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateTools()...)
	errors = append(errors, c.validateExecution()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateTools validates the ToolsConfig
func (c *Config) validateTools() []ValidationError {
	var errors []ValidationError

	tools := []struct {
		field string
		tool  ToolConfig
	}{
		{"tools.busco", c.Tools.Busco},
		{"tools.mafft", c.Tools.Mafft},
		{"tools.trimal", c.Tools.Trimal},
		{"tools.iqtree", c.Tools.Iqtree},
	}

	for _, t := range tools {
		if strings.TrimSpace(t.tool.Path) == "" {
			errors = append(errors, ValidationError{
				Field:   t.field + ".path",
				Value:   t.tool.Path,
				Message: "must not be empty",
			})
		}
		for _, entry := range t.tool.Env {
			if !strings.Contains(entry, "=") {
				errors = append(errors, ValidationError{
					Field:   t.field + ".env",
					Value:   entry,
					Message: "must be a KEY=VALUE pair",
				})
			}
		}
	}

	return errors
}

// validateExecution validates the ExecutionConfig
func (c *Config) validateExecution() []ValidationError {
	var errors []ValidationError

	if c.Execution.UnitTimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "execution.unit_timeout_minutes",
			Value:   c.Execution.UnitTimeoutMinutes,
			Message: "must be zero or positive",
		})
	}

	// IQ-TREE rejects ultrafast bootstrap below 1000 replicates
	if c.Execution.Bootstrap != 0 && c.Execution.Bootstrap < 1000 {
		errors = append(errors, ValidationError{
			Field:   "execution.bootstrap",
			Value:   c.Execution.Bootstrap,
			Message: "must be 0 (disabled) or at least 1000",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be zero or positive",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be zero or positive",
		})
	}

	return errors
}
