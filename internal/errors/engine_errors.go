package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCategory represents the kind of failure raised by the engine
type ErrorCategory string

const (
	// Fatal: raised at load/validate time or while resolving rule references
	ErrorCategoryConfiguration ErrorCategory = "CONFIG"
	ErrorCategoryEvaluation    ErrorCategory = "EVALUATION"
	ErrorCategorySchema        ErrorCategory = "SCHEMA"

	// Isolated per bar / per trial
	ErrorCategoryRuntime ErrorCategory = "RUNTIME"

	// Market data collaborators
	ErrorCategoryNetwork   ErrorCategory = "NETWORK"
	ErrorCategoryTimeout   ErrorCategory = "TIMEOUT"
	ErrorCategoryRateLimit ErrorCategory = "RATE_LIMIT"
	ErrorCategoryTemporary ErrorCategory = "TEMPORARY"
)

// Categorized is implemented by every error type of this package
type Categorized interface {
	error
	Category() ErrorCategory
}

// ConfigError reports an invalid configuration: unknown indicator type, out-of-range
// parameter, condition referencing an undeclared indicator id, schema version mismatch.
type ConfigError struct {
	Component  string
	Field      string
	Message    string
	Underlying error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("config error")
	if e.Component != "" {
		b.WriteString(" [" + e.Component + "]")
	}
	if e.Field != "" {
		b.WriteString(" " + e.Field + ":")
	}
	b.WriteString(" " + e.Message)
	if e.Underlying != nil {
		b.WriteString(": " + e.Underlying.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error            { return e.Underlying }
func (e *ConfigError) Category() ErrorCategory { return ErrorCategoryConfiguration }

// NewConfigError creates a ConfigError for the given component and field
func NewConfigError(component, field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Component: component, Field: field, Message: fmt.Sprintf(format, args...)}
}

// WrapConfigError attaches configuration context to an existing error
func WrapConfigError(err error, component, field string) *ConfigError {
	if err == nil {
		return nil
	}
	return &ConfigError{Component: component, Field: field, Message: "invalid value", Underlying: err}
}

// EvaluationError reports a rule referencing an indicator or field that the computed
// snapshot does not expose.
type EvaluationError struct {
	IndicatorID string
	Field       string
	Available   []string
	BarIndex    int
}

func (e *EvaluationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("evaluation error: indicator %q not present in snapshot (available indicators: [%s])",
			e.IndicatorID, strings.Join(e.Available, ", "))
	}
	return fmt.Sprintf("evaluation error: indicator %q has no field %q (available fields: [%s])",
		e.IndicatorID, e.Field, strings.Join(e.Available, ", "))
}

func (e *EvaluationError) Category() ErrorCategory { return ErrorCategoryEvaluation }

// SchemaValidationError reports an artifact that does not satisfy the artifact schema.
// Path is a JSON path such as $.results[3].rank.
type SchemaValidationError struct {
	Path    string
	Rule    string
	Message string
}

func (e *SchemaValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("schema validation failed at %s (rule %s): %s", e.Path, e.Rule, e.Message)
	}
	return fmt.Sprintf("schema validation failed at %s (rule %s)", e.Path, e.Rule)
}

func (e *SchemaValidationError) Category() ErrorCategory { return ErrorCategorySchema }

// RuntimeFault is a failure unrelated to configuration (non-finite arithmetic, recovered
// panic). It is isolated to the bar or trial where it happened.
type RuntimeFault struct {
	Component  string
	Operation  string
	Underlying error
	Context    map[string]interface{}
}

func (e *RuntimeFault) Error() string {
	return fmt.Sprintf("[%s:%s] runtime fault in %s: %v", ErrorCategoryRuntime, e.Component, e.Operation, e.Underlying)
}

func (e *RuntimeFault) Unwrap() error            { return e.Underlying }
func (e *RuntimeFault) Category() ErrorCategory { return ErrorCategoryRuntime }

// WithContext adds context information to the fault
func (e *RuntimeFault) WithContext(key string, value interface{}) *RuntimeFault {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewRuntimeFault creates a fault for the given component and operation
func NewRuntimeFault(component, operation string, err error) *RuntimeFault {
	return &RuntimeFault{Component: component, Operation: operation, Underlying: err}
}

// DataError is a categorized failure of a market data collaborator
type DataError struct {
	Kind       ErrorCategory
	Component  string
	Operation  string
	Underlying error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Component, e.Operation, e.Underlying)
}

func (e *DataError) Unwrap() error            { return e.Underlying }
func (e *DataError) Category() ErrorCategory { return e.Kind }

// CategoryOf returns the category of err, or "" when err carries none
func CategoryOf(err error) ErrorCategory {
	var c Categorized
	if stderrors.As(err, &c) {
		return c.Category()
	}
	return ""
}

// IsFatal returns whether err must abort the current run
func IsFatal(err error) bool {
	switch CategoryOf(err) {
	case ErrorCategoryConfiguration, ErrorCategoryEvaluation, ErrorCategorySchema:
		return true
	}
	return false
}

// IsRetryable reports whether a data error can be retried
func IsRetryable(err error) bool {
	switch CategoryOf(err) {
	case ErrorCategoryNetwork, ErrorCategoryTimeout, ErrorCategoryRateLimit, ErrorCategoryTemporary:
		return true
	}
	return false
}

// CategorizeDataError attempts to categorize a generic error from an exchange client
func CategorizeDataError(err error, component, operation string) error {
	if err == nil {
		return nil
	}
	if CategoryOf(err) != "" {
		return err
	}

	msg := strings.ToLower(err.Error())
	kind := ErrorCategoryTemporary
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "context deadline exceeded"):
		kind = ErrorCategoryTimeout
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		kind = ErrorCategoryRateLimit
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network") ||
		strings.Contains(msg, "dns") || strings.Contains(msg, "dial"):
		kind = ErrorCategoryNetwork
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "unauthorized"):
		return WrapConfigError(err, component, operation)
	}
	return &DataError{Kind: kind, Component: component, Operation: operation, Underlying: err}
}
