// Package errors provides the error taxonomy shared by the conversion service.
//
// Every error surfaced to a caller maps to a stable machine-readable Kind
// (see KindOf) and a human-readable message that never carries storage paths
// (see PublicMessage).
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates the resource is busy or owned by someone else
	ErrConflict = errors.New("conflict")
	// ErrNotReady indicates a result was requested before it exists
	ErrNotReady = errors.New("not ready")
	// ErrEngine indicates the external rendering engine failed
	ErrEngine = errors.New("engine failure")
	// ErrInternal indicates an internal system error
	ErrInternal = errors.New("internal error")
)

// Kind is a stable, machine-readable error classification.
type Kind string

const (
	KindValidation       Kind = "VALIDATION_ERROR"
	KindTemplate         Kind = "TEMPLATE_ERROR"
	KindTemplateNotFound Kind = "TEMPLATE_NOT_FOUND"
	KindEngine           Kind = "ENGINE_ERROR"
	KindEngineTimeout    Kind = "ENGINE_TIMEOUT"
	KindNotFound         Kind = "NOT_FOUND"
	KindExpired          Kind = "JOB_EXPIRED"
	KindNotReady         Kind = "NOT_READY"
	KindConflict         Kind = "CONFLICT"
	KindParse            Kind = "PARSE_ERROR"
	KindInternal         Kind = "INTERNAL"
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "job", "template")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ExpiredError is returned for a job id whose retention window has passed.
// It belongs to the NotFound class.
type ExpiredError struct {
	Resource string
	ID       string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("%s expired: %s", e.Resource, e.ID)
}

func (e *ExpiredError) Unwrap() error {
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// TemplateError reports a missing or structurally invalid reference template.
// When Err is a *NotFoundError the template id was unknown.
type TemplateError struct {
	ID      string
	Message string
	Err     error
}

func (e *TemplateError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("template %s: %s", e.ID, e.Message)
	}
	return fmt.Sprintf("template: %s", e.Message)
}

func (e *TemplateError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// Missing reports whether the template could not be found.
func (e *TemplateError) Missing() bool {
	return errors.Is(e.Err, ErrNotFound)
}

// EngineError wraps a failure of the external rendering engine.
type EngineError struct {
	Op      string // "render", "start", "output"
	Timeout bool   // the render exceeded its deadline
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("engine %s timed out", e.Op)
	}
	if e.Message != "" {
		return fmt.Sprintf("engine %s failed: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("engine %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("engine %s failed", e.Op)
}

func (e *EngineError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrEngine, e.Err}
	}
	return []error{ErrEngine}
}

// NotReadyError is returned when a job result is requested before completion.
type NotReadyError struct {
	ID     string
	Status string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("job %s is not ready (status: %s)", e.ID, e.Status)
}

func (e *NotReadyError) Unwrap() error {
	return ErrNotReady
}

// ConflictError is returned when an operation collides with current ownership,
// such as a second claim on a job or deleting a template still in use.
type ConflictError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "markup", "style spec")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewTemplate creates a TemplateError
func NewTemplate(id, message string, err error) *TemplateError {
	return &TemplateError{
		ID:      id,
		Message: message,
		Err:     err,
	}
}

// NewEngine creates an EngineError
func NewEngine(op, message string, err error) *EngineError {
	return &EngineError{
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// New wraps errors.New for convenience
func New(text string) error {
	return errors.New(text)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// KindOf classifies err. The outermost typed error in the chain wins.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var (
		expired    *ExpiredError
		notFound   *NotFoundError
		validation *ValidationError
		template   *TemplateError
		engine     *EngineError
		notReady   *NotReadyError
		conflict   *ConflictError
		parse      *ParseError
	)

	switch {
	case errors.As(err, &template):
		if template.Missing() {
			return KindTemplateNotFound
		}
		return KindTemplate
	case errors.As(err, &expired):
		return KindExpired
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &engine):
		if engine.Timeout {
			return KindEngineTimeout
		}
		return KindEngine
	case errors.As(err, &notReady):
		return KindNotReady
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &parse):
		return KindParse
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	}
	return KindInternal
}

// PublicMessage returns a caller-safe message for err. IO and unclassified
// errors collapse to a generic message so filesystem paths never leak.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		expired    *ExpiredError
		notFound   *NotFoundError
		validation *ValidationError
		template   *TemplateError
		engine     *EngineError
		notReady   *NotReadyError
		conflict   *ConflictError
		parse      *ParseError
	)

	switch {
	case errors.As(err, &template):
		return template.Error()
	case errors.As(err, &expired):
		return expired.Error()
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &engine):
		if engine.Timeout {
			return "rendering engine timed out"
		}
		if engine.Message != "" {
			return "rendering engine failed: " + engine.Message
		}
		return "rendering engine failed"
	case errors.As(err, &notReady):
		return notReady.Error()
	case errors.As(err, &conflict):
		return conflict.Error()
	case errors.As(err, &parse):
		return fmt.Sprintf("failed to parse %s: %s", parse.Format, parse.Message)
	}
	return "internal error"
}
