package errors

import (
	"errors"
	"fmt"
)

// Common application errors
var (
	// Configuration errors
	ErrInvalidDataRoot      = errors.New("invalid data root")
	ErrUnsupportedExtension = errors.New("unsupported output file extension")
	ErrInvalidSampleCount   = errors.New("sample count must be a positive integer")
	ErrSchemaMismatch       = errors.New("schema header mismatch")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Data errors
	ErrNoInputFiles   = errors.New("no input files found")
	ErrNoDatedRecords = errors.New("no records with a usable date")

	// Sampling errors
	ErrInvalidCorrelation  = errors.New("invalid correlation matrix")
	ErrFactorizationFailed = errors.New("correlation matrix factorization failed")
	ErrUnsatisfiableRule   = errors.New("validity rule cannot be satisfied")

	// Date errors
	ErrDateCeilingReached = errors.New("representable date ceiling reached")

	// Output errors
	ErrOutputWriteFailed = errors.New("output write failed")
	ErrUploadFailed      = errors.New("output upload failed")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeDataAbsent    ErrorType = "data_absent"
	ErrorTypeSampling      ErrorType = "sampling"
	ErrorTypeDateOverflow  ErrorType = "date_overflow"
	ErrorTypeOutputIO      ErrorType = "output_io"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Stage   string                 `json:"stage,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
	Fatal   bool                   `json:"fatal"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg = fmt.Sprintf("%s - %s", msg, e.Details)
	}
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s", e.Stage, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithStage records the pipeline stage that produced the error. An existing
// stage is kept so the innermost stage wins.
func (e *AppError) WithStage(stage string) *AppError {
	if e.Stage == "" {
		e.Stage = stage
	}
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Fatal:   isFatalType(errType),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
		Fatal:   isFatalType(errType),
	}
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(code, message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, code, message)
}

// NewDataAbsentError creates an error for a request with no input data
func NewDataAbsentError(code, message string) *AppError {
	return NewAppError(ErrorTypeDataAbsent, code, message)
}

// NewSamplingError creates a sampling error
func NewSamplingError(code, message string) *AppError {
	return NewAppError(ErrorTypeSampling, code, message)
}

// NewDateOverflowError creates a soft error for date derivation that hit the
// representable ceiling
func NewDateOverflowError(code, message string) *AppError {
	return NewAppError(ErrorTypeDateOverflow, code, message)
}

// NewOutputIOError creates an output error
func NewOutputIOError(code, message string) *AppError {
	return NewAppError(ErrorTypeOutputIO, code, message)
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// IsType reports whether err is, or wraps, an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Type == errType
}

// AtStage records stage on err when it is an AppError without one. Other
// errors are wrapped as internal errors at that stage.
func AtStage(err error, stage string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		appErr.WithStage(stage)
		return err
	}
	return WrapError(err, ErrorTypeInternal, CodeInternalError, "unexpected failure").WithStage(stage)
}

// StageOf returns the stage recorded on err, if any
func StageOf(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return ""
	}
	return appErr.Stage
}

// isFatalType reports whether errors of this type abort a run. Data absence
// and date overflow degrade gracefully; storage errors only affect the cache.
func isFatalType(errType ErrorType) bool {
	switch errType {
	case ErrorTypeDataAbsent, ErrorTypeDateOverflow, ErrorTypeStorage:
		return false
	default:
		return true
	}
}

// ValidationErrorDetail represents detailed validation error information
type ValidationErrorDetail struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors struct {
	Message string                  `json:"message"`
	Errors  []ValidationErrorDetail `json:"errors"`
}

// Error implements the error interface for ValidationErrors
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return ve.Message
	}
	return fmt.Sprintf("%s: %s (%s)", ve.Message, ve.Errors[0].Message, ve.Errors[0].Field)
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, code, message string, value interface{}) {
	ve.Errors = append(ve.Errors, ValidationErrorDetail{
		Field:   field,
		Value:   value,
		Message: message,
		Code:    code,
	})
}

// HasErrors checks if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Message: "Validation failed",
		Errors:  make([]ValidationErrorDetail, 0),
	}
}

// Error codes for different error scenarios
const (
	// Configuration error codes
	CodeInvalidDataRoot      = "INVALID_DATA_ROOT"
	CodeUnsupportedExtension = "UNSUPPORTED_EXTENSION"
	CodeInvalidSampleCount   = "INVALID_SAMPLE_COUNT"
	CodeSchemaMismatch       = "SCHEMA_MISMATCH"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeInvalidConfig        = "INVALID_CONFIG"

	// Data error codes
	CodeNoInputFiles   = "NO_INPUT_FILES"
	CodeNoDatedRecords = "NO_DATED_RECORDS"
	CodeReadFailed     = "READ_FAILED"

	// Sampling error codes
	CodeInvalidCorrelation  = "INVALID_CORRELATION"
	CodeFactorizationFailed = "FACTORIZATION_FAILED"
	CodeUnsatisfiableRule   = "UNSATISFIABLE_RULE"

	// Date error codes
	CodeDateCeiling = "DATE_CEILING"

	// Output error codes
	CodeWriteFailed  = "WRITE_FAILED"
	CodeUploadFailed = "UPLOAD_FAILED"

	// Storage error codes
	CodeCacheFailed = "CACHE_FAILED"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
