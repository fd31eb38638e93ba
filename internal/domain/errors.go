package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig indicates that the configuration is invalid.
	// It is always raised before any network activity.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnauthorized indicates that the analytics service rejected the credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates that the analytics service reported quota exhaustion.
	ErrRateLimited = errors.New("rate limited")

	// ErrRetriesExhausted indicates that a transient failure persisted for the whole attempt budget.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrJobNotCreated indicates that the service returned no handle for a submitted job.
	ErrJobNotCreated = errors.New("job not created")

	// ErrJobFailed indicates that an expansion job reached the failed state.
	ErrJobFailed = errors.New("job failed")

	// ErrJobTimeout indicates that an expansion job did not finish within the wait ceiling.
	ErrJobTimeout = errors.New("job timeout")

	// ErrServiceUnavailable indicates that an external dependency is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")
)

// RetryKind distinguishes what kept failing when retries ran out.
type RetryKind string

const (
	// RetryKindServer means the service kept answering with a 5xx status.
	RetryKindServer RetryKind = "server"
	// RetryKindTransport means the request never produced a response.
	RetryKindTransport RetryKind = "transport"
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// AuthError is returned when the service rejects the API credential.
// It is never retried.
type AuthError struct {
	Source string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s rejected the API token: invalid or expired credential", e.Source)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *AuthError) Unwrap() error {
	return ErrUnauthorized
}

// QuotaError describes a quota-exceeded response and the wait it asked for.
type QuotaError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *QuotaError) Unwrap() error {
	return ErrRateLimited
}

// RetriesExhaustedError is returned when server errors or transport faults
// persist for every attempt in the budget.
type RetriesExhaustedError struct {
	Source     string
	Kind       RetryKind
	Attempts   int
	LastStatus int
	Cause      error
}

// Error implements the error interface.
func (e *RetriesExhaustedError) Error() string {
	switch {
	case e.Kind == RetryKindTransport && e.Cause != nil:
		return fmt.Sprintf("%s request failed after %d attempts: %v", e.Source, e.Attempts, e.Cause)
	case e.LastStatus != 0:
		return fmt.Sprintf("%s server error after %d attempts (last status %d)", e.Source, e.Attempts, e.LastStatus)
	default:
		return fmt.Sprintf("%s %s error after %d attempts", e.Source, e.Kind, e.Attempts)
	}
}

// Unwrap returns both the sentinel and the last cause.
func (e *RetriesExhaustedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRetriesExhausted}
	}
	return []error{ErrRetriesExhausted, e.Cause}
}

// JobNotCreatedError is returned when a submit call succeeds but carries no job handle.
type JobNotCreatedError struct {
	Source string
}

// Error implements the error interface.
func (e *JobNotCreatedError) Error() string {
	return fmt.Sprintf("%s did not return an expansion job handle", e.Source)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *JobNotCreatedError) Unwrap() error {
	return ErrJobNotCreated
}

// JobFailedError is returned when the service reports an expansion job as failed.
type JobFailedError struct {
	Handle JobHandle
}

// Error implements the error interface.
func (e *JobFailedError) Error() string {
	return fmt.Sprintf("expansion job %s failed on the server", e.Handle)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *JobFailedError) Unwrap() error {
	return ErrJobFailed
}

// JobTimeoutError is returned when a job is still running after the wait ceiling.
type JobTimeoutError struct {
	Handle JobHandle
	Waited time.Duration
}

// Error implements the error interface.
func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("expansion job %s did not finish within %s", e.Handle, e.Waited)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *JobTimeoutError) Unwrap() error {
	return ErrJobTimeout
}

// ExternalAPIError provides details about an unexpected external API status.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ExternalAPIError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewAuthError creates a new AuthError.
func NewAuthError(source string) *AuthError {
	return &AuthError{Source: source}
}

// NewQuotaError creates a new QuotaError.
func NewQuotaError(source string, retryAfter time.Duration) *QuotaError {
	return &QuotaError{
		Source:     source,
		RetryAfter: retryAfter,
	}
}

// NewRetriesExhaustedError creates a new RetriesExhaustedError.
func NewRetriesExhaustedError(source string, kind RetryKind, attempts, lastStatus int, cause error) *RetriesExhaustedError {
	return &RetriesExhaustedError{
		Source:     source,
		Kind:       kind,
		Attempts:   attempts,
		LastStatus: lastStatus,
		Cause:      cause,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
