package domain

import (
	"context"
	"errors"
	"strings"
)

// FailureKind labels why a run ended in failure. The value is persisted on the
// run, used as a metrics label and shown to CLI users.
type FailureKind string

const (
	FailureAuth             FailureKind = "auth"
	FailureRetriesExhausted FailureKind = "retries_exhausted"
	FailureJobNotCreated    FailureKind = "job_not_created"
	FailureJobFailed        FailureKind = "job_failed"
	FailureJobTimeout       FailureKind = "job_timeout"
	FailureConfig           FailureKind = "config"
	FailureExternalAPI      FailureKind = "external_api"
	FailureCancelled        FailureKind = "cancelled"
	FailureInternal         FailureKind = "internal"
)

// transportSubstrings are message fragments of transport faults that reached
// the orchestration layer without a structured error type.
var transportSubstrings = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"tls handshake",
}

// ClassifyFailure inspects err and returns the FailureKind that describes it.
//
// Classification priority:
//  1. Context cancellation and deadlines
//  2. Structured errors from the domain taxonomy
//  3. Message substring matching for unwrapped transport faults
//  4. Default: FailureInternal
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCancelled) {
		return FailureCancelled
	}

	var apiErr *ExternalAPIError
	switch {
	case errors.Is(err, ErrUnauthorized):
		return FailureAuth
	case errors.Is(err, ErrRetriesExhausted):
		return FailureRetriesExhausted
	case errors.Is(err, ErrJobNotCreated):
		return FailureJobNotCreated
	case errors.Is(err, ErrJobFailed):
		return FailureJobFailed
	case errors.Is(err, ErrJobTimeout):
		return FailureJobTimeout
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidInput):
		return FailureConfig
	case errors.As(err, &apiErr):
		return FailureExternalAPI
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range transportSubstrings {
		if strings.Contains(msg, sub) {
			return FailureRetriesExhausted
		}
	}

	return FailureInternal
}

// Describe returns a short human-readable explanation for a failure kind.
func (k FailureKind) Describe() string {
	switch k {
	case FailureAuth:
		return "the analytics service rejected the API token"
	case FailureRetriesExhausted:
		return "the analytics service kept failing after every retry"
	case FailureJobNotCreated:
		return "the analytics service did not create an expansion job"
	case FailureJobFailed:
		return "the expansion job failed on the server"
	case FailureJobTimeout:
		return "the expansion job did not finish in time"
	case FailureConfig:
		return "the configuration is invalid"
	case FailureExternalAPI:
		return "the analytics service returned an unexpected response"
	case FailureCancelled:
		return "the run was cancelled"
	default:
		return "an internal error occurred"
	}
}
