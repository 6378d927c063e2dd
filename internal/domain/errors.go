package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateID is returned when creating a job whose ID already exists
	ErrDuplicateID = errors.New("job id already exists")

	// ErrInvalidTransition is returned when a status change is not on the lifecycle graph
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrMissingJobID is returned when a queue message carries no job-id metadata
	ErrMissingJobID = errors.New("message has no job-id metadata")

	// ErrProcessingInterrupted is returned by work that was cancelled before it finished
	ErrProcessingInterrupted = errors.New("job processing interrupted")
)

// RetryableError wraps transient errors (store unavailable, broker hiccup)
// that should leave the message on the queue for redelivery
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err carries a RetryableError anywhere in its chain
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// RemoteControlPlaneError is returned when the external autoscaling API rejects a call.
// Message holds the remote error text verbatim.
type RemoteControlPlaneError struct {
	ResourceID string
	Message    string
	Err        error
}

func (e *RemoteControlPlaneError) Error() string {
	return "control plane error for " + e.ResourceID + ": " + e.Message
}

func (e *RemoteControlPlaneError) Unwrap() error {
	return e.Err
}
