package domain

import "errors"

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateJob = errors.New("active job with this dedupe key already exists")

	// ErrNonRetryable marks a handler failure as a configuration problem
	// rather than a transient one. Jobs failing with it are never retried.
	ErrNonRetryable = errors.New("non-retryable job error")
)
