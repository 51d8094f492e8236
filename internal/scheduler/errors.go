package scheduler

import "errors"

var (
	ErrQueueClosed = errors.New("job queue is stopped")

	// ErrRunnerUnavailable is returned while the runner circuit breaker is
	// open; executions fail fast instead of piling onto a dead endpoint.
	ErrRunnerUnavailable = errors.New("runner endpoint unavailable (circuit open)")
)
