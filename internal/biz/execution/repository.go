package execution

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, exec *TaskExecution) error
	GetByID(ctx context.Context, id string) (*TaskExecution, error)
	// Update applies a patch unconditionally (used for attaching the
	// conversation while the run is still open).
	Update(ctx context.Context, id string, patch *TaskExecutionPatch) error
	// FinishIfRunning applies the terminal patch only when the record is
	// still running, making the completion write idempotent. Returns false
	// when another terminal write got there first.
	FinishIfRunning(ctx context.Context, id string, patch *TaskExecutionPatch) (bool, error)

	// ListByTask returns the newest records first, by start time.
	ListByTask(ctx context.Context, taskID string, limit int) ([]*TaskExecution, error)
	StatusCounts(ctx context.Context, taskID string) (map[ExecutionStatus]int64, error)
	// AverageDurationMs aggregates over records that have an end time.
	AverageDurationMs(ctx context.Context, taskID string) (float64, error)

	// DeleteBeyondKeep removes the oldest records past the newest keep, by
	// start time. Returns the number of purged rows.
	DeleteBeyondKeep(ctx context.Context, taskID string, keep int) (int64, error)
	ListTaskIDs(ctx context.Context) ([]string, error)
	ListStaleRunning(ctx context.Context, startedBefore time.Time) ([]*TaskExecution, error)
}
