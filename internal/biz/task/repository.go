package task

import (
	"context"

	"github.com/samber/mo"

	"github.com/promptops/scheduler/internal/limits"
)

type Repo interface {
	Create(ctx context.Context, task *Task) error
	// GetByID loads a task regardless of owner; used by the execution path,
	// which is invoked with a task id only.
	GetByID(ctx context.Context, id string) (*Task, error)
	// GetByOwner loads a task scoped to its owner; returns nil when the task
	// does not exist or belongs to someone else.
	GetByOwner(ctx context.Context, ownerID, id string) (*Task, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, patch *TaskPatch) error
	ListByOwner(ctx context.Context, ownerID string, filter *TaskFilter) ([]*Task, error)

	// CountActiveByOwner feeds quota checks: active tasks only, by class.
	CountActiveByOwner(ctx context.Context, ownerID string) (limits.Counts, error)

	// FindByStatus returns every task in the given status regardless of
	// owner; used to restore schedules and recover stuck runs after a
	// restart.
	FindByStatus(ctx context.Context, status TaskStatus) ([]*Task, error)
}

type TaskFilter struct {
	Status mo.Option[TaskStatus]
}
