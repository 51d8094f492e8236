package execution

import (
	"time"

	"github.com/google/uuid"
)

// TaskExecution is the audit record for one firing of a task. The ID doubles
// as the idempotency key for the terminal completion write.
type TaskExecution struct {
	ID        string
	TaskID    string
	CreatedAt time.Time
	UpdatedAt time.Time

	Status          ExecutionStatus
	StartTime       time.Time
	EndTime         *time.Time
	ConversationID  *string
	ErrorMessage    *string
	Metadata        map[string]any
	IsManualTrigger bool
}

// NewRunning opens a fresh record at invocation time.
func NewRunning(taskID string, manual bool, now time.Time) *TaskExecution {
	return &TaskExecution{
		ID:              uuid.New().String(),
		TaskID:          taskID,
		Status:          ExecutionStatusRunning,
		StartTime:       now,
		IsManualTrigger: manual,
	}
}

func (e *TaskExecution) MarkSuccess(metadata map[string]any, now time.Time) *TaskExecutionPatch {
	e.Status = ExecutionStatusSuccess
	e.EndTime = &now
	e.Metadata = metadata
	return &TaskExecutionPatch{
		Status:   &e.Status,
		EndTime:  &now,
		Metadata: &metadata,
	}
}

func (e *TaskExecution) MarkFailure(reason string, now time.Time) *TaskExecutionPatch {
	e.Status = ExecutionStatusFailure
	e.EndTime = &now
	e.ErrorMessage = &reason
	return &TaskExecutionPatch{
		Status:       &e.Status,
		EndTime:      &now,
		ErrorMessage: &reason,
	}
}

func (e *TaskExecution) MarkTimeout(reason string, now time.Time) *TaskExecutionPatch {
	e.Status = ExecutionStatusTimeout
	e.EndTime = &now
	e.ErrorMessage = &reason
	return &TaskExecutionPatch{
		Status:       &e.Status,
		EndTime:      &now,
		ErrorMessage: &reason,
	}
}

func (e *TaskExecution) MarkCancelled(now time.Time) *TaskExecutionPatch {
	e.Status = ExecutionStatusCancelled
	e.EndTime = &now
	return &TaskExecutionPatch{
		Status:  &e.Status,
		EndTime: &now,
	}
}

// Duration returns the run length for ended records, zero otherwise.
func (e *TaskExecution) Duration() time.Duration {
	if e.EndTime == nil {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

type TaskExecutionPatch struct {
	Status         *ExecutionStatus
	EndTime        *time.Time
	ConversationID *string
	ErrorMessage   *string
	Metadata       *map[string]any
}
