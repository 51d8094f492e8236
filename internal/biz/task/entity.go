package task

import (
	"time"

	"github.com/promptops/scheduler/internal/domain/errs"
	"github.com/promptops/scheduler/internal/recurrence"
)

// Task is a user-defined scheduled prompt. PendingJobHandle and
// NextExecutionAt are set together and cleared together; a task holds at most
// one pending job handle at any time.
type Task struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time

	Title  string
	Prompt string

	ScheduleType  recurrence.Type
	ScheduledTime string // "HH:MM", or "D:HH:MM" for weekly
	ScheduledDate string // "YYYY-MM-DD", onetime only
	TimeZone      string

	Status               TaskStatus
	NextExecutionAt      *time.Time
	PendingJobHandle     *string
	LastExecutedAt       *time.Time
	LinkedConversationID *string

	EnabledToolSlugs []string
	SearchEnabled    bool
	EmailNotify      bool
}

// Schedule returns the canonical parameters the next occurrence is always
// derived from.
func (t *Task) Schedule() recurrence.Schedule {
	return recurrence.Schedule{
		Type:     t.ScheduleType,
		Time:     t.ScheduledTime,
		Date:     t.ScheduledDate,
		TimeZone: t.TimeZone,
	}
}

func (t *Task) IsActive() bool {
	return t.Status == TaskStatusActive
}

// Pause transitions to paused. Returns a nil patch when already paused (the
// operation is an idempotent no-op).
func (t *Task) Pause() (*TaskPatch, error) {
	switch t.Status {
	case TaskStatusPaused:
		return nil, nil
	case TaskStatusArchived:
		return nil, errs.ErrTaskArchived
	}
	t.Status = TaskStatusPaused
	return new(TaskPatch).WithStatus(TaskStatusPaused).WithPendingJobCleared(), nil
}

// Resume transitions paused back to active. The caller re-checks quotas and
// schedules a fresh job before applying the returned patch.
func (t *Task) Resume() (*TaskPatch, error) {
	switch t.Status {
	case TaskStatusActive, TaskStatusRunning:
		return nil, nil
	case TaskStatusArchived:
		return nil, errs.ErrTaskArchived
	}
	t.Status = TaskStatusActive
	return new(TaskPatch).WithStatus(TaskStatusActive), nil
}

// Archive terminates the task: schedule fields cleared, no pending job.
func (t *Task) Archive() *TaskPatch {
	t.Status = TaskStatusArchived
	return new(TaskPatch).WithStatus(TaskStatusArchived).WithPendingJobCleared()
}

// TaskPatch is the partial-update unit for a task row. Nil fields are left
// untouched.
type TaskPatch struct {
	Title         *string
	Prompt        *string
	ScheduleType  *recurrence.Type
	ScheduledTime *string
	ScheduledDate *string
	TimeZone      *string
	Status        *TaskStatus

	// NextExecutionAt and PendingJobHandle always travel as a pair: either
	// both set via WithPendingJob or both nulled via WithPendingJobCleared.
	NextExecutionAt  *time.Time
	PendingJobHandle *string
	ClearPendingJob  bool

	LastExecutedAt       *time.Time
	LinkedConversationID *string
	EnabledToolSlugs     *[]string
	SearchEnabled        *bool
	EmailNotify          *bool
}

func NewTaskPatch() *TaskPatch {
	return &TaskPatch{}
}

func (p *TaskPatch) WithTitle(title string) *TaskPatch {
	p.Title = &title
	return p
}

func (p *TaskPatch) WithPrompt(prompt string) *TaskPatch {
	p.Prompt = &prompt
	return p
}

func (p *TaskPatch) WithScheduleType(t recurrence.Type) *TaskPatch {
	p.ScheduleType = &t
	return p
}

func (p *TaskPatch) WithScheduledTime(v string) *TaskPatch {
	p.ScheduledTime = &v
	return p
}

func (p *TaskPatch) WithScheduledDate(v string) *TaskPatch {
	p.ScheduledDate = &v
	return p
}

func (p *TaskPatch) WithTimeZone(v string) *TaskPatch {
	p.TimeZone = &v
	return p
}

func (p *TaskPatch) WithStatus(status TaskStatus) *TaskPatch {
	p.Status = &status
	return p
}

func (p *TaskPatch) WithPendingJob(at time.Time, handle string) *TaskPatch {
	p.NextExecutionAt = &at
	p.PendingJobHandle = &handle
	p.ClearPendingJob = false
	return p
}

func (p *TaskPatch) WithPendingJobCleared() *TaskPatch {
	p.NextExecutionAt = nil
	p.PendingJobHandle = nil
	p.ClearPendingJob = true
	return p
}

func (p *TaskPatch) WithLastExecutedAt(at time.Time) *TaskPatch {
	p.LastExecutedAt = &at
	return p
}

func (p *TaskPatch) WithLinkedConversationID(id string) *TaskPatch {
	p.LinkedConversationID = &id
	return p
}

func (p *TaskPatch) WithEnabledToolSlugs(slugs []string) *TaskPatch {
	p.EnabledToolSlugs = &slugs
	return p
}

func (p *TaskPatch) WithSearchEnabled(v bool) *TaskPatch {
	p.SearchEnabled = &v
	return p
}

func (p *TaskPatch) WithEmailNotify(v bool) *TaskPatch {
	p.EmailNotify = &v
	return p
}
