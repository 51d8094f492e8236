package task

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/google/wire"
	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/promptops/scheduler/internal/domain/errs"
	"github.com/promptops/scheduler/internal/limits"
	"github.com/promptops/scheduler/internal/recurrence"
)

var Provider = wire.NewSet(NewUsecase)

// JobQueue is the delayed-invocation facade the lifecycle manager schedules
// against. Cancel is best-effort: a handle whose timer already fired is
// simply gone.
type JobQueue interface {
	ScheduleAt(at time.Time, taskID string, manual bool) (string, error)
	Cancel(handle string)
}

// Usecase is the single writer of task lifecycle transitions. Every path that
// replaces a pending job cancels the previous handle first, so at most one
// job is ever pending per task.
type Usecase struct {
	repo     Repo
	queue    JobQueue
	enforcer *limits.Enforcer
	logger   *zap.Logger

	now func() time.Time
}

func NewUsecase(repo Repo, queue JobQueue, enforcer *limits.Enforcer, logger *zap.Logger) *Usecase {
	return &Usecase{
		repo:     repo,
		queue:    queue,
		enforcer: enforcer,
		logger:   logger,
		now:      time.Now,
	}
}

type CreateRequest struct {
	Title            string
	Prompt           string
	ScheduleType     recurrence.Type
	ScheduledTime    string
	ScheduledDate    string
	TimeZone         string
	EnabledToolSlugs []string
	SearchEnabled    bool
	EmailNotify      bool
}

func (u *Usecase) Create(ctx context.Context, ownerID string, req *CreateRequest) (*Task, error) {
	if !req.ScheduleType.Valid() {
		return nil, errs.InvalidSchedule("unknown schedule type %q", req.ScheduleType)
	}

	now := u.now()
	sched := recurrence.Schedule{
		Type:     req.ScheduleType,
		Time:     req.ScheduledTime,
		Date:     req.ScheduledDate,
		TimeZone: req.TimeZone,
	}
	if err := recurrence.Validate(sched, now); err != nil {
		return nil, err
	}

	counts, err := u.repo.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if err := u.enforcer.CanCreate(req.ScheduleType, counts); err != nil {
		return nil, err
	}

	next, err := recurrence.Next(sched, now)
	if err != nil {
		return nil, err
	}

	t := &Task{
		ID:               uuid.New().String(),
		OwnerID:          ownerID,
		Title:            req.Title,
		Prompt:           req.Prompt,
		ScheduleType:     req.ScheduleType,
		ScheduledTime:    req.ScheduledTime,
		ScheduledDate:    req.ScheduledDate,
		TimeZone:         req.TimeZone,
		Status:           TaskStatusActive,
		EnabledToolSlugs: req.EnabledToolSlugs,
		SearchEnabled:    req.SearchEnabled,
		EmailNotify:      req.EmailNotify,
	}
	if err := u.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	handle, err := u.queue.ScheduleAt(next, t.ID, false)
	if err != nil {
		// The row without a job is useless; roll it back.
		if derr := u.repo.Delete(ctx, t.ID); derr != nil {
			u.logger.Error("failed to roll back unschedulable task",
				zap.String("task_id", t.ID), zap.Error(derr))
		}
		return nil, err
	}
	if err := u.repo.Update(ctx, t.ID, NewTaskPatch().WithPendingJob(next, handle)); err != nil {
		u.queue.Cancel(handle)
		return nil, err
	}
	t.NextExecutionAt = &next
	t.PendingJobHandle = &handle

	u.logger.Info("task created",
		zap.String("task_id", t.ID),
		zap.String("owner_id", ownerID),
		zap.String("schedule_type", string(req.ScheduleType)),
		zap.Time("next_execution_at", next))

	return t, nil
}

type UpdateRequest struct {
	Title            mo.Option[string]
	Prompt           mo.Option[string]
	ScheduleType     mo.Option[recurrence.Type]
	ScheduledTime    mo.Option[string]
	ScheduledDate    mo.Option[string]
	TimeZone         mo.Option[string]
	EnabledToolSlugs mo.Option[[]string]
	SearchEnabled    mo.Option[bool]
	EmailNotify      mo.Option[bool]
	Status           mo.Option[TaskStatus] // active or paused only
}

func (u *Usecase) Update(ctx context.Context, ownerID, id string, req *UpdateRequest) (*Task, error) {
	t, err := u.repo.GetByOwner(ctx, ownerID, id)
	if err != nil {
		return nil, err
	} else if t == nil {
		return nil, errs.ErrTaskNotFound
	}
	if t.Status == TaskStatusArchived {
		return nil, errs.ErrTaskArchived
	}

	patch := NewTaskPatch()
	patch.Title = req.Title.ToPointer()
	patch.Prompt = req.Prompt.ToPointer()
	patch.EnabledToolSlugs = req.EnabledToolSlugs.ToPointer()
	patch.SearchEnabled = req.SearchEnabled.ToPointer()
	patch.EmailNotify = req.EmailNotify.ToPointer()

	sched := t.Schedule()
	scheduleChanged := false
	if v, ok := req.ScheduleType.Get(); ok && v != t.ScheduleType {
		if !v.Valid() {
			return nil, errs.InvalidSchedule("unknown schedule type %q", v)
		}
		sched.Type = v
		patch.WithScheduleType(v)
		scheduleChanged = true
	}
	if v, ok := req.ScheduledTime.Get(); ok && v != t.ScheduledTime {
		sched.Time = v
		patch.WithScheduledTime(v)
		scheduleChanged = true
	}
	if v, ok := req.ScheduledDate.Get(); ok && v != t.ScheduledDate {
		sched.Date = v
		patch.WithScheduledDate(v)
		scheduleChanged = true
	}
	if v, ok := req.TimeZone.Get(); ok && v != t.TimeZone {
		sched.TimeZone = v
		patch.WithTimeZone(v)
		scheduleChanged = true
	}

	now := u.now()
	if scheduleChanged {
		if err := recurrence.Validate(sched, now); err != nil {
			return nil, err
		}
	}

	target := t.Status
	if v, ok := req.Status.Get(); ok {
		switch v {
		case TaskStatusActive, TaskStatusPaused:
			target = v
		default:
			return nil, errs.NewBusinessError("INVALID_STATUS",
				"status can only be set to active or paused", nil)
		}
	}

	resuming := t.Status == TaskStatusPaused && target == TaskStatusActive
	if resuming {
		counts, err := u.repo.CountActiveByOwner(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if err := u.enforcer.CanCreate(sched.Type, counts); err != nil {
			return nil, err
		}
		patch.WithStatus(TaskStatusActive)
	}

	var newHandle string
	switch {
	case target == TaskStatusPaused:
		u.cancelPending(t)
		patch.WithStatus(TaskStatusPaused).WithPendingJobCleared()

	case scheduleChanged || resuming:
		// Cancel happens-before scheduling the replacement, so the task
		// never holds two pending jobs.
		u.cancelPending(t)
		next, err := recurrence.Next(sched, now)
		if err != nil {
			return nil, err
		}
		newHandle, err = u.queue.ScheduleAt(next, t.ID, false)
		if err != nil {
			return nil, err
		}
		patch.WithPendingJob(next, newHandle)
	}

	if err := u.repo.Update(ctx, t.ID, patch); err != nil {
		if newHandle != "" {
			u.queue.Cancel(newHandle)
		}
		return nil, err
	}
	return u.repo.GetByOwner(ctx, ownerID, id)
}

func (u *Usecase) Pause(ctx context.Context, ownerID, id string) error {
	t, err := u.repo.GetByOwner(ctx, ownerID, id)
	if err != nil {
		return err
	} else if t == nil {
		return errs.ErrTaskNotFound
	}

	patch, err := t.Pause()
	if err != nil {
		return err
	}
	if patch == nil {
		return nil
	}

	u.cancelPending(t)
	if err := u.repo.Update(ctx, t.ID, patch); err != nil {
		return err
	}

	u.logger.Info("task paused", zap.String("task_id", t.ID))
	return nil
}

func (u *Usecase) Resume(ctx context.Context, ownerID, id string) error {
	t, err := u.repo.GetByOwner(ctx, ownerID, id)
	if err != nil {
		return err
	} else if t == nil {
		return errs.ErrTaskNotFound
	}

	patch, err := t.Resume()
	if err != nil {
		return err
	}
	if patch == nil {
		return nil
	}

	counts, err := u.repo.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if err := u.enforcer.CanCreate(t.ScheduleType, counts); err != nil {
		return err
	}

	now := u.now()
	next, err := recurrence.Next(t.Schedule(), now)
	if err != nil {
		return err
	}

	u.cancelPending(t)
	handle, err := u.queue.ScheduleAt(next, t.ID, false)
	if err != nil {
		return err
	}
	patch.WithPendingJob(next, handle)

	if err := u.repo.Update(ctx, t.ID, patch); err != nil {
		u.queue.Cancel(handle)
		return err
	}

	u.logger.Info("task resumed",
		zap.String("task_id", t.ID),
		zap.Time("next_execution_at", next))
	return nil
}

func (u *Usecase) Delete(ctx context.Context, ownerID, id string) error {
	t, err := u.repo.GetByOwner(ctx, ownerID, id)
	if err != nil {
		return err
	} else if t == nil {
		return errs.ErrTaskNotFound
	}

	u.cancelPending(t)
	if err := u.repo.Delete(ctx, t.ID); err != nil {
		return err
	}

	u.logger.Info("task deleted", zap.String("task_id", t.ID))
	return nil
}

// TriggerNow enqueues an immediate manual run. The recurring schedule and the
// task status are left untouched; the request returns as soon as the job is
// queued.
func (u *Usecase) TriggerNow(ctx context.Context, ownerID, id string) error {
	t, err := u.repo.GetByOwner(ctx, ownerID, id)
	if err != nil {
		return err
	} else if t == nil {
		return errs.ErrTaskNotFound
	}
	if t.Status != TaskStatusActive {
		return errs.NewBusinessError("TASK_NOT_ACTIVE",
			"only active tasks can be triggered manually", nil)
	}

	if _, err := u.queue.ScheduleAt(u.now(), t.ID, true); err != nil {
		return err
	}

	u.logger.Info("task triggered manually", zap.String("task_id", t.ID))
	return nil
}

func (u *Usecase) Get(ctx context.Context, ownerID, id string) (*Task, error) {
	t, err := u.repo.GetByOwner(ctx, ownerID, id)
	if err != nil {
		return nil, err
	} else if t == nil {
		return nil, errs.ErrTaskNotFound
	}
	return t, nil
}

func (u *Usecase) List(ctx context.Context, ownerID string, filter *TaskFilter) ([]*Task, error) {
	if filter == nil {
		filter = &TaskFilter{}
	}
	return u.repo.ListByOwner(ctx, ownerID, filter)
}

// Limits returns the owner's per-class quota usage summary.
func (u *Usecase) Limits(ctx context.Context, ownerID string) (limits.Summary, error) {
	counts, err := u.repo.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return limits.Summary{}, err
	}
	return u.enforcer.Summarize(counts), nil
}

// Patch is the narrow primitive the execution coordinator re-enters with
// after a run: last-executed bookkeeping, archive-on-completion and the
// replacement pending-job pair. It bypasses owner scoping on purpose; the
// coordinator acts on behalf of the system, not a request.
func (u *Usecase) Patch(ctx context.Context, id string, patch *TaskPatch) error {
	return u.repo.Update(ctx, id, patch)
}

func (u *Usecase) cancelPending(t *Task) {
	if t.PendingJobHandle != nil {
		u.queue.Cancel(*t.PendingJobHandle)
	}
}
