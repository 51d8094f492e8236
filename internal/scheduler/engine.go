package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/promptops/scheduler/internal/biz/execution"
	"github.com/promptops/scheduler/internal/biz/task"
	"github.com/promptops/scheduler/internal/recurrence"
)

// Engine owns the process-wide scheduling machinery: it binds the timer
// queue to the coordinator, restores in-memory schedules from the database
// after a restart and runs the nightly housekeeping sweep.
type Engine struct {
	taskRepo    task.Repo
	tasks       *task.Usecase
	history     *execution.Usecase
	queue       *TimerQueue
	coordinator *Coordinator
	logger      *zap.Logger

	housekeepingSpec string
	staleAge         time.Duration

	cron *cron.Cron
	now  func() time.Time
}

func NewEngine(
	taskRepo task.Repo,
	tasks *task.Usecase,
	history *execution.Usecase,
	queue *TimerQueue,
	coordinator *Coordinator,
	logger *zap.Logger,
	housekeepingSpec string,
	runTimeout time.Duration,
) *Engine {
	return &Engine{
		taskRepo:         taskRepo,
		tasks:            tasks,
		history:          history,
		queue:            queue,
		coordinator:      coordinator,
		logger:           logger,
		housekeepingSpec: housekeepingSpec,
		// A run older than its deadline plus slack cannot still be live.
		staleAge: runTimeout + 10*time.Minute,
		cron:     cron.New(cron.WithSeconds()),
		now:      time.Now,
	}
}

// Start wires the queue to the coordinator, recovers state left behind by a
// previous process and begins the housekeeping schedule.
func (e *Engine) Start(ctx context.Context) error {
	e.queue.Bind(e.coordinator.Execute)

	if err := e.recoverStuckTasks(ctx); err != nil {
		return err
	}
	if err := e.restoreSchedules(ctx); err != nil {
		return err
	}
	if err := e.history.SweepStaleRunning(ctx, e.staleAge); err != nil {
		e.logger.Error("stale execution sweep failed", zap.Error(err))
	}

	if _, err := e.cron.AddFunc(e.housekeepingSpec, e.housekeep); err != nil {
		return err
	}
	e.cron.Start()

	e.logger.Info("engine started",
		zap.Int("pending_jobs", e.queue.Pending()),
		zap.String("housekeeping_cron", e.housekeepingSpec))
	return nil
}

// Stop halts housekeeping, drops every pending timer and waits for in-flight
// executions to finish, so a shutdown never cuts a run mid-write.
func (e *Engine) Stop() {
	e.cron.Stop()
	e.queue.Stop()
	e.logger.Info("engine stopped")
}

// recoverStuckTasks returns tasks left in running by a crashed process to
// active so restoreSchedules picks them up again.
func (e *Engine) recoverStuckTasks(ctx context.Context) error {
	stuck, err := e.taskRepo.FindByStatus(ctx, task.TaskStatusRunning)
	if err != nil {
		return err
	}
	for _, t := range stuck {
		patch := task.NewTaskPatch().WithStatus(task.TaskStatusActive).WithPendingJobCleared()
		if err := e.tasks.Patch(ctx, t.ID, patch); err != nil {
			e.logger.Error("failed to recover stuck task",
				zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		e.logger.Warn("recovered task stuck in running", zap.String("task_id", t.ID))
	}
	return nil
}

// restoreSchedules recomputes the next occurrence of every active task from
// its canonical schedule parameters and queues it. Stored handles are dead
// after a restart, so every task gets a fresh one. A one-time task whose
// moment passed while the process was down fires immediately.
func (e *Engine) restoreSchedules(ctx context.Context) error {
	active, err := e.taskRepo.FindByStatus(ctx, task.TaskStatusActive)
	if err != nil {
		return err
	}

	restored := 0
	for _, t := range active {
		next, err := recurrence.Next(t.Schedule(), e.now())
		if err != nil {
			e.logger.Error("cannot restore schedule, pausing task",
				zap.String("task_id", t.ID), zap.Error(err))
			patch := task.NewTaskPatch().WithStatus(task.TaskStatusPaused).WithPendingJobCleared()
			if perr := e.tasks.Patch(ctx, t.ID, patch); perr != nil {
				e.logger.Error("failed to park task", zap.Error(perr))
			}
			continue
		}
		if t.ScheduleType == recurrence.TypeOnetime && t.NextExecutionAt != nil {
			// A no-date one-time task resolved its concrete day at creation;
			// the stored instant is the authoritative one.
			next = *t.NextExecutionAt
		}
		handle, err := e.queue.ScheduleAt(next, t.ID, false)
		if err != nil {
			e.logger.Error("failed to queue restored task",
				zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		patch := task.NewTaskPatch().WithPendingJob(next, handle)
		if err := e.tasks.Patch(ctx, t.ID, patch); err != nil {
			e.logger.Error("failed to persist restored schedule",
				zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		restored++
	}

	e.logger.Info("schedules restored",
		zap.Int("active_tasks", len(active)), zap.Int("restored", restored))
	return nil
}

func (e *Engine) housekeep() {
	ctx := context.Background()
	if err := e.history.CleanupAll(ctx); err != nil {
		e.logger.Error("history cleanup sweep failed", zap.Error(err))
	}
	if err := e.history.SweepStaleRunning(ctx, e.staleAge); err != nil {
		e.logger.Error("stale execution sweep failed", zap.Error(err))
	}
}
