package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/promptops/scheduler/internal/biz/execution"
	"github.com/promptops/scheduler/internal/biz/task"
	"github.com/promptops/scheduler/internal/recurrence"
)

// Coordinator runs a single due execution end to end: open the history
// record, delegate to the runner, write the terminal update, decide
// rescheduling and fire the notification. It re-enters the lifecycle manager
// only through its patch primitive and owns every TaskExecution write.
type Coordinator struct {
	tasks         *task.Usecase
	taskRepo      task.Repo
	history       *execution.Usecase
	queue         task.JobQueue
	runner        Runner
	conversations ConversationStore
	notifier      Notifier
	logger        *zap.Logger

	runTimeout      time.Duration
	summaryMaxRunes int

	now func() time.Time
}

func NewCoordinator(
	tasks *task.Usecase,
	taskRepo task.Repo,
	history *execution.Usecase,
	queue task.JobQueue,
	runner Runner,
	conversations ConversationStore,
	notifier Notifier,
	logger *zap.Logger,
	runTimeout time.Duration,
	summaryMaxRunes int,
) *Coordinator {
	if summaryMaxRunes <= 0 {
		summaryMaxRunes = 500
	}
	return &Coordinator{
		tasks:           tasks,
		taskRepo:        taskRepo,
		history:         history,
		queue:           queue,
		runner:          runner,
		conversations:   conversations,
		notifier:        notifier,
		logger:          logger,
		runTimeout:      runTimeout,
		summaryMaxRunes: summaryMaxRunes,
		now:             time.Now,
	}
}

// Execute handles one due invocation. Execution-time errors are recorded in
// the history, never returned: the scheduling pipeline keeps running no
// matter how a single run ends.
func (c *Coordinator) Execute(taskID string, manual bool) {
	ctx := context.Background()

	t, err := c.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		c.logger.Error("failed to load task for execution",
			zap.String("task_id", taskID), zap.Error(err))
		return
	}
	if t == nil || t.Status != task.TaskStatusActive {
		// The task was paused, archived or deleted after this job was
		// scheduled. Cancel is best-effort, this re-check is authoritative:
		// drop the invocation without a history record.
		c.logger.Debug("dropping stale invocation", zap.String("task_id", taskID))
		return
	}

	exec, err := c.history.RecordStart(ctx, t.ID, manual)
	if err != nil {
		c.logger.Error("failed to open execution record",
			zap.String("task_id", t.ID), zap.Error(err))
		return
	}

	c.logger.Info("executing task",
		zap.String("task_id", t.ID),
		zap.String("execution_id", exec.ID),
		zap.Bool("manual", manual))

	if !manual {
		if err := c.tasks.Patch(ctx, t.ID, task.NewTaskPatch().WithStatus(task.TaskStatusRunning)); err != nil {
			c.logger.Error("failed to mark task running",
				zap.String("task_id", t.ID), zap.Error(err))
		}
	}

	defer func() {
		if r := recover(); r != nil {
			// Close the record and unstick the task so it does not appear
			// running forever; nothing propagates past this point.
			c.logger.Error("panic during task execution",
				zap.String("task_id", t.ID),
				zap.String("execution_id", exec.ID),
				zap.Any("panic", r))
			reason := fmt.Sprintf("internal error: %v", r)
			if err := c.history.RecordCompletion(ctx, exec.ID, exec.MarkFailure(reason, c.now())); err != nil {
				c.logger.Error("failed to record panic failure", zap.Error(err))
			}
			c.finalize(ctx, t, exec.StartTime, manual)
		}
	}()

	// Linked conversation, created lazily on the first run.
	var convID string
	if t.LinkedConversationID != nil {
		convID = *t.LinkedConversationID
	} else {
		convID, err = c.conversations.EnsureConversation(ctx, t.OwnerID, t.ID, t.Title)
		if err != nil {
			reason := "failed to create linked conversation: " + err.Error()
			if cerr := c.history.RecordCompletion(ctx, exec.ID, exec.MarkFailure(reason, c.now())); cerr != nil {
				c.logger.Error("failed to record failure", zap.Error(cerr))
			}
			c.finalize(ctx, t, exec.StartTime, manual)
			return
		}
		if err := c.tasks.Patch(ctx, t.ID, task.NewTaskPatch().WithLinkedConversationID(convID)); err != nil {
			c.logger.Error("failed to link conversation",
				zap.String("task_id", t.ID), zap.Error(err))
		}
	}
	if err := c.history.AttachConversation(ctx, exec.ID, convID); err != nil {
		c.logger.Error("failed to attach conversation to execution",
			zap.String("execution_id", exec.ID), zap.Error(err))
	}

	runCtx, cancel := context.WithTimeout(ctx, c.runTimeout)
	defer cancel()
	result, runErr := c.runner.Run(runCtx, RunRequest{
		TaskID:           t.ID,
		OwnerID:          t.OwnerID,
		Prompt:           t.Prompt,
		ConversationID:   convID,
		EnabledToolSlugs: t.EnabledToolSlugs,
		SearchEnabled:    t.SearchEnabled,
	})

	now := c.now()
	switch {
	case runErr == nil:
		if err := c.conversations.AppendTurn(ctx, convID, t.Prompt, result.Text); err != nil {
			c.logger.Warn("failed to persist conversation turn",
				zap.String("execution_id", exec.ID), zap.Error(err))
		}
		if err := c.history.RecordCompletion(ctx, exec.ID, exec.MarkSuccess(result.Metadata(), now)); err != nil {
			c.logger.Error("failed to record success", zap.Error(err))
		}

	case errors.Is(runErr, context.DeadlineExceeded):
		reason := fmt.Sprintf("run exceeded %s", c.runTimeout)
		if err := c.history.RecordCompletion(ctx, exec.ID, exec.MarkTimeout(reason, now)); err != nil {
			c.logger.Error("failed to record timeout", zap.Error(err))
		}

	default:
		if err := c.history.RecordCompletion(ctx, exec.ID, exec.MarkFailure(runErr.Error(), now)); err != nil {
			c.logger.Error("failed to record failure", zap.Error(err))
		}
	}

	// Rescheduling happens on success and failure alike: one bad run never
	// stalls a recurring task, and a one-time task never retries.
	c.finalize(ctx, t, exec.StartTime, manual)

	if runErr == nil && t.EmailNotify {
		c.notifySummary(ctx, t, convID, result.Text)
	}

	c.history.Cleanup(ctx, t.ID)
}

// finalize updates lastExecutedAt and makes the post-run scheduling decision:
// archive one-time tasks, schedule the next canonical occurrence for
// recurring ones, leave everything alone for manual runs.
func (c *Coordinator) finalize(ctx context.Context, t *task.Task, startedAt time.Time, manual bool) {
	patch := task.NewTaskPatch().WithLastExecutedAt(startedAt)

	if manual {
		if err := c.tasks.Patch(ctx, t.ID, patch); err != nil {
			c.logger.Error("failed to update last execution time",
				zap.String("task_id", t.ID), zap.Error(err))
		}
		return
	}

	fresh, err := c.taskRepo.GetByID(ctx, t.ID)
	if err != nil {
		c.logger.Error("failed to reload task after run",
			zap.String("task_id", t.ID), zap.Error(err))
		return
	}
	if fresh == nil {
		// Deleted mid-run; nothing left to update.
		return
	}
	if fresh.Status != task.TaskStatusRunning {
		// Paused or archived mid-run; record the attempt but do not fight
		// the user's transition.
		if err := c.tasks.Patch(ctx, t.ID, patch); err != nil {
			c.logger.Error("failed to update last execution time",
				zap.String("task_id", t.ID), zap.Error(err))
		}
		return
	}

	if fresh.ScheduleType == recurrence.TypeOnetime {
		patch.WithStatus(task.TaskStatusArchived).WithPendingJobCleared()
		if err := c.tasks.Patch(ctx, t.ID, patch); err != nil {
			c.logger.Error("failed to archive one-time task",
				zap.String("task_id", t.ID), zap.Error(err))
		}
		return
	}

	// Next occurrence always derives from the canonical schedule parameters,
	// never from start time plus interval, so a delayed run does not drift
	// the wall-clock time. Read them from the fresh row: an update that landed
	// mid-run wins over the snapshot this run started from.
	if fresh.PendingJobHandle != nil {
		c.queue.Cancel(*fresh.PendingJobHandle)
	}
	next, err := recurrence.Next(fresh.Schedule(), c.now())
	if err != nil {
		c.logger.Error("schedule parameters no longer computable, pausing task",
			zap.String("task_id", t.ID), zap.Error(err))
		patch.WithStatus(task.TaskStatusPaused).WithPendingJobCleared()
		if perr := c.tasks.Patch(ctx, t.ID, patch); perr != nil {
			c.logger.Error("failed to park task", zap.Error(perr))
		}
		return
	}
	handle, err := c.queue.ScheduleAt(next, t.ID, false)
	if err != nil {
		c.logger.Error("failed to schedule next occurrence",
			zap.String("task_id", t.ID), zap.Error(err))
		patch.WithStatus(task.TaskStatusActive).WithPendingJobCleared()
		if perr := c.tasks.Patch(ctx, t.ID, patch); perr != nil {
			c.logger.Error("failed to update task after run", zap.Error(perr))
		}
		return
	}

	patch.WithStatus(task.TaskStatusActive).WithPendingJob(next, handle)
	if err := c.tasks.Patch(ctx, t.ID, patch); err != nil {
		c.logger.Error("failed to reschedule task",
			zap.String("task_id", t.ID), zap.Error(err))
		return
	}

	c.logger.Info("task rescheduled",
		zap.String("task_id", t.ID),
		zap.Time("next_execution_at", next))
}

// notifySummary sends the truncated run summary. Notifier errors are fully
// swallowed; they never surface as execution failures.
func (c *Coordinator) notifySummary(ctx context.Context, t *task.Task, convID, text string) {
	if err := c.notifier.SendSummary(ctx, t.OwnerID, t.Title, truncateRunes(text, c.summaryMaxRunes), convID); err != nil {
		c.logger.Warn("summary notification failed",
			zap.String("task_id", t.ID), zap.Error(err))
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
