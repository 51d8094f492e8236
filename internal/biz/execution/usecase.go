package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const DefaultKeep = 30

// Usecase tracks execution history: opening records, writing the single
// terminal update, serving history queries and trimming retention.
type Usecase struct {
	repo   Repo
	keep   int
	logger *zap.Logger

	now func() time.Time
}

func NewUsecase(repo Repo, keep int, logger *zap.Logger) *Usecase {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Usecase{
		repo:   repo,
		keep:   keep,
		logger: logger,
		now:    time.Now,
	}
}

// RecordStart opens a running record for one firing of a task.
func (u *Usecase) RecordStart(ctx context.Context, taskID string, manual bool) (*TaskExecution, error) {
	exec := NewRunning(taskID, manual, u.now())
	if err := u.repo.Create(ctx, exec); err != nil {
		return nil, err
	}
	return exec, nil
}

// AttachConversation links the lazily created conversation while the run is
// still open.
func (u *Usecase) AttachConversation(ctx context.Context, executionID, conversationID string) error {
	return u.repo.Update(ctx, executionID, &TaskExecutionPatch{ConversationID: &conversationID})
}

// RecordCompletion writes the terminal state. Lost races (a concurrent
// terminal write, e.g. the stale-running sweep) are logged and dropped, never
// retried: the first terminal write wins.
func (u *Usecase) RecordCompletion(ctx context.Context, executionID string, patch *TaskExecutionPatch) error {
	applied, err := u.repo.FinishIfRunning(ctx, executionID, patch)
	if err != nil {
		return err
	}
	if !applied {
		u.logger.Warn("completion dropped, execution already finished",
			zap.String("execution_id", executionID))
	}
	return nil
}

func (u *Usecase) ListForTask(ctx context.Context, taskID string, limit int) ([]*TaskExecution, error) {
	if limit <= 0 || limit > 100 {
		limit = u.keep
	}
	return u.repo.ListByTask(ctx, taskID, limit)
}

type Stats struct {
	Total         int64                     `json:"total"`
	ByStatus      map[ExecutionStatus]int64 `json:"by_status"`
	SuccessRate   float64                   `json:"success_rate"`
	AvgDurationMs float64                   `json:"avg_duration_ms"`
}

// Stats aggregates counts by status, the success rate over completed runs and
// the average duration over runs that have an end time.
func (u *Usecase) Stats(ctx context.Context, taskID string) (*Stats, error) {
	counts, err := u.repo.StatusCounts(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var total, completed int64
	for status, n := range counts {
		total += n
		if status.Terminal() {
			completed += n
		}
	}

	rate := 0.0
	if completed > 0 {
		rate = float64(counts[ExecutionStatusSuccess]) / float64(completed)
	}

	avg, err := u.repo.AverageDurationMs(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Total:         total,
		ByStatus:      counts,
		SuccessRate:   rate,
		AvgDurationMs: avg,
	}, nil
}

// Cleanup trims a task's history down to the newest keep records. Runs
// opportunistically after completions; failures only log.
func (u *Usecase) Cleanup(ctx context.Context, taskID string) {
	purged, err := u.repo.DeleteBeyondKeep(ctx, taskID, u.keep)
	if err != nil {
		u.logger.Error("history cleanup failed",
			zap.String("task_id", taskID), zap.Error(err))
		return
	}
	if purged > 0 {
		u.logger.Debug("history trimmed",
			zap.String("task_id", taskID), zap.Int64("purged", purged))
	}
}

// CleanupAll trims every task with history; the nightly housekeeping pass.
func (u *Usecase) CleanupAll(ctx context.Context) error {
	taskIDs, err := u.repo.ListTaskIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range taskIDs {
		u.Cleanup(ctx, id)
	}
	return nil
}

// SweepStaleRunning times out records stuck in running longer than maxAge,
// e.g. after a crash mid-execution.
func (u *Usecase) SweepStaleRunning(ctx context.Context, maxAge time.Duration) error {
	cutoff := u.now().Add(-maxAge)
	stale, err := u.repo.ListStaleRunning(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, exec := range stale {
		reason := fmt.Sprintf("execution exceeded %s without completing", maxAge)
		if err := u.RecordCompletion(ctx, exec.ID, exec.MarkTimeout(reason, u.now())); err != nil {
			u.logger.Error("failed to time out stale execution",
				zap.String("execution_id", exec.ID), zap.Error(err))
			continue
		}
		u.logger.Warn("stale running execution timed out",
			zap.String("execution_id", exec.ID),
			zap.String("task_id", exec.TaskID),
			zap.Time("start_time", exec.StartTime))
	}
	return nil
}
