package execution

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu    sync.Mutex
	execs map[string]*TaskExecution
	order []string
}

func newMemRepo() *memRepo {
	return &memRepo{execs: make(map[string]*TaskExecution)}
}

func (r *memRepo) Create(_ context.Context, exec *TaskExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *exec
	r.execs[exec.ID] = &cp
	r.order = append(r.order, exec.ID)
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*TaskExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *memRepo) apply(e *TaskExecution, patch *TaskExecutionPatch) {
	if patch.Status != nil {
		e.Status = *patch.Status
	}
	if patch.EndTime != nil {
		e.EndTime = patch.EndTime
	}
	if patch.ConversationID != nil {
		e.ConversationID = patch.ConversationID
	}
	if patch.ErrorMessage != nil {
		e.ErrorMessage = patch.ErrorMessage
	}
	if patch.Metadata != nil {
		e.Metadata = *patch.Metadata
	}
}

func (r *memRepo) Update(_ context.Context, id string, patch *TaskExecutionPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[id]
	if !ok {
		return fmt.Errorf("execution %s not found", id)
	}
	r.apply(e, patch)
	return nil
}

func (r *memRepo) FinishIfRunning(_ context.Context, id string, patch *TaskExecutionPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[id]
	if !ok {
		return false, fmt.Errorf("execution %s not found", id)
	}
	if e.Status != ExecutionStatusRunning {
		return false, nil
	}
	r.apply(e, patch)
	return true, nil
}

func (r *memRepo) ListByTask(_ context.Context, taskID string, limit int) ([]*TaskExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*TaskExecution
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.execs[r.order[i]]
		if e != nil && e.TaskID == taskID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) StatusCounts(_ context.Context, taskID string) (map[ExecutionStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[ExecutionStatus]int64)
	for _, e := range r.execs {
		if e.TaskID == taskID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (r *memRepo) AverageDurationMs(_ context.Context, taskID string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	var n int
	for _, e := range r.execs {
		if e.TaskID == taskID && e.EndTime != nil {
			total += float64(e.EndTime.Sub(e.StartTime).Milliseconds())
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}

func (r *memRepo) DeleteBeyondKeep(_ context.Context, taskID string, keep int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for i := len(r.order) - 1; i >= 0; i-- {
		e := r.execs[r.order[i]]
		if e != nil && e.TaskID == taskID {
			ids = append(ids, e.ID)
		}
	}
	var purged int64
	for i, id := range ids {
		if i < keep {
			continue
		}
		delete(r.execs, id)
		purged++
	}
	return purged, nil
}

func (r *memRepo) ListTaskIDs(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.execs {
		if !seen[e.TaskID] {
			seen[e.TaskID] = true
			out = append(out, e.TaskID)
		}
	}
	return out, nil
}

func (r *memRepo) ListStaleRunning(_ context.Context, startedBefore time.Time) ([]*TaskExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*TaskExecution
	for _, e := range r.execs {
		if e.Status == ExecutionStatusRunning && e.StartTime.Before(startedBefore) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) countByTask(taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.execs {
		if e.TaskID == taskID {
			n++
		}
	}
	return n
}

func newTestUsecase(keep int) (*Usecase, *memRepo) {
	repo := newMemRepo()
	return NewUsecase(repo, keep, zap.NewNop()), repo
}

func TestRecordStartOpensRunningRecord(t *testing.T) {
	uc, repo := newTestUsecase(DefaultKeep)

	exec, err := uc.RecordStart(context.Background(), "task-1", true)
	require.NoError(t, err)
	assert.NotEmpty(t, exec.ID)
	assert.Equal(t, ExecutionStatusRunning, exec.Status)
	assert.True(t, exec.IsManualTrigger)
	assert.Nil(t, exec.EndTime)

	stored, _ := repo.GetByID(context.Background(), exec.ID)
	require.NotNil(t, stored)
	assert.Equal(t, ExecutionStatusRunning, stored.Status)
}

func TestRecordCompletionWritesTerminalState(t *testing.T) {
	uc, repo := newTestUsecase(DefaultKeep)
	exec, err := uc.RecordStart(context.Background(), "task-1", false)
	require.NoError(t, err)

	meta := map[string]any{"output_tokens": int64(42)}
	require.NoError(t, uc.RecordCompletion(context.Background(), exec.ID, exec.MarkSuccess(meta, time.Now())))

	stored, _ := repo.GetByID(context.Background(), exec.ID)
	assert.Equal(t, ExecutionStatusSuccess, stored.Status)
	require.NotNil(t, stored.EndTime)
	assert.Equal(t, int64(42), stored.Metadata["output_tokens"])
}

func TestRecordCompletionFirstTerminalWriteWins(t *testing.T) {
	uc, repo := newTestUsecase(DefaultKeep)
	exec, err := uc.RecordStart(context.Background(), "task-1", false)
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, uc.RecordCompletion(context.Background(), exec.ID, exec.MarkTimeout("too slow", now)))
	// The late success write is dropped, not an error.
	require.NoError(t, uc.RecordCompletion(context.Background(), exec.ID, exec.MarkSuccess(nil, now.Add(time.Second))))

	stored, _ := repo.GetByID(context.Background(), exec.ID)
	assert.Equal(t, ExecutionStatusTimeout, stored.Status)
}

func TestCleanupKeepsNewestRecords(t *testing.T) {
	uc, repo := newTestUsecase(30)
	base := time.Now().Add(-40 * time.Hour)
	for i := 0; i < 40; i++ {
		exec := NewRunning("task-1", false, base.Add(time.Duration(i)*time.Hour))
		exec.Status = ExecutionStatusSuccess
		require.NoError(t, repo.Create(context.Background(), exec))
	}

	uc.Cleanup(context.Background(), "task-1")

	assert.Equal(t, 30, repo.countByTask("task-1"))
	newest, _ := repo.ListByTask(context.Background(), "task-1", 1)
	require.Len(t, newest, 1)
	assert.Equal(t, base.Add(39*time.Hour), newest[0].StartTime, "the oldest records are the ones purged")
}

func TestCleanupLeavesOtherTasksAlone(t *testing.T) {
	uc, repo := newTestUsecase(30)
	for i := 0; i < 35; i++ {
		require.NoError(t, repo.Create(context.Background(), NewRunning("task-1", false, time.Now())))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(context.Background(), NewRunning("task-2", false, time.Now())))
	}

	uc.Cleanup(context.Background(), "task-1")

	assert.Equal(t, 30, repo.countByTask("task-1"))
	assert.Equal(t, 5, repo.countByTask("task-2"))
}

func TestCleanupAllTrimsEveryTask(t *testing.T) {
	uc, repo := newTestUsecase(30)
	for _, taskID := range []string{"task-1", "task-2"} {
		for i := 0; i < 33; i++ {
			require.NoError(t, repo.Create(context.Background(), NewRunning(taskID, false, time.Now())))
		}
	}

	require.NoError(t, uc.CleanupAll(context.Background()))

	assert.Equal(t, 30, repo.countByTask("task-1"))
	assert.Equal(t, 30, repo.countByTask("task-2"))
}

func TestListForTaskClampsLimit(t *testing.T) {
	uc, repo := newTestUsecase(30)
	for i := 0; i < 50; i++ {
		require.NoError(t, repo.Create(context.Background(), NewRunning("task-1", false, time.Now())))
	}

	out, err := uc.ListForTask(context.Background(), "task-1", 0)
	require.NoError(t, err)
	assert.Len(t, out, 30)

	out, err = uc.ListForTask(context.Background(), "task-1", 999)
	require.NoError(t, err)
	assert.Len(t, out, 30)

	out, err = uc.ListForTask(context.Background(), "task-1", 10)
	require.NoError(t, err)
	assert.Len(t, out, 10)
}

func TestStatsAggregates(t *testing.T) {
	uc, repo := newTestUsecase(DefaultKeep)
	now := time.Now()

	add := func(status ExecutionStatus, dur time.Duration) {
		exec := NewRunning("task-1", false, now.Add(-dur))
		exec.Status = status
		if status.Terminal() {
			end := now
			exec.EndTime = &end
		}
		require.NoError(t, repo.Create(context.Background(), exec))
	}
	add(ExecutionStatusSuccess, 2*time.Second)
	add(ExecutionStatusSuccess, 4*time.Second)
	add(ExecutionStatusFailure, 3*time.Second)
	add(ExecutionStatusRunning, 0)

	stats, err := uc.Stats(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus[ExecutionStatusSuccess])
	assert.Equal(t, int64(1), stats.ByStatus[ExecutionStatusRunning])
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9, "running records do not dilute the rate")
	assert.InDelta(t, 3000, stats.AvgDurationMs, 1)
}

func TestStatsEmptyHistory(t *testing.T) {
	uc, _ := newTestUsecase(DefaultKeep)

	stats, err := uc.Stats(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.SuccessRate)
	assert.Zero(t, stats.AvgDurationMs)
}

func TestSweepStaleRunningTimesOutOldRecords(t *testing.T) {
	uc, repo := newTestUsecase(DefaultKeep)

	stale := NewRunning("task-1", false, time.Now().Add(-2*time.Hour))
	require.NoError(t, repo.Create(context.Background(), stale))
	live := NewRunning("task-1", false, time.Now().Add(-time.Minute))
	require.NoError(t, repo.Create(context.Background(), live))

	require.NoError(t, uc.SweepStaleRunning(context.Background(), time.Hour))

	got, _ := repo.GetByID(context.Background(), stale.ID)
	assert.Equal(t, ExecutionStatusTimeout, got.Status)
	require.NotNil(t, got.ErrorMessage)

	got, _ = repo.GetByID(context.Background(), live.ID)
	assert.Equal(t, ExecutionStatusRunning, got.Status, "fresh runs are untouched")
}
