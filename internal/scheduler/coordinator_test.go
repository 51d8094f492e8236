package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/promptops/scheduler/internal/biz/execution"
	"github.com/promptops/scheduler/internal/biz/task"
	"github.com/promptops/scheduler/internal/limits"
	"github.com/promptops/scheduler/internal/recurrence"
)

// --- in-memory fakes ---

type memTaskRepo struct {
	mu    sync.Mutex
	tasks map[string]*task.Task
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[string]*task.Task)}
}

func (r *memTaskRepo) put(t *task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tasks[t.ID] = &cp
}

func (r *memTaskRepo) Create(_ context.Context, t *task.Task) error {
	r.put(t)
	return nil
}

func (r *memTaskRepo) GetByID(_ context.Context, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTaskRepo) GetByOwner(_ context.Context, ownerID, id string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTaskRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

func (r *memTaskRepo) Update(_ context.Context, id string, patch *task.TaskPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Prompt != nil {
		t.Prompt = *patch.Prompt
	}
	if patch.ScheduleType != nil {
		t.ScheduleType = *patch.ScheduleType
	}
	if patch.ScheduledTime != nil {
		t.ScheduledTime = *patch.ScheduledTime
	}
	if patch.ScheduledDate != nil {
		t.ScheduledDate = *patch.ScheduledDate
	}
	if patch.TimeZone != nil {
		t.TimeZone = *patch.TimeZone
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.ClearPendingJob {
		t.NextExecutionAt = nil
		t.PendingJobHandle = nil
	} else if patch.NextExecutionAt != nil {
		t.NextExecutionAt = patch.NextExecutionAt
		t.PendingJobHandle = patch.PendingJobHandle
	}
	if patch.LastExecutedAt != nil {
		t.LastExecutedAt = patch.LastExecutedAt
	}
	if patch.LinkedConversationID != nil {
		t.LinkedConversationID = patch.LinkedConversationID
	}
	if patch.EnabledToolSlugs != nil {
		t.EnabledToolSlugs = *patch.EnabledToolSlugs
	}
	if patch.SearchEnabled != nil {
		t.SearchEnabled = *patch.SearchEnabled
	}
	if patch.EmailNotify != nil {
		t.EmailNotify = *patch.EmailNotify
	}
	return nil
}

func (r *memTaskRepo) ListByOwner(_ context.Context, ownerID string, filter *task.TaskFilter) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		if filter != nil {
			if status, ok := filter.Status.Get(); ok && t.Status != status {
				continue
			}
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memTaskRepo) CountActiveByOwner(_ context.Context, ownerID string) (limits.Counts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts limits.Counts
	for _, t := range r.tasks {
		if t.OwnerID != ownerID || t.Status != task.TaskStatusActive {
			continue
		}
		counts.Total++
		switch t.ScheduleType {
		case recurrence.TypeDaily:
			counts.Daily++
		case recurrence.TypeWeekly:
			counts.Weekly++
		}
	}
	return counts, nil
}

func (r *memTaskRepo) FindByStatus(_ context.Context, status task.TaskStatus) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if t.Status != status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

type memExecRepo struct {
	mu    sync.Mutex
	execs map[string]*execution.TaskExecution
	order []string
}

func newMemExecRepo() *memExecRepo {
	return &memExecRepo{execs: make(map[string]*execution.TaskExecution)}
}

func (r *memExecRepo) Create(_ context.Context, exec *execution.TaskExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *exec
	r.execs[exec.ID] = &cp
	r.order = append(r.order, exec.ID)
	return nil
}

func (r *memExecRepo) GetByID(_ context.Context, id string) (*execution.TaskExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func applyExecPatch(e *execution.TaskExecution, patch *execution.TaskExecutionPatch) {
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

func (r *memExecRepo) Update(_ context.Context, id string, patch *execution.TaskExecutionPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[id]
	if !ok {
		return fmt.Errorf("execution %s not found", id)
	}
	applyExecPatch(e, patch)
	return nil
}

func (r *memExecRepo) FinishIfRunning(_ context.Context, id string, patch *execution.TaskExecutionPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[id]
	if !ok {
		return false, fmt.Errorf("execution %s not found", id)
	}
	if e.Status != execution.ExecutionStatusRunning {
		return false, nil
	}
	applyExecPatch(e, patch)
	return true, nil
}

func (r *memExecRepo) ListByTask(_ context.Context, taskID string, limit int) ([]*execution.TaskExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*execution.TaskExecution
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.execs[r.order[i]]
		if e != nil && e.TaskID == taskID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memExecRepo) StatusCounts(_ context.Context, taskID string) (map[execution.ExecutionStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[execution.ExecutionStatus]int64)
	for _, e := range r.execs {
		if e.TaskID == taskID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (r *memExecRepo) AverageDurationMs(_ context.Context, taskID string) (float64, error) {
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

func (r *memExecRepo) DeleteBeyondKeep(_ context.Context, taskID string, keep int) (int64, error) {
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

func (r *memExecRepo) ListTaskIDs(_ context.Context) ([]string, error) {
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

func (r *memExecRepo) ListStaleRunning(_ context.Context, startedBefore time.Time) ([]*execution.TaskExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*execution.TaskExecution
	for _, e := range r.execs {
		if e.Status == execution.ExecutionStatusRunning && e.StartTime.Before(startedBefore) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memExecRepo) byTask(taskID string) []*execution.TaskExecution {
	out, _ := r.ListByTask(context.Background(), taskID, len(r.order)+1)
	return out
}

type schedCall struct {
	at     time.Time
	taskID string
	manual bool
	handle string
}

type memQueue struct {
	mu        sync.Mutex
	n         int
	scheduled []schedCall
	cancelled []string
	failWith  error
}

func (q *memQueue) ScheduleAt(at time.Time, taskID string, manual bool) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failWith != nil {
		return "", q.failWith
	}
	q.n++
	handle := fmt.Sprintf("handle-%d", q.n)
	q.scheduled = append(q.scheduled, schedCall{at: at, taskID: taskID, manual: manual, handle: handle})
	return handle, nil
}

func (q *memQueue) Cancel(handle string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, handle)
}

type stubRunner struct {
	result   *RunResult
	err      error
	panicMsg string
	calls    int
	lastReq  RunRequest
}

func (r *stubRunner) Run(_ context.Context, req RunRequest) (*RunResult, error) {
	r.calls++
	r.lastReq = req
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	return r.result, r.err
}

type stubConversations struct {
	nextID      string
	ensureErr   error
	ensureCalls int
	appendErr   error
	turns       [][2]string
}

func (s *stubConversations) EnsureConversation(_ context.Context, _, _, _ string) (string, error) {
	s.ensureCalls++
	if s.ensureErr != nil {
		return "", s.ensureErr
	}
	return s.nextID, nil
}

func (s *stubConversations) AppendTurn(_ context.Context, _, prompt, reply string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.turns = append(s.turns, [2]string{prompt, reply})
	return nil
}

type stubNotifier struct {
	err      error
	calls    int
	lastText string
}

func (n *stubNotifier) SendSummary(_ context.Context, _, _, content, _ string) error {
	n.calls++
	n.lastText = content
	return n.err
}

// --- harness ---

type coordFixture struct {
	taskRepo      *memTaskRepo
	execRepo      *memExecRepo
	queue         *memQueue
	runner        *stubRunner
	conversations *stubConversations
	notifier      *stubNotifier
	tasks         *task.Usecase
	history       *execution.Usecase
	coordinator   *Coordinator
}

func newCoordFixture() *coordFixture {
	logger := zap.NewNop()
	f := &coordFixture{
		taskRepo:      newMemTaskRepo(),
		execRepo:      newMemExecRepo(),
		queue:         &memQueue{},
		runner:        &stubRunner{result: &RunResult{Text: "done", InputTokens: 10, OutputTokens: 20}},
		conversations: &stubConversations{nextID: "conv-1"},
		notifier:      &stubNotifier{},
	}
	f.tasks = task.NewUsecase(f.taskRepo, f.queue, limits.NewEnforcer(limits.DefaultQuotas()), logger)
	f.history = execution.NewUsecase(f.execRepo, execution.DefaultKeep, logger)
	f.coordinator = NewCoordinator(
		f.tasks, f.taskRepo, f.history, f.queue,
		f.runner, f.conversations, f.notifier,
		logger, time.Minute, 500,
	)
	return f
}

func (f *coordFixture) seedTask(mutate func(*task.Task)) *task.Task {
	handle := "seed-handle"
	next := time.Now().Add(time.Hour)
	t := &task.Task{
		ID:               "task-1",
		OwnerID:          "user-1",
		Title:            "Morning digest",
		Prompt:           "Summarize my inbox",
		ScheduleType:     recurrence.TypeDaily,
		ScheduledTime:    "09:00",
		TimeZone:         "America/New_York",
		Status:           task.TaskStatusActive,
		NextExecutionAt:  &next,
		PendingJobHandle: &handle,
	}
	if mutate != nil {
		mutate(t)
	}
	f.taskRepo.put(t)
	return t
}

// --- tests ---

func TestExecuteSuccessReschedulesRecurring(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(nil)

	f.coordinator.Execute("task-1", false)

	execs := f.execRepo.byTask("task-1")
	require.Len(t, execs, 1)
	assert.Equal(t, execution.ExecutionStatusSuccess, execs[0].Status)
	assert.NotNil(t, execs[0].EndTime)
	assert.Equal(t, int64(10), execs[0].Metadata["input_tokens"])
	require.NotNil(t, execs[0].ConversationID)
	assert.Equal(t, "conv-1", *execs[0].ConversationID)

	got, _ := f.taskRepo.GetByID(context.Background(), "task-1")
	assert.Equal(t, task.TaskStatusActive, got.Status)
	require.NotNil(t, got.LastExecutedAt)
	require.NotNil(t, got.PendingJobHandle)
	assert.NotEqual(t, "seed-handle", *got.PendingJobHandle)
	require.NotNil(t, got.NextExecutionAt)
	assert.True(t, got.NextExecutionAt.After(time.Now()))
	require.NotNil(t, got.LinkedConversationID)
	assert.Equal(t, "conv-1", *got.LinkedConversationID)

	// The stale seed handle was cancelled before the replacement was queued.
	assert.Contains(t, f.queue.cancelled, "seed-handle")
	require.Len(t, f.queue.scheduled, 1)
	assert.False(t, f.queue.scheduled[0].manual)

	require.Len(t, f.conversations.turns, 1)
	assert.Equal(t, "Summarize my inbox", f.conversations.turns[0][0])
	assert.Equal(t, "done", f.conversations.turns[0][1])
}

func TestExecuteFailureStillReschedules(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(nil)
	f.runner.result = nil
	f.runner.err = errors.New("backend exploded")

	f.coordinator.Execute("task-1", false)

	execs := f.execRepo.byTask("task-1")
	require.Len(t, execs, 1)
	assert.Equal(t, execution.ExecutionStatusFailure, execs[0].Status)
	require.NotNil(t, execs[0].ErrorMessage)
	assert.Equal(t, "backend exploded", *execs[0].ErrorMessage)

	got, _ := f.taskRepo.GetByID(context.Background(), "task-1")
	assert.Equal(t, task.TaskStatusActive, got.Status)
	require.NotNil(t, got.NextExecutionAt, "a failed run must not stall the schedule")
	assert.NotNil(t, got.LastExecutedAt)
	assert.Empty(t, f.conversations.turns)
	assert.Zero(t, f.notifier.calls)
}

func TestExecuteTimeoutOutcome(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(nil)
	f.runner.result = nil
	f.runner.err = context.DeadlineExceeded

	f.coordinator.Execute("task-1", false)

	execs := f.execRepo.byTask("task-1")
	require.Len(t, execs, 1)
	assert.Equal(t, execution.ExecutionStatusTimeout, execs[0].Status)

	got, _ := f.taskRepo.GetByID(context.Background(), "task-1")
	assert.Equal(t, task.TaskStatusActive, got.Status)
	assert.NotNil(t, got.NextExecutionAt)
}

func TestExecuteOnetimeArchives(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(func(tk *task.Task) {
		tk.ScheduleType = recurrence.TypeOnetime
		tk.ScheduledDate = "2026-09-01"
	})

	f.coordinator.Execute("task-1", false)

	got, _ := f.taskRepo.GetByID(context.Background(), "task-1")
	assert.Equal(t, task.TaskStatusArchived, got.Status)
	assert.Nil(t, got.NextExecutionAt)
	assert.Nil(t, got.PendingJobHandle)
	assert.NotNil(t, got.LastExecutedAt)
	assert.Empty(t, f.queue.scheduled)
}

func TestExecuteOnetimeArchivesOnFailureToo(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(func(tk *task.Task) {
		tk.ScheduleType = recurrence.TypeOnetime
		tk.ScheduledDate = "2026-09-01"
	})
	f.runner.result = nil
	f.runner.err = errors.New("boom")

	f.coordinator.Execute("task-1", false)

	got, _ := f.taskRepo.GetByID(context.Background(), "task-1")
	assert.Equal(t, task.TaskStatusArchived, got.Status, "one-time tasks never retry")
}

func TestExecuteAbortsSilentlyWhenNotActive(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(func(tk *task.Task) {
		tk.Status = task.TaskStatusPaused
	})

	f.coordinator.Execute("task-1", false)

	assert.Empty(t, f.execRepo.byTask("task-1"), "stale invocations leave no history record")
	assert.Zero(t, f.runner.calls)
}

func TestExecuteAbortsSilentlyWhenDeleted(t *testing.T) {
	f := newCoordFixture()

	f.coordinator.Execute("ghost", false)

	assert.Zero(t, f.runner.calls)
	assert.Empty(t, f.queue.scheduled)
}

func TestExecuteManualLeavesScheduleAlone(t *testing.T) {
	f := newCoordFixture()
	seeded := f.seedTask(nil)
	wantNext := *seeded.NextExecutionAt

	f.coordinator.Execute("task-1", true)

	execs := f.execRepo.byTask("task-1")
	require.Len(t, execs, 1)
	assert.True(t, execs[0].IsManualTrigger)
	assert.Equal(t, execution.ExecutionStatusSuccess, execs[0].Status)

	got, _ := f.taskRepo.GetByID(context.Background(), "task-1")
	assert.Equal(t, task.TaskStatusActive, got.Status)
	require.NotNil(t, got.NextExecutionAt)
	assert.True(t, wantNext.Equal(*got.NextExecutionAt), "manual runs must not move the recurring schedule")
	require.NotNil(t, got.PendingJobHandle)
	assert.Equal(t, "seed-handle", *got.PendingJobHandle)
	assert.NotNil(t, got.LastExecutedAt)
	assert.Empty(t, f.queue.scheduled)
	assert.Empty(t, f.queue.cancelled)
}

func TestExecuteReusesLinkedConversation(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(func(tk *task.Task) {
		conv := "conv-existing"
		tk.LinkedConversationID = &conv
	})

	f.coordinator.Execute("task-1", false)

	assert.Zero(t, f.conversations.ensureCalls)
	execs := f.execRepo.byTask("task-1")
	require.Len(t, execs, 1)
	require.NotNil(t, execs[0].ConversationID)
	assert.Equal(t, "conv-existing", *execs[0].ConversationID)
	assert.Equal(t, "conv-existing", f.runner.lastReq.ConversationID)
}

func TestExecuteConversationCreationFailureIsRecorded(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(nil)
	f.conversations.ensureErr = errors.New("chat backend down")

	f.coordinator.Execute("task-1", false)

	execs := f.execRepo.byTask("task-1")
	require.Len(t, execs, 1)
	assert.Equal(t, execution.ExecutionStatusFailure, execs[0].Status)
	assert.Zero(t, f.runner.calls)

	got, _ := f.taskRepo.GetByID(context.Background(), "task-1")
	assert.Equal(t, task.TaskStatusActive, got.Status)
	assert.NotNil(t, got.NextExecutionAt, "the schedule survives collaborator outages")
}

func TestExecuteNotifierErrorsAreSwallowed(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(func(tk *task.Task) {
		tk.EmailNotify = true
	})
	f.notifier.err = errors.New("smtp refused")

	f.coordinator.Execute("task-1", false)

	assert.Equal(t, 1, f.notifier.calls)
	execs := f.execRepo.byTask("task-1")
	require.Len(t, execs, 1)
	assert.Equal(t, execution.ExecutionStatusSuccess, execs[0].Status,
		"notification failures never change the run outcome")
}

func TestExecuteSummaryTruncated(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(func(tk *task.Task) {
		tk.EmailNotify = true
	})
	f.runner.result = &RunResult{Text: strings.Repeat("é", 800)}

	f.coordinator.Execute("task-1", false)

	require.Equal(t, 1, f.notifier.calls)
	runes := []rune(f.notifier.lastText)
	assert.Len(t, runes, 501) // 500 kept plus the ellipsis
}

func TestExecuteNoNotificationOnFailure(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(func(tk *task.Task) {
		tk.EmailNotify = true
	})
	f.runner.result = nil
	f.runner.err = errors.New("boom")

	f.coordinator.Execute("task-1", false)

	assert.Zero(t, f.notifier.calls)
}

func TestExecuteRecoversFromRunnerPanic(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(nil)
	f.runner.panicMsg = "nil map write"

	assert.NotPanics(t, func() {
		f.coordinator.Execute("task-1", false)
	})

	execs := f.execRepo.byTask("task-1")
	require.Len(t, execs, 1)
	assert.Equal(t, execution.ExecutionStatusFailure, execs[0].Status)
	require.NotNil(t, execs[0].ErrorMessage)
	assert.Contains(t, *execs[0].ErrorMessage, "nil map write")

	got, _ := f.taskRepo.GetByID(context.Background(), "task-1")
	assert.Equal(t, task.TaskStatusActive, got.Status, "a panic must not wedge the task in running")
	assert.NotNil(t, got.NextExecutionAt)
	assert.NotNil(t, got.LastExecutedAt)
}

func TestExecuteRespectsPauseDuringRun(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(nil)
	// Simulate a pause racing the run: flip the row once the runner is called.
	f.runner.result = &RunResult{Text: "done"}
	baseRun := f.runner
	f.coordinator.runner = runnerFunc(func(ctx context.Context, req RunRequest) (*RunResult, error) {
		paused := task.TaskStatusPaused
		_ = f.taskRepo.Update(ctx, "task-1", &task.TaskPatch{Status: &paused, ClearPendingJob: true})
		return baseRun.Run(ctx, req)
	})

	f.coordinator.Execute("task-1", false)

	got, _ := f.taskRepo.GetByID(context.Background(), "task-1")
	assert.Equal(t, task.TaskStatusPaused, got.Status, "the user's pause wins over rescheduling")
	assert.Nil(t, got.NextExecutionAt)
	assert.NotNil(t, got.LastExecutedAt)
	assert.Empty(t, f.queue.scheduled)
}

type runnerFunc func(ctx context.Context, req RunRequest) (*RunResult, error)

func (f runnerFunc) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	return f(ctx, req)
}

func TestExecuteMidRunScheduleUpdateWins(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(nil)
	baseRun := f.runner
	var updateHandle string
	f.coordinator.runner = runnerFunc(func(ctx context.Context, req RunRequest) (*RunResult, error) {
		// The owner moves the task from 09:00 to 18:00 while the run is in
		// flight, same writes the lifecycle manager would make.
		updateHandle, _ = f.queue.ScheduleAt(time.Now().Add(time.Hour), "task-1", false)
		newTime := "18:00"
		next := time.Now().Add(time.Hour)
		_ = f.taskRepo.Update(ctx, "task-1", &task.TaskPatch{
			ScheduledTime:    &newTime,
			NextExecutionAt:  &next,
			PendingJobHandle: &updateHandle,
		})
		return baseRun.Run(ctx, req)
	})

	f.coordinator.Execute("task-1", false)

	got, _ := f.taskRepo.GetByID(context.Background(), "task-1")
	assert.Equal(t, "18:00", got.ScheduledTime)
	require.NotNil(t, got.NextExecutionAt)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	local := got.NextExecutionAt.In(loc)
	assert.Equal(t, 18, local.Hour(), "the mid-run update's schedule wins over the pre-run snapshot")
	assert.Equal(t, 0, local.Minute())
	// The update's pending handle was replaced, not left to fire alongside.
	assert.Contains(t, f.queue.cancelled, updateHandle)
	require.NotNil(t, got.PendingJobHandle)
	assert.NotEqual(t, updateHandle, *got.PendingJobHandle)
}

func TestExecuteTrimsHistoryAfterRun(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(nil)
	// Preload history past the retention window.
	for i := 0; i < execution.DefaultKeep+5; i++ {
		exec := execution.NewRunning("task-1", false, time.Now().Add(-time.Duration(i)*time.Hour))
		exec.Status = execution.ExecutionStatusSuccess
		require.NoError(t, f.execRepo.Create(context.Background(), exec))
	}

	f.coordinator.Execute("task-1", false)

	assert.Len(t, f.execRepo.byTask("task-1"), execution.DefaultKeep)
}

func TestExecuteCompletionIsIdempotent(t *testing.T) {
	f := newCoordFixture()
	f.seedTask(nil)

	var execID string
	f.coordinator.runner = runnerFunc(func(ctx context.Context, req RunRequest) (*RunResult, error) {
		// A sweep beat us to the terminal write.
		execs := f.execRepo.byTask("task-1")
		execID = execs[0].ID
		status := execution.ExecutionStatusTimeout
		end := time.Now()
		_, _ = f.execRepo.FinishIfRunning(ctx, execID, &execution.TaskExecutionPatch{Status: &status, EndTime: &end})
		return &RunResult{Text: "done"}, nil
	})

	f.coordinator.Execute("task-1", false)

	got, _ := f.execRepo.GetByID(context.Background(), execID)
	assert.Equal(t, execution.ExecutionStatusTimeout, got.Status, "the first terminal write wins")
}
