// Package scheduler hosts the execution side of the engine: the delayed
// invocation queue, the execution coordinator and the collaborator clients.
package scheduler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FireFunc is invoked when a scheduled job comes due.
type FireFunc func(taskID string, manual bool)

// TimerQueue is the in-process implementation of the delayed-invocation
// facade: one timer per pending job, opaque handles, best-effort cancel. A
// durable host primitive (cloud delayed queue, OS cron) can replace it
// without touching the lifecycle or coordinator code.
type TimerQueue struct {
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   FireFunc
	firing sync.WaitGroup
	closed bool
}

func NewTimerQueue(logger *zap.Logger) *TimerQueue {
	return &TimerQueue{
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// Bind installs the fire callback. Must happen before the first ScheduleAt;
// kept separate from the constructor because the coordinator that handles
// fires is itself built on top of the lifecycle manager that schedules.
func (q *TimerQueue) Bind(fire FireFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fire = fire
}

func (q *TimerQueue) ScheduleAt(at time.Time, taskID string, manual bool) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrQueueClosed
	}

	handle := uuid.New().String()
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	q.timers[handle] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		_, live := q.timers[handle]
		delete(q.timers, handle)
		fire := q.fire

		// A timer that lost the race against Cancel or Stop stays silent.
		if !live || q.closed || fire == nil {
			q.mu.Unlock()
			return
		}
		// Joining the firing group under the lock means Stop either sees this
		// fire and waits for it, or closed the queue before it began.
		q.firing.Add(1)
		q.mu.Unlock()

		defer q.firing.Done()
		fire(taskID, manual)
	})

	q.logger.Debug("job scheduled",
		zap.String("task_id", taskID),
		zap.String("handle", handle),
		zap.Time("at", at),
		zap.Bool("manual", manual))

	return handle, nil
}

// Cancel stops the timer behind the handle. Best-effort: if the timer already
// fired, the coordinator's own status re-check is the authoritative guard.
func (q *TimerQueue) Cancel(handle string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	timer, ok := q.timers[handle]
	if !ok {
		return
	}
	timer.Stop()
	delete(q.timers, handle)

	q.logger.Debug("job cancelled", zap.String("handle", handle))
}

// Pending reports the number of jobs currently waiting.
func (q *TimerQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Stop cancels every pending timer, rejects further scheduling and blocks
// until fires already in flight have returned.
func (q *TimerQueue) Stop() {
	q.mu.Lock()
	q.closed = true
	for handle, timer := range q.timers {
		timer.Stop()
		delete(q.timers, handle)
	}
	q.mu.Unlock()

	q.firing.Wait()
}
