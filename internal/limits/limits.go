// Package limits enforces per-owner quotas over currently active tasks.
package limits

import (
	"github.com/promptops/scheduler/internal/domain/errs"
	"github.com/promptops/scheduler/internal/recurrence"
)

type Quotas struct {
	MaxDailyTasks  int
	MaxWeeklyTasks int
	MaxTotalTasks  int
}

func DefaultQuotas() Quotas {
	return Quotas{
		MaxDailyTasks:  5,
		MaxWeeklyTasks: 10,
		MaxTotalTasks:  10,
	}
}

// Counts is the number of active tasks an owner currently holds, by class.
type Counts struct {
	Daily  int
	Weekly int
	Total  int
}

type Enforcer struct {
	quotas Quotas
}

func NewEnforcer(quotas Quotas) *Enforcer {
	return &Enforcer{quotas: quotas}
}

// CanCreate decides whether one more task of the given type may become
// active. Evaluated at creation and at resume-from-paused; pause and delete
// are never quota-checked.
func (e *Enforcer) CanCreate(scheduleType recurrence.Type, counts Counts) error {
	if counts.Total >= e.quotas.MaxTotalTasks {
		return &errs.LimitExceededError{Kind: errs.LimitKindTotal, Limit: e.quotas.MaxTotalTasks}
	}
	switch scheduleType {
	case recurrence.TypeDaily:
		if counts.Daily >= e.quotas.MaxDailyTasks {
			return &errs.LimitExceededError{Kind: errs.LimitKindDaily, Limit: e.quotas.MaxDailyTasks}
		}
	case recurrence.TypeWeekly:
		if counts.Weekly >= e.quotas.MaxWeeklyTasks {
			return &errs.LimitExceededError{Kind: errs.LimitKindWeekly, Limit: e.quotas.MaxWeeklyTasks}
		}
	}
	return nil
}

type Usage struct {
	Current   int `json:"current"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

type Summary struct {
	Daily  Usage `json:"daily"`
	Weekly Usage `json:"weekly"`
	Total  Usage `json:"total"`
}

// Summarize builds the read-only quota view used by creation validation and
// the UI.
func (e *Enforcer) Summarize(counts Counts) Summary {
	return Summary{
		Daily:  usage(counts.Daily, e.quotas.MaxDailyTasks),
		Weekly: usage(counts.Weekly, e.quotas.MaxWeeklyTasks),
		Total:  usage(counts.Total, e.quotas.MaxTotalTasks),
	}
}

func usage(current, limit int) Usage {
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	return Usage{Current: current, Limit: limit, Remaining: remaining}
}
