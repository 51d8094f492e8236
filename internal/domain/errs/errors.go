package errs

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrTaskArchived      = errors.New("task is archived")
)

// InvalidScheduleError reports schedule parameters the calculator cannot
// interpret: unknown time zone, malformed time string, weekday out of range,
// or a one-time date already in the past.
type InvalidScheduleError struct {
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return "invalid schedule: " + e.Reason
}

func InvalidSchedule(format string, args ...any) *InvalidScheduleError {
	return &InvalidScheduleError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidSchedule reports whether err is an InvalidScheduleError.
func IsInvalidSchedule(err error) bool {
	var target *InvalidScheduleError
	return errors.As(err, &target)
}

// LimitKind names the quota class that was exhausted.
type LimitKind string

const (
	LimitKindDaily  LimitKind = "daily"
	LimitKindWeekly LimitKind = "weekly"
	LimitKindTotal  LimitKind = "total"
)

// LimitExceededError is returned at create/resume when an owner already holds
// the maximum number of active tasks of the given class.
type LimitExceededError struct {
	Kind  LimitKind
	Limit int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s task limit exceeded (max %d)", e.Kind, e.Limit)
}

func IsLimitExceeded(err error) bool {
	var target *LimitExceededError
	return errors.As(err, &target)
}

// BusinessError carries an API-facing error code alongside the message.
type BusinessError struct {
	code    string
	message string
	cause   error
}

func NewBusinessError(code, message string, cause error) *BusinessError {
	return &BusinessError{
		code:    code,
		message: message,
		cause:   cause,
	}
}

func (e *BusinessError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *BusinessError) Code() string {
	return e.code
}

func (e *BusinessError) Message() string {
	return e.message
}

func (e *BusinessError) Unwrap() error {
	return e.cause
}
