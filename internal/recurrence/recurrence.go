// Package recurrence computes the next UTC execution instant for a task
// schedule expressed as wall-clock time in the owner's IANA time zone.
package recurrence

import (
	"strconv"
	"strings"
	"time"

	"github.com/promptops/scheduler/internal/domain/errs"
)

type Type string

const (
	TypeOnetime Type = "onetime"
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
)

func (t Type) Valid() bool {
	switch t {
	case TypeOnetime, TypeDaily, TypeWeekly:
		return true
	}
	return false
}

// Schedule is the canonical parameter set a next-occurrence is derived from.
// Time is "HH:MM" for onetime/daily and "D:HH:MM" (D = 0-6, Sunday = 0) for
// weekly. Date is an optional "YYYY-MM-DD", meaningful for onetime only.
type Schedule struct {
	Type     Type
	Time     string
	Date     string
	TimeZone string
}

// Next returns the next execution instant in UTC, strictly after now for
// recurring types. Onetime schedules are converted as-is; rejecting past
// dates is the caller's job (see Validate).
func Next(s Schedule, now time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return time.Time{}, errs.InvalidSchedule("unknown time zone %q", s.TimeZone)
	}

	switch s.Type {
	case TypeOnetime:
		return nextOnetime(s, now, loc)
	case TypeDaily:
		return nextDaily(s.Time, now, loc)
	case TypeWeekly:
		return nextWeekly(s.Time, now, loc)
	default:
		return time.Time{}, errs.InvalidSchedule("unknown schedule type %q", s.Type)
	}
}

// Validate checks the full parameter set at the API boundary. It additionally
// rejects onetime schedules whose explicit date resolves to the past, which
// Next deliberately does not.
func Validate(s Schedule, now time.Time) error {
	at, err := Next(s, now)
	if err != nil {
		return err
	}
	if s.Type == TypeOnetime && !at.After(now) {
		return errs.InvalidSchedule("one-time schedule %s %s is in the past", s.Date, s.Time)
	}
	return nil
}

func nextOnetime(s Schedule, now time.Time, loc *time.Location) (time.Time, error) {
	hh, mm, err := parseClock(s.Time)
	if err != nil {
		return time.Time{}, err
	}

	var y int
	var mo time.Month
	var d int
	if s.Date == "" {
		// No explicit date means tomorrow in the task's zone.
		y, mo, d = now.In(loc).Date()
		d++
	} else {
		day, perr := time.ParseInLocation("2006-01-02", s.Date, loc)
		if perr != nil {
			return time.Time{}, errs.InvalidSchedule("malformed date %q", s.Date)
		}
		y, mo, d = day.Date()
	}

	return wallClock(y, mo, d, hh, mm, loc).UTC(), nil
}

func nextDaily(clock string, now time.Time, loc *time.Location) (time.Time, error) {
	hh, mm, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	// Step by calendar day in the zone, not by 24h, so the wall-clock time
	// stays fixed across DST transitions.
	y, mo, d := now.In(loc).Date()
	cand := wallClock(y, mo, d, hh, mm, loc)
	for !cand.After(now) {
		d++
		cand = wallClock(y, mo, d, hh, mm, loc)
	}
	return cand.UTC(), nil
}

// wallClock builds the instant reading hh:mm on the given calendar day in
// loc. A clock reading inside a spring-forward gap has no instant; time.Date
// then normalizes to a reading before the gap, so shift forward to the first
// instant after it (02:30 in a 02:00-03:00 gap becomes 03:30).
func wallClock(y int, mo time.Month, d, hh, mm int, loc *time.Location) time.Time {
	t := time.Date(y, mo, d, hh, mm, 0, 0, loc)
	lt := t.In(loc)
	if lt.Hour() == hh && lt.Minute() == mm {
		return t
	}
	drift := time.Duration(hh-lt.Hour())*time.Hour + time.Duration(mm-lt.Minute())*time.Minute
	if adj := t.Add(drift); adj.After(t) {
		return adj
	}
	return t
}

func nextWeekly(spec string, now time.Time, loc *time.Location) (time.Time, error) {
	day, clock, ok := strings.Cut(spec, ":")
	if !ok {
		return time.Time{}, errs.InvalidSchedule("malformed weekly time %q", spec)
	}
	target, err := strconv.Atoi(day)
	if err != nil || target < 0 || target > 6 {
		return time.Time{}, errs.InvalidSchedule("weekday %q out of range [0,6]", day)
	}
	hh, mm, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	offset := (target - int(local.Weekday()) + 7) % 7
	y, mo, d := local.Date()
	cand := wallClock(y, mo, d+offset, hh, mm, loc)
	if !cand.After(now) {
		// Today is the target day but the time has passed.
		cand = wallClock(y, mo, d+offset+7, hh, mm, loc)
	}
	return cand.UTC(), nil
}

func parseClock(s string) (int, int, error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, errs.InvalidSchedule("malformed time %q, want HH:MM", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, 0, errs.InvalidSchedule("hour %q out of range [0,23]", h)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, 0, errs.InvalidSchedule("minute %q out of range [0,59]", m)
	}
	return hh, mm, nil
}
