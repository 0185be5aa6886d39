package model

import (
	"fmt"
	"strings"
	"time"
)

// DefaultAnniversaryHour and DefaultAnniversaryMinute apply when an
// anniversary has no reminder time.
const (
	DefaultAnniversaryHour   = 9
	DefaultAnniversaryMinute = 0
)

type Anniversary struct {
	ID            int64
	Title         string
	TargetDate    string
	ReminderLevel ReminderLevel
	ReminderTime  *time.Time
}

func (a Anniversary) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("%w: anniversary title", ErrMissingField)
	}
	if _, err := time.Parse(DateLayout, strings.TrimSpace(a.TargetDate)); err != nil {
		return fmt.Errorf("%w: anniversary target_date %q: %w", ErrInvalidDate, a.TargetDate, err)
	}
	if !a.ReminderLevel.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, a.ReminderLevel)
	}
	return nil
}

// OccurrenceIn returns the calendar date the anniversary falls on in year.
// A Feb 29 anniversary falls on Feb 28 in non-leap years.
func (a Anniversary) OccurrenceIn(year int, loc *time.Location) (time.Time, error) {
	orig, err := time.Parse(DateLayout, strings.TrimSpace(a.TargetDate))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: anniversary target_date %q: %w", ErrInvalidDate, a.TargetDate, err)
	}
	month, day := orig.Month(), orig.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc), nil
}

// Clock returns the local time of day used for every yearly occurrence.
func (a Anniversary) Clock(loc *time.Location) (hour, minute int) {
	if a.ReminderTime == nil || a.ReminderTime.IsZero() {
		return DefaultAnniversaryHour, DefaultAnniversaryMinute
	}
	local := a.ReminderTime.In(loc)
	return local.Hour(), local.Minute()
}

// SetClock stores hour:minute in loc as the reminder time of day.
func (a *Anniversary) SetClock(hour, minute int, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	t := time.Date(2000, time.January, 1, hour, minute, 0, 0, loc)
	a.ReminderTime = &t
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
