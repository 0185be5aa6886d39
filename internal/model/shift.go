package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidCycle      = errors.New("model: cycle_days must be positive")
	ErrDayIndexRange     = errors.New("model: day index outside cycle")
	ErrInvalidTimeOfDay  = errors.New("model: invalid time of day")
	ErrMalformedConfig   = errors.New("model: malformed shift config")
	ErrMissingField      = errors.New("model: required field missing")
	ErrInvalidDate       = errors.New("model: invalid date")
	ErrDuplicateDayIndex = errors.New("model: duplicate day index")
)

type TimeSlot struct {
	Time          string `json:"time"`
	TargetPkgName string `json:"targetPkgName,omitempty"`
}

// Clock parses "HH:mm". A missing minute part means :00.
func (s TimeSlot) Clock() (hour, minute int, err error) {
	return ParseClock(s.Time)
}

type DayConfig struct {
	DayIndex      int           `json:"dayIndex"`
	ReminderLevel ReminderLevel `json:"reminderLevel"`
	TimeSlots     []TimeSlot    `json:"timeSlots"`
}

type ShiftRule struct {
	ID                   int64
	Title                string
	StartDate            time.Time
	CycleDays            int
	ShiftConfig          []DayConfig
	SkipHoliday          bool
	DefaultReminderLevel ReminderLevel
}

func (r ShiftRule) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: shift rule title", ErrMissingField)
	}
	if r.StartDate.IsZero() {
		return fmt.Errorf("%w: shift rule start_date", ErrMissingField)
	}
	if r.CycleDays <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCycle, r.CycleDays)
	}
	if !r.DefaultReminderLevel.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, r.DefaultReminderLevel)
	}
	seen := make(map[int]bool, len(r.ShiftConfig))
	for _, dc := range r.ShiftConfig {
		if dc.DayIndex < 0 || dc.DayIndex >= r.CycleDays {
			return fmt.Errorf("%w: %d not in [0, %d)", ErrDayIndexRange, dc.DayIndex, r.CycleDays)
		}
		if seen[dc.DayIndex] {
			return fmt.Errorf("%w: %d", ErrDuplicateDayIndex, dc.DayIndex)
		}
		seen[dc.DayIndex] = true
		if !dc.ReminderLevel.IsValid() {
			return fmt.Errorf("%w: %d", ErrInvalidLevel, dc.ReminderLevel)
		}
	}
	return nil
}

// DayConfigFor returns the configuration for a cycle day index, if any.
func (r ShiftRule) DayConfigFor(dayIndex int) (DayConfig, bool) {
	for _, dc := range r.ShiftConfig {
		if dc.DayIndex == dayIndex {
			return dc, true
		}
	}
	return DayConfig{}, false
}

type wireDayConfig struct {
	DayIndex      *int       `json:"dayIndex"`
	ReminderLevel *int       `json:"reminderLevel"`
	TimeSlots     []TimeSlot `json:"timeSlots"`
}

// ParseShiftConfig decodes the stored JSON document. Entries without a
// reminderLevel default to the alarm level.
func ParseShiftConfig(raw string) ([]DayConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []DayConfig{}, nil
	}
	var wire []wireDayConfig
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedConfig, err)
	}
	out := make([]DayConfig, 0, len(wire))
	for i, w := range wire {
		if w.DayIndex == nil {
			return nil, fmt.Errorf("%w: entry %d has no dayIndex", ErrMalformedConfig, i)
		}
		level := ReminderAlarm
		if w.ReminderLevel != nil {
			level = ReminderLevel(*w.ReminderLevel)
		}
		slots := w.TimeSlots
		if slots == nil {
			slots = []TimeSlot{}
		}
		out = append(out, DayConfig{DayIndex: *w.DayIndex, ReminderLevel: level, TimeSlots: slots})
	}
	return out, nil
}

func EncodeShiftConfig(cfg []DayConfig) (string, error) {
	if cfg == nil {
		cfg = []DayConfig{}
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseClock parses "HH:mm" or a bare hour.
func ParseClock(raw string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) == 0 || len(parts) > 2 || parts[0] == "" {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	if len(parts) == 2 {
		minute, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	return hour, minute, nil
}

// EpochDay is the number of calendar days between 1970-01-01 and the date of t
// in t's own location.
func EpochDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// DayIndex maps a date onto the cycle anchored at base. The result is always
// in [0, cycleDays), including for dates before base.
func DayIndex(base, date time.Time, cycleDays int) int {
	if cycleDays <= 0 {
		return 0
	}
	diff := EpochDay(date) - EpochDay(base)
	idx := diff % int64(cycleDays)
	if idx < 0 {
		idx += int64(cycleDays)
	}
	return int(idx)
}

// DateOf truncates t to midnight of its calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(raw), loc)
}
