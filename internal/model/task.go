package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStatus     = errors.New("model: invalid task status")
	ErrInvalidLevel      = errors.New("model: invalid reminder level")
	ErrInvalidSourceType = errors.New("model: invalid source type")
	ErrInvalidTransition = errors.New("model: invalid task status transition")
)

// DateLayout is the calendar date format used for every stored date string.
const DateLayout = "2006-01-02"

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// ReminderLevel is the delivery severity of a task record.
type ReminderLevel int

const (
	ReminderNone   ReminderLevel = 0
	ReminderSilent ReminderLevel = 1
	ReminderAlarm  ReminderLevel = 2
)

func (l ReminderLevel) IsValid() bool {
	return l >= ReminderNone && l <= ReminderAlarm
}

func (l ReminderLevel) String() string {
	switch l {
	case ReminderNone:
		return "none"
	case ReminderSilent:
		return "silent"
	case ReminderAlarm:
		return "alarm"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

type SourceType string

const (
	SourceShiftRule      SourceType = "shift_rule"
	SourceAnniversary    SourceType = "anniversary"
	SourceGmailInterview SourceType = "gmail_interview"
)

func (s SourceType) IsValid() bool {
	switch s {
	case SourceShiftRule, SourceAnniversary, SourceGmailInterview:
		return true
	default:
		return false
	}
}

// TaskKey is the uniqueness key of a task record.
type TaskKey struct {
	SourceType       SourceType
	SourceID         int64
	TriggerTimestamp int64
}

type TaskRecord struct {
	ID               int64
	SourceType       SourceType
	SourceID         int64
	Title            string
	TargetDate       string
	TriggerTimestamp int64
	ReminderLevel    ReminderLevel
	Status           TaskStatus
	TargetPkgName    string
}

func (t TaskRecord) Key() TaskKey {
	return TaskKey{SourceType: t.SourceType, SourceID: t.SourceID, TriggerTimestamp: t.TriggerTimestamp}
}

func (t TaskRecord) TriggerAt() time.Time {
	return time.UnixMilli(t.TriggerTimestamp)
}

func (t TaskRecord) IsPending() bool {
	return t.Status == TaskStatusPending
}

// Complete flips a pending record to completed.
func (t TaskRecord) Complete() (TaskRecord, error) {
	if t.Status != TaskStatusPending {
		return t, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, TaskStatusCompleted)
	}
	t.Status = TaskStatusCompleted
	return t, nil
}

// DisplayTitle falls back to a per-source label when the record has no title.
func (t TaskRecord) DisplayTitle() string {
	if strings.TrimSpace(t.Title) != "" {
		return t.Title
	}
	switch t.SourceType {
	case SourceShiftRule:
		return "Shift check-in reminder"
	case SourceAnniversary:
		return "Anniversary reminder"
	case SourceGmailInterview:
		return "Interview reminder"
	default:
		return "Task reminder"
	}
}

func (t TaskRecord) Validate() error {
	if !t.SourceType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSourceType, t.SourceType)
	}
	if _, err := time.Parse(DateLayout, t.TargetDate); err != nil {
		return fmt.Errorf("%w: task target_date %q: %w", ErrInvalidDate, t.TargetDate, err)
	}
	if t.TriggerTimestamp <= 0 {
		return fmt.Errorf("%w: task trigger_timestamp", ErrMissingField)
	}
	if !t.ReminderLevel.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, t.ReminderLevel)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	return nil
}

// LevelsByDate maps each target date to the highest reminder level among its
// records. Used for calendar markers.
func LevelsByDate(tasks []TaskRecord) map[string]ReminderLevel {
	out := make(map[string]ReminderLevel)
	for _, t := range tasks {
		if cur, ok := out[t.TargetDate]; !ok || t.ReminderLevel > cur {
			out[t.TargetDate] = t.ReminderLevel
		}
	}
	return out
}
