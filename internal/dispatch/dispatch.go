package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/scheduler"
	"github.com/sandeepkv93/shiftd/internal/storage"
)

// Registrar is the wake-up primitive tasks are registered with.
type Registrar interface {
	Schedule(w scheduler.Wakeup) error
	Cancel(taskID int64) bool
}

type TaskLister interface {
	ListTaskRecords(ctx context.Context, filter storage.TaskListFilter) ([]model.TaskRecord, error)
}

type Service struct {
	registrar Registrar
	tasks     TaskLister
	now       func() time.Time
	logger    *slog.Logger
}

type Result struct {
	Registered int
	Skipped    int
	Failed     int
}

func NewService(registrar Registrar, tasks TaskLister, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registrar: registrar, tasks: tasks, now: now, logger: logger}
}

// RegisterTask registers a wake-up keyed by task.ID carrying its level. Past,
// non-pending and level 0 or unknown-level records are not registered.
func (s *Service) RegisterTask(ctx context.Context, task model.TaskRecord) (bool, error) {
	if !task.IsPending() {
		return false, nil
	}
	at := task.TriggerAt()
	if !at.After(s.now()) {
		return false, nil
	}
	priority, ok := scheduler.PriorityFor(task.ReminderLevel)
	if !ok {
		return false, nil
	}
	if err := s.registrar.Schedule(scheduler.Wakeup{
		TaskID:   task.ID,
		Level:    task.ReminderLevel,
		At:       at,
		Priority: priority,
	}); err != nil {
		return false, err
	}
	s.logger.DebugContext(ctx, "wake-up registered",
		slog.Int64("task_id", task.ID),
		slog.String("priority", priority.String()),
		slog.Time("at", at),
	)
	return true, nil
}

// CancelTask removes the wake-up keyed by task.ID, if any.
func (s *Service) CancelTask(ctx context.Context, task model.TaskRecord) {
	if s.registrar.Cancel(task.ID) {
		s.logger.DebugContext(ctx, "wake-up cancelled", slog.Int64("task_id", task.ID))
	}
}

// RegisterAllPending registers every pending future record. It is safe to
// call repeatedly; registrations replace earlier ones for the same id.
func (s *Service) RegisterAllPending(ctx context.Context) Result {
	var res Result
	tasks, err := s.tasks.ListTaskRecords(ctx, storage.TaskListFilter{})
	if err != nil {
		s.logger.ErrorContext(ctx, "load task records failed", slog.String("error", err.Error()))
		return res
	}
	now := s.now()
	for _, task := range tasks {
		if !task.IsPending() || !task.TriggerAt().After(now) {
			continue
		}
		ok, err := s.RegisterTask(ctx, task)
		switch {
		case err != nil:
			res.Failed++
			s.logger.WarnContext(ctx, "wake-up registration failed",
				slog.Int64("task_id", task.ID),
				slog.String("error", err.Error()),
			)
		case ok:
			res.Registered++
		default:
			res.Skipped++
		}
	}
	s.logger.InfoContext(ctx, "pending tasks registered",
		slog.Int("registered", res.Registered),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
	return res
}
