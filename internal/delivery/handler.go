package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/scheduler"
	"github.com/sandeepkv93/shiftd/internal/storage"
)

var (
	ErrNoActiveAlarm = errors.New("delivery: no active alarm for task")
	ErrNoTarget      = errors.New("delivery: task has no launch target")
)

// DefaultStoreURL is the listing opened when a launch target cannot start.
const DefaultStoreURL = "https://flathub.org/apps/search?q=%s"

type TaskStore interface {
	GetTaskRecord(ctx context.Context, id int64) (model.TaskRecord, error)
	UpdateTaskRecord(ctx context.Context, in model.TaskRecord) error
}

type EventKind string

const (
	EventNotification EventKind = "notification"
	EventAlarmStarted EventKind = "alarm_started"
	EventAlarmStopped EventKind = "alarm_stopped"
	EventCompleted    EventKind = "completed"
)

// Event is what the presentation layer renders for a delivery.
type Event struct {
	Kind          EventKind
	TaskID        int64
	Level         model.ReminderLevel
	Title         string
	TargetPkgName string
	SessionID     string
	At            time.Time
}

type Outcome int

const (
	OutcomeStale Outcome = iota
	OutcomeNotified
	OutcomeAlarm
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStale:
		return "stale"
	case OutcomeNotified:
		return "notified"
	case OutcomeAlarm:
		return "alarm"
	default:
		return "ignored"
	}
}

type Options struct {
	Notifier     Notifier
	Ringer       Ringer
	Launcher     Launcher
	Logger       *slog.Logger
	Now          func() time.Time
	RingInterval time.Duration
	StoreURL     string
	EventBuffer  int
	// CompleteSilentOnDismiss makes dismissing a level 1 notification
	// complete its record.
	CompleteSilentOnDismiss bool
}

type session struct {
	id     string
	task   model.TaskRecord
	stopCh chan struct{}
	doneCh chan struct{}
}

type Handler struct {
	store          TaskStore
	notifier       Notifier
	ringer         Ringer
	launcher       Launcher
	logger         *slog.Logger
	now            func() time.Time
	ringInterval   time.Duration
	storeURL       string
	completeSilent bool
	events         chan Event

	mu       sync.Mutex
	sessions map[int64]*session
}

func NewHandler(store TaskStore, opts Options) *Handler {
	if opts.Notifier == nil {
		opts.Notifier = NoopNotifier{}
	}
	if opts.Ringer == nil {
		opts.Ringer = NoopRinger{}
	}
	if opts.Launcher == nil {
		opts.Launcher = NoopLauncher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RingInterval <= 0 {
		opts.RingInterval = 2 * time.Second
	}
	if opts.StoreURL == "" {
		opts.StoreURL = DefaultStoreURL
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 32
	}
	return &Handler{
		store:          store,
		notifier:       opts.Notifier,
		ringer:         opts.Ringer,
		launcher:       opts.Launcher,
		logger:         opts.Logger,
		now:            opts.Now,
		ringInterval:   opts.RingInterval,
		storeURL:       opts.StoreURL,
		completeSilent: opts.CompleteSilentOnDismiss,
		events:         make(chan Event, opts.EventBuffer),
		sessions:       make(map[int64]*session),
	}
}

func (h *Handler) Events() <-chan Event {
	return h.events
}

// Run consumes fired wake-ups until ctx is done or the channel closes, then
// stops every alarm session.
func (h *Handler) Run(ctx context.Context, wakeups <-chan scheduler.Wakeup) {
	defer h.StopAll()
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-wakeups:
			if !ok {
				return
			}
			h.HandleWakeup(ctx, w)
		}
	}
}

// HandleWakeup re-reads the record and delivers it by its current level. A
// missing or non-pending record is a stale wake-up and does nothing.
func (h *Handler) HandleWakeup(ctx context.Context, w scheduler.Wakeup) Outcome {
	task, err := h.store.GetTaskRecord(ctx, w.TaskID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.WarnContext(ctx, "wake-up lookup failed",
				slog.Int64("task_id", w.TaskID),
				slog.String("error", err.Error()),
			)
		} else {
			h.logger.DebugContext(ctx, "stale wake-up for missing task", slog.Int64("task_id", w.TaskID))
		}
		return OutcomeStale
	}
	if !task.IsPending() {
		h.logger.DebugContext(ctx, "stale wake-up",
			slog.Int64("task_id", task.ID),
			slog.String("status", string(task.Status)),
		)
		return OutcomeStale
	}

	switch task.ReminderLevel {
	case model.ReminderAlarm:
		h.startAlarm(ctx, task)
		return OutcomeAlarm
	case model.ReminderSilent:
		h.notify(ctx, task)
		return OutcomeNotified
	default:
		return OutcomeIgnored
	}
}

func (h *Handler) notify(ctx context.Context, task model.TaskRecord) {
	now := h.now()
	if err := h.notifier.Send(Notification{
		Title: task.DisplayTitle(),
		Body:  notificationBody(task),
		Level: "silent",
		At:    now,
	}); err != nil {
		h.logger.WarnContext(ctx, "desktop notification failed",
			slog.Int64("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
	h.emit(ctx, Event{
		Kind:          EventNotification,
		TaskID:        task.ID,
		Level:         task.ReminderLevel,
		Title:         task.DisplayTitle(),
		TargetPkgName: task.TargetPkgName,
		At:            now,
	})
	h.logger.InfoContext(ctx, "notification delivered", slog.Int64("task_id", task.ID))
}

func (h *Handler) startAlarm(ctx context.Context, task model.TaskRecord) {
	h.mu.Lock()
	if _, running := h.sessions[task.ID]; running {
		h.mu.Unlock()
		return
	}
	s := &session{
		id:     uuid.NewString(),
		task:   task,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	h.sessions[task.ID] = s
	h.mu.Unlock()

	go h.ring(s)

	now := h.now()
	if err := h.notifier.Send(Notification{
		Title: task.DisplayTitle(),
		Body:  notificationBody(task),
		Level: "alarm",
		At:    now,
	}); err != nil {
		h.logger.WarnContext(ctx, "alarm notification failed",
			slog.Int64("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
	h.emit(ctx, Event{
		Kind:          EventAlarmStarted,
		TaskID:        task.ID,
		Level:         task.ReminderLevel,
		Title:         task.DisplayTitle(),
		TargetPkgName: task.TargetPkgName,
		SessionID:     s.id,
		At:            now,
	})
	h.logger.InfoContext(ctx, "alarm started",
		slog.Int64("task_id", task.ID),
		slog.String("session_id", s.id),
	)
}

func (h *Handler) ring(s *session) {
	defer close(s.doneCh)
	ticker := time.NewTicker(h.ringInterval)
	defer ticker.Stop()
	for {
		if err := h.ringer.Ring(); err != nil {
			h.logger.Warn("alarm ring failed",
				slog.Int64("task_id", s.task.ID),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (h *Handler) stopSession(taskID int64) (*session, bool) {
	h.mu.Lock()
	s, ok := h.sessions[taskID]
	if ok {
		delete(h.sessions, taskID)
	}
	h.mu.Unlock()
	if !ok {
		return nil, false
	}
	close(s.stopCh)
	<-s.doneCh
	return s, true
}

// Acknowledge dismisses the alarm for taskID and completes the record if it
// is still pending.
func (h *Handler) Acknowledge(ctx context.Context, taskID int64) error {
	s, hadSession := h.stopSession(taskID)
	if hadSession {
		h.emit(ctx, Event{Kind: EventAlarmStopped, TaskID: taskID, SessionID: s.id, At: h.now()})
	}
	return h.complete(ctx, taskID)
}

// DismissNotification handles the user closing a level 1 notification.
func (h *Handler) DismissNotification(ctx context.Context, taskID int64) error {
	if !h.completeSilent {
		return nil
	}
	return h.complete(ctx, taskID)
}

func (h *Handler) complete(ctx context.Context, taskID int64) error {
	task, err := h.store.GetTaskRecord(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		h.logger.ErrorContext(ctx, "load task for completion failed",
			slog.Int64("task_id", taskID),
			slog.String("error", err.Error()),
		)
		return err
	}
	if !task.IsPending() {
		return nil
	}
	done, err := task.Complete()
	if err != nil {
		return err
	}
	if err := h.store.UpdateTaskRecord(ctx, done); err != nil {
		h.logger.ErrorContext(ctx, "complete task failed",
			slog.Int64("task_id", taskID),
			slog.String("error", err.Error()),
		)
		return err
	}
	h.emit(ctx, Event{Kind: EventCompleted, TaskID: taskID, Level: done.ReminderLevel, Title: done.DisplayTitle(), At: h.now()})
	h.logger.InfoContext(ctx, "task completed", slog.Int64("task_id", taskID))
	return nil
}

// OpenTarget quick-launches the record's associated application. When it
// cannot start, the store listing for the target is opened instead.
func (h *Handler) OpenTarget(ctx context.Context, taskID int64) error {
	task, err := h.store.GetTaskRecord(ctx, taskID)
	if err != nil {
		return err
	}
	target := strings.TrimSpace(task.TargetPkgName)
	if target == "" {
		return ErrNoTarget
	}
	launchErr := h.launcher.Launch(target)
	if launchErr == nil {
		return nil
	}
	h.logger.WarnContext(ctx, "launch target failed, opening store listing",
		slog.Int64("task_id", taskID),
		slog.String("target", target),
		slog.String("error", launchErr.Error()),
	)
	if err := h.launcher.Launch(h.StoreListing(target)); err != nil {
		return fmt.Errorf("open store listing: %w", errors.Join(launchErr, err))
	}
	return nil
}

func (h *Handler) StoreListing(target string) string {
	return fmt.Sprintf(h.storeURL, url.QueryEscape(target))
}

// ActiveAlarms lists the task ids with a ringing alarm.
func (h *Handler) ActiveAlarms() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, 0, len(h.sessions))
	for id := range h.sessions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Handler) StopAll() {
	for _, id := range h.ActiveAlarms() {
		h.stopSession(id)
	}
}

func (h *Handler) emit(ctx context.Context, ev Event) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

func notificationBody(task model.TaskRecord) string {
	body := fmt.Sprintf("%s at %s", task.TargetDate, task.TriggerAt().Format("15:04"))
	if task.TargetPkgName != "" {
		body += " · open " + task.TargetPkgName
	}
	return body
}
