package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/shiftd/internal/assist"
	"github.com/sandeepkv93/shiftd/internal/delivery"
	"github.com/sandeepkv93/shiftd/internal/dispatch"
	"github.com/sandeepkv93/shiftd/internal/holiday"
	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/reconcile"
	"github.com/sandeepkv93/shiftd/internal/storage"
)

var (
	ErrMissingDependency = errors.New("service: missing dependency")
	ErrEmptyContent      = errors.New("service: post content is empty")
	ErrHolidaysDisabled  = errors.New("service: holiday sync is not configured")
	ErrSyncInProgress    = errors.New("service: holiday sync already running")
)

// Deps are the collaborators the service orchestrates. Holidays and
// Assistant are optional.
type Deps struct {
	Repo       storage.Repository
	Reconciler *reconcile.Reconciler
	Dispatcher *dispatch.Service
	Delivery   *delivery.Handler
	Holidays   *holiday.Syncer
	Assistant  *assist.Assistant
}

type Options struct {
	Location *time.Location
	// Zone resolves the current device zone for the clock watcher.
	Zone               func() *time.Location
	Now                func() time.Time
	Logger             *slog.Logger
	DaysAhead          int
	RefreshInterval    time.Duration
	ClockCheckInterval time.Duration
	ClockSkewTolerance time.Duration
	HolidaySyncOnStart bool
}

// Recovery is the outcome of a regenerate-then-register pass.
type Recovery struct {
	Reason   string
	Summary  reconcile.Summary
	Dispatch dispatch.Result
}

type Service struct {
	repo       storage.Repository
	reconciler *reconcile.Reconciler
	dispatcher *dispatch.Service
	delivery   *delivery.Handler
	holidays   *holiday.Syncer
	assistant  *assist.Assistant

	locMu sync.RWMutex
	loc   *time.Location
	zone  func() *time.Location

	now           func() time.Time
	logger        *slog.Logger
	daysAhead     int
	refreshEvery  time.Duration
	clockEvery    time.Duration
	skewTolerance time.Duration
	syncOnStart   bool

	changes chan struct{}

	syncMu     sync.Mutex
	syncStatus SyncStatus
}

func New(deps Deps, opts Options) (*Service, error) {
	if deps.Repo == nil || deps.Reconciler == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("%w: repo, reconciler and dispatcher are required", ErrMissingDependency)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Zone == nil {
		opts.Zone = LocalZone
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = 30
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 6 * time.Hour
	}
	if opts.ClockCheckInterval <= 0 {
		opts.ClockCheckInterval = time.Minute
	}
	if opts.ClockSkewTolerance <= 0 {
		opts.ClockSkewTolerance = 2 * time.Minute
	}
	return &Service{
		repo:          deps.Repo,
		reconciler:    deps.Reconciler,
		dispatcher:    deps.Dispatcher,
		delivery:      deps.Delivery,
		holidays:      deps.Holidays,
		assistant:     deps.Assistant,
		loc:           opts.Location,
		zone:          opts.Zone,
		now:           opts.Now,
		logger:        opts.Logger,
		daysAhead:     opts.DaysAhead,
		refreshEvery:  opts.RefreshInterval,
		clockEvery:    opts.ClockCheckInterval,
		skewTolerance: opts.ClockSkewTolerance,
		syncOnStart:   opts.HolidaySyncOnStart,
		changes:       make(chan struct{}, 1),
	}, nil
}

// Changes signals that stored data changed. Signals coalesce; observers
// should re-read whatever they display.
func (s *Service) Changes() <-chan struct{} {
	return s.changes
}

func (s *Service) notifyChanged() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Service) Location() *time.Location {
	s.locMu.RLock()
	defer s.locMu.RUnlock()
	return s.loc
}

// setLocation moves every zone-dependent collaborator to loc.
func (s *Service) setLocation(loc *time.Location) {
	s.locMu.Lock()
	s.loc = loc
	s.locMu.Unlock()
	s.reconciler.SetLocation(loc)
	if s.assistant != nil {
		s.assistant.SetLocation(loc)
	}
}

func (s *Service) DaysAhead() int { return s.daysAhead }

// Recover regenerates every source over the rolling window and registers
// every pending future record. It runs at start-up, on a schedule, after a
// holiday sync, and when the wall clock or zone jumps.
func (s *Service) Recover(ctx context.Context, reason string) Recovery {
	sum := s.reconciler.RegenerateAll(ctx, s.daysAhead)
	res := s.dispatcher.RegisterAllPending(ctx)
	s.logger.InfoContext(ctx, "recovery pass finished",
		slog.String("reason", reason),
		slog.Int("inserted", sum.Inserted),
		slog.Int("registered", res.Registered),
	)
	s.notifyChanged()
	return Recovery{Reason: reason, Summary: sum, Dispatch: res}
}

// Start performs start-up recovery, then runs the refresh loop and the clock
// watcher until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	s.Recover(ctx, "startup")
	if s.syncOnStart && s.holidays != nil {
		go func() {
			if _, err := s.SyncHolidays(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				s.logger.WarnContext(ctx, "startup holiday sync failed", slog.String("error", err.Error()))
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.refreshLoop(gctx)
		return nil
	})
	g.Go(func() error {
		s.watchClock(gctx, newClockSampler(s.now, s.zone))
		return nil
	})
	return g.Wait()
}

func (s *Service) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Recover(ctx, "refresh")
		}
	}
}

func (s *Service) window() (string, string) {
	w := s.reconciler.Window(s.daysAhead)
	return model.FormatDate(w.Start), model.FormatDate(w.End)
}

// TasksForDate lists a day's records. Read failures degrade to none.
func (s *Service) TasksForDate(ctx context.Context, date string) []model.TaskRecord {
	tasks, err := s.repo.GetTaskRecordsForDate(ctx, date)
	if err != nil {
		s.logger.ErrorContext(ctx, "load day tasks failed",
			slog.String("date", date),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return tasks
}

// Markers maps each date of the month containing day to its highest
// reminder level.
func (s *Service) Markers(ctx context.Context, day time.Time) map[string]model.ReminderLevel {
	loc := s.Location()
	day = day.In(loc)
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)
	tasks, err := s.repo.ListTaskRecords(ctx, storage.TaskListFilter{
		From: model.FormatDate(first),
		To:   model.FormatDate(last),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "load month markers failed", slog.String("error", err.Error()))
		return map[string]model.ReminderLevel{}
	}
	return model.LevelsByDate(tasks)
}

func (s *Service) UpcomingTasks(ctx context.Context) []model.TaskRecord {
	from, to := s.window()
	tasks, err := s.repo.ListTaskRecords(ctx, storage.TaskListFilter{
		Status: model.TaskStatusPending,
		From:   from,
		To:     to,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "load upcoming tasks failed", slog.String("error", err.Error()))
		return nil
	}
	return tasks
}

func (s *Service) Task(ctx context.Context, id int64) (model.TaskRecord, error) {
	return s.repo.GetTaskRecord(ctx, id)
}

// DeleteTask removes one record and its wake-up.
func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	task, err := s.repo.GetTaskRecord(ctx, id)
	if err != nil {
		return err
	}
	s.dispatcher.CancelTask(ctx, task)
	if err := s.repo.DeleteTaskRecord(ctx, id); err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

// Acknowledge stops a ringing alarm and completes the record.
func (s *Service) Acknowledge(ctx context.Context, taskID int64) error {
	if s.delivery == nil {
		return fmt.Errorf("%w: delivery handler", ErrMissingDependency)
	}
	if err := s.delivery.Acknowledge(ctx, taskID); err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

func (s *Service) DismissNotification(ctx context.Context, taskID int64) error {
	if s.delivery == nil {
		return fmt.Errorf("%w: delivery handler", ErrMissingDependency)
	}
	if err := s.delivery.DismissNotification(ctx, taskID); err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}

func (s *Service) OpenTarget(ctx context.Context, taskID int64) error {
	if s.delivery == nil {
		return fmt.Errorf("%w: delivery handler", ErrMissingDependency)
	}
	return s.delivery.OpenTarget(ctx, taskID)
}

func (s *Service) ActiveAlarms() []int64 {
	if s.delivery == nil {
		return nil
	}
	return s.delivery.ActiveAlarms()
}

func (s *Service) Feed(ctx context.Context) []model.FeedItem {
	posts, err := s.repo.ListPosts(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "load posts failed", slog.String("error", err.Error()))
		posts = nil
	}
	tasks, err := s.repo.ListTaskRecords(ctx, storage.TaskListFilter{})
	if err != nil {
		s.logger.ErrorContext(ctx, "load tasks for feed failed", slog.String("error", err.Error()))
		tasks = nil
	}
	return model.BuildFeed(posts, tasks, s.now())
}

func (s *Service) CreatePost(ctx context.Context, content string, imagePaths []string, linkedTaskIDs []int64) (model.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Post{}, ErrEmptyContent
	}
	post := model.Post{
		CreatedAt:     s.now(),
		Content:       content,
		ImagePaths:    imagePaths,
		LinkedTaskIDs: linkedTaskIDs,
	}
	id, err := s.repo.CreatePost(ctx, post)
	if err != nil {
		return model.Post{}, err
	}
	post.ID = id
	s.notifyChanged()
	return post, nil
}

func (s *Service) DeletePost(ctx context.Context, id int64) error {
	if err := s.repo.DeletePost(ctx, id); err != nil {
		return err
	}
	s.notifyChanged()
	return nil
}
