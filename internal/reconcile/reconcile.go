package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/sandeepkv93/shiftd/internal/expand"
	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/storage"
)

// Store is the part of the repository the reconciler writes through.
type Store interface {
	ListShiftRules(ctx context.Context) ([]model.ShiftRule, error)
	ListAnniversaries(ctx context.Context) ([]model.Anniversary, error)
	GetTaskRecordsForDate(ctx context.Context, date string) ([]model.TaskRecord, error)
	InsertTaskRecord(ctx context.Context, in model.TaskRecord) (int64, error)
	DeletePendingTaskRecordsForSource(ctx context.Context, sourceType model.SourceType, sourceID int64) (int64, error)
}

type Options struct {
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
	// NewBackOff builds the retry policy for a single insert.
	NewBackOff func() backoff.BackOff
}

type Reconciler struct {
	store  Store
	engine *expand.Engine
	now    func() time.Time
	logger *slog.Logger
	newBO  func() backoff.BackOff

	locMu sync.RWMutex
	loc   *time.Location

	mu    sync.Mutex
	locks map[sourceKey]*sync.Mutex
	runs  map[string]*runState
	group singleflight.Group
}

// runState counts full-pass requests per window key. A pass started after
// request n has been recorded covers every request up to n.
type runState struct {
	requested uint64
	completed uint64
}

type sourceKey struct {
	sourceType model.SourceType
	sourceID   int64
}

// Report describes one per-source regeneration.
type Report struct {
	SourceType model.SourceType
	SourceID   int64
	Deleted    int64
	Inserted   int
	Skipped    int
	Failed     int
	Err        error
}

// Summary aggregates a regenerateAll pass.
type Summary struct {
	Window   expand.Window
	Sources  int
	Deleted  int64
	Inserted int
	Skipped  int
	Failed   int
	Errors   []string
}

func (s *Summary) add(r Report) {
	s.Sources++
	s.Deleted += r.Deleted
	s.Inserted += r.Inserted
	s.Skipped += r.Skipped
	s.Failed += r.Failed
	if r.Err != nil {
		s.Errors = append(s.Errors, fmt.Sprintf("%s/%d: %v", r.SourceType, r.SourceID, r.Err))
	}
}

func New(store Store, engine *expand.Engine, opts Options) *Reconciler {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = defaultBackOff
	}
	if engine == nil {
		engine = expand.NewEngine(nil, opts.Logger)
	}
	return &Reconciler{
		store:  store,
		engine: engine,
		loc:    opts.Location,
		now:    opts.Now,
		logger: opts.Logger,
		newBO:  opts.NewBackOff,
		locks:  make(map[sourceKey]*sync.Mutex),
		runs:   make(map[string]*runState),
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second
	return backoff.WithMaxRetries(b, 3)
}

func (r *Reconciler) Window(daysAhead int) expand.Window {
	return expand.NewWindow(r.now(), daysAhead, r.Location())
}

func (r *Reconciler) Location() *time.Location {
	r.locMu.RLock()
	defer r.locMu.RUnlock()
	return r.loc
}

// SetLocation switches the zone new windows are built in.
func (r *Reconciler) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	r.locMu.Lock()
	r.loc = loc
	r.locMu.Unlock()
}

func (r *Reconciler) sourceLock(key sourceKey) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// RegenerateForSource deletes the source's pending records and inserts every
// draft whose (source, trigger) key is not already stored for its date.
// Completed and cancelled records survive and block re-insertion of their key.
// Once the delete has committed the inserts must run, so the unit ignores
// cancellation of ctx.
func (r *Reconciler) RegenerateForSource(ctx context.Context, sourceType model.SourceType, sourceID int64, drafts []model.TaskRecord) Report {
	ctx = context.WithoutCancel(ctx)
	key := sourceKey{sourceType: sourceType, sourceID: sourceID}
	lock := r.sourceLock(key)
	lock.Lock()
	defer lock.Unlock()

	rep := Report{SourceType: sourceType, SourceID: sourceID}
	deleted, err := r.store.DeletePendingTaskRecordsForSource(ctx, sourceType, sourceID)
	if err != nil {
		r.logger.ErrorContext(ctx, "delete pending task records failed",
			slog.String("source_type", string(sourceType)),
			slog.Int64("source_id", sourceID),
			slog.String("error", err.Error()),
		)
		rep.Err = err
	}
	rep.Deleted = deleted

	existing := make(map[string]map[model.TaskKey]bool)
	for _, draft := range drafts {
		draft.SourceType = sourceType
		draft.SourceID = sourceID
		if draft.Status == "" {
			draft.Status = model.TaskStatusPending
		}
		keys, ok := existing[draft.TargetDate]
		if !ok {
			keys = r.keysForDate(ctx, draft.TargetDate)
			existing[draft.TargetDate] = keys
		}
		if keys[draft.Key()] {
			rep.Skipped++
			continue
		}
		switch err := r.insert(ctx, draft); {
		case err == nil:
			keys[draft.Key()] = true
			rep.Inserted++
		case errors.Is(err, storage.ErrDuplicate):
			keys[draft.Key()] = true
			rep.Skipped++
		default:
			rep.Failed++
			rep.Err = err
			r.logger.ErrorContext(ctx, "insert task record failed",
				slog.String("source_type", string(sourceType)),
				slog.Int64("source_id", sourceID),
				slog.String("target_date", draft.TargetDate),
				slog.Int64("trigger_timestamp", draft.TriggerTimestamp),
				slog.String("error", err.Error()),
			)
		}
	}
	r.logger.DebugContext(ctx, "source regenerated",
		slog.String("source_type", string(sourceType)),
		slog.Int64("source_id", sourceID),
		slog.Int64("deleted", rep.Deleted),
		slog.Int("inserted", rep.Inserted),
		slog.Int("skipped", rep.Skipped),
	)
	return rep
}

// keysForDate degrades to an empty set on read failure; the unique index
// still rejects a duplicate insert.
func (r *Reconciler) keysForDate(ctx context.Context, date string) map[model.TaskKey]bool {
	keys := make(map[model.TaskKey]bool)
	recs, err := r.store.GetTaskRecordsForDate(ctx, date)
	if err != nil {
		r.logger.WarnContext(ctx, "read task records for date failed",
			slog.String("target_date", date),
			slog.String("error", err.Error()),
		)
		return keys
	}
	for _, rec := range recs {
		keys[rec.Key()] = true
	}
	return keys
}

func (r *Reconciler) insert(ctx context.Context, draft model.TaskRecord) error {
	op := func() error {
		_, err := r.store.InsertTaskRecord(ctx, draft)
		if errors.Is(err, storage.ErrDuplicate) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(r.newBO(), ctx))
}

func (r *Reconciler) RegenerateShiftRule(ctx context.Context, rule model.ShiftRule, w expand.Window) Report {
	drafts := r.engine.ShiftRule(ctx, rule, w)
	return r.RegenerateForSource(ctx, model.SourceShiftRule, rule.ID, drafts)
}

func (r *Reconciler) RegenerateAnniversary(ctx context.Context, ann model.Anniversary, w expand.Window) Report {
	drafts := r.engine.Anniversary(ctx, ann, w)
	return r.RegenerateForSource(ctx, model.SourceAnniversary, ann.ID, drafts)
}

// RemoveSource drops the pending records of a deleted source.
func (r *Reconciler) RemoveSource(ctx context.Context, sourceType model.SourceType, sourceID int64) Report {
	return r.RegenerateForSource(ctx, sourceType, sourceID, nil)
}

// RegenerateAll regenerates every stored rule and anniversary over
// [today, today+daysAhead]. Concurrent calls for the same window share one
// run; a call that arrives after that run has read its sources waits for a
// follow-up run. The run itself ignores cancellation of ctx.
func (r *Reconciler) RegenerateAll(ctx context.Context, daysAhead int) Summary {
	for {
		w := r.Window(daysAhead)
		key := fmt.Sprintf("%s+%d@%s", model.FormatDate(w.Start), daysAhead, w.Loc)
		want := r.request(key)
		v, _, _ := r.group.Do(key, func() (any, error) {
			covered := r.covering(key)
			sum := r.regenerateAll(context.WithoutCancel(ctx), w)
			r.complete(key, covered)
			return sum, nil
		})
		if r.done(key, want) {
			return v.(Summary)
		}
	}
}

func (r *Reconciler) state(key string) *runState {
	st, ok := r.runs[key]
	if !ok {
		st = &runState{}
		r.runs[key] = st
	}
	return st
}

func (r *Reconciler) request(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(key)
	st.requested++
	return st.requested
}

func (r *Reconciler) covering(key string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(key).requested
}

func (r *Reconciler) complete(key string, covered uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(key)
	if covered > st.completed {
		st.completed = covered
	}
}

func (r *Reconciler) done(key string, want uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state(key).completed >= want
}

func (r *Reconciler) regenerateAll(ctx context.Context, w expand.Window) Summary {
	sum := Summary{Window: w}

	rules, err := r.store.ListShiftRules(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "list shift rules failed", slog.String("error", err.Error()))
		sum.Errors = append(sum.Errors, "list shift rules: "+err.Error())
		rules = nil
	}
	for _, rule := range rules {
		sum.add(r.RegenerateShiftRule(ctx, rule, w))
	}

	anns, err := r.store.ListAnniversaries(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "list anniversaries failed", slog.String("error", err.Error()))
		sum.Errors = append(sum.Errors, "list anniversaries: "+err.Error())
		anns = nil
	}
	for _, ann := range anns {
		sum.add(r.RegenerateAnniversary(ctx, ann, w))
	}

	r.logger.InfoContext(ctx, "regeneration finished",
		slog.String("window_start", model.FormatDate(w.Start)),
		slog.String("window_end", model.FormatDate(w.End)),
		slog.Int("sources", sum.Sources),
		slog.Int("inserted", sum.Inserted),
		slog.Int("failed", sum.Failed),
	)
	return sum
}
