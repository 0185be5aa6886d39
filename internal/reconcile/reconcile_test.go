package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sandeepkv93/shiftd/internal/expand"
	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/storage"
)

func setupRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "reconcile-test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func fixedNow(year int, month time.Month, day int) func() time.Time {
	return func() time.Time { return time.Date(year, month, day, 6, 0, 0, 0, time.UTC) }
}

func newReconciler(store Store, holidays expand.HolidayReader, now func() time.Time) *Reconciler {
	return New(store, expand.NewEngine(holidays, nil), Options{
		Location:   time.UTC,
		Now:        now,
		NewBackOff: func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) },
	})
}

func alternateDayRule() model.ShiftRule {
	return model.ShiftRule{
		Title:     "Alternate days",
		StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		CycleDays: 2,
		ShiftConfig: []model.DayConfig{
			{DayIndex: 0, ReminderLevel: model.ReminderAlarm, TimeSlots: []model.TimeSlot{{Time: "08:00"}}},
		},
		DefaultReminderLevel: model.ReminderAlarm,
	}
}

func pendingFor(t *testing.T, repo *storage.SQLiteRepository, sourceType model.SourceType, id int64) []model.TaskRecord {
	t.Helper()
	recs, err := repo.GetTaskRecordsForSource(context.Background(), sourceType, id)
	if err != nil {
		t.Fatalf("records for source: %v", err)
	}
	out := make([]model.TaskRecord, 0, len(recs))
	for _, r := range recs {
		if r.IsPending() {
			out = append(out, r)
		}
	}
	return out
}

func assertUniqueKeys(t *testing.T, recs []model.TaskRecord) {
	t.Helper()
	seen := make(map[model.TaskKey]bool, len(recs))
	for _, r := range recs {
		if seen[r.Key()] {
			t.Fatalf("duplicate task key %#v", r.Key())
		}
		seen[r.Key()] = true
	}
}

func TestEndToEndRegenerateAll(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	id, err := repo.UpsertShiftRule(ctx, alternateDayRule())
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}

	rec := newReconciler(repo, repo, fixedNow(2024, 6, 1))
	sum := rec.RegenerateAll(ctx, 4)
	if sum.Inserted != 3 || sum.Failed != 0 || len(sum.Errors) != 0 {
		t.Fatalf("unexpected summary: %#v", sum)
	}

	recs := pendingFor(t, repo, model.SourceShiftRule, id)
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, day := range []int{1, 3, 5} {
		want := time.Date(2024, 6, day, 8, 0, 0, 0, time.UTC).UnixMilli()
		if recs[i].TriggerTimestamp != want || recs[i].ReminderLevel != model.ReminderAlarm || recs[i].Status != model.TaskStatusPending {
			t.Fatalf("record %d = %#v", i, recs[i])
		}
	}
}

func TestRegenerateForSourceIsIdempotent(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	rule := alternateDayRule()
	rule.ID = 1
	rec := newReconciler(repo, repo, fixedNow(2024, 6, 1))
	w := rec.Window(10)

	first := rec.RegenerateShiftRule(ctx, rule, w)
	before := pendingFor(t, repo, model.SourceShiftRule, 1)
	second := rec.RegenerateShiftRule(ctx, rule, w)
	after := pendingFor(t, repo, model.SourceShiftRule, 1)

	if first.Inserted != 6 || second.Inserted != 6 || second.Deleted != 6 {
		t.Fatalf("unexpected reports: %#v %#v", first, second)
	}
	if len(before) != len(after) {
		t.Fatalf("pending count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Key() != after[i].Key() {
			t.Fatalf("pending keys differ at %d: %#v vs %#v", i, before[i].Key(), after[i].Key())
		}
	}
	assertUniqueKeys(t, after)
}

func TestRegeneratePreservesCompletedRecords(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	rule := alternateDayRule()
	rule.ID = 2
	rec := newReconciler(repo, repo, fixedNow(2024, 6, 1))
	w := rec.Window(4)

	rec.RegenerateShiftRule(ctx, rule, w)
	recs := pendingFor(t, repo, model.SourceShiftRule, 2)
	done, err := recs[0].Complete()
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.UpdateTaskRecord(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}

	report := rec.RegenerateShiftRule(ctx, rule, w)
	if report.Skipped != 1 || report.Inserted != 2 {
		t.Fatalf("expected completed key skipped, got %#v", report)
	}

	all, err := repo.GetTaskRecordsForSource(ctx, model.SourceShiftRule, 2)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records total, got %d", len(all))
	}
	assertUniqueKeys(t, all)
	got, err := repo.GetTaskRecord(ctx, done.ID)
	if err != nil || got.Status != model.TaskStatusCompleted {
		t.Fatalf("completed record lost: %#v %v", got, err)
	}
}

func TestConcurrentRegenerationNeverDuplicates(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	rule := alternateDayRule()
	rule.ID = 3
	rec := newReconciler(repo, repo, fixedNow(2024, 6, 1))
	w := rec.Window(20)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.RegenerateShiftRule(ctx, rule, w)
		}()
	}
	wg.Wait()

	all, err := repo.GetTaskRecordsForSource(ctx, model.SourceShiftRule, 3)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(all) != 11 {
		t.Fatalf("expected 11 records, got %d", len(all))
	}
	assertUniqueKeys(t, all)
}

func TestRemoveSourceKeepsHistory(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	rule := alternateDayRule()
	rule.ID = 4
	rec := newReconciler(repo, repo, fixedNow(2024, 6, 1))
	rec.RegenerateShiftRule(ctx, rule, rec.Window(4))

	recs := pendingFor(t, repo, model.SourceShiftRule, 4)
	done, _ := recs[0].Complete()
	if err := repo.UpdateTaskRecord(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}

	report := rec.RemoveSource(ctx, model.SourceShiftRule, 4)
	if report.Deleted != 2 || report.Inserted != 0 {
		t.Fatalf("unexpected report: %#v", report)
	}
	all, _ := repo.GetTaskRecordsForSource(ctx, model.SourceShiftRule, 4)
	if len(all) != 1 || all[0].Status != model.TaskStatusCompleted {
		t.Fatalf("expected only completed history, got %#v", all)
	}
}

func TestRegenerateAllSkipsHolidays(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	rule := model.ShiftRule{
		Title:     "Every third day",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		CycleDays: 3,
		ShiftConfig: []model.DayConfig{
			{DayIndex: 0, ReminderLevel: model.ReminderSilent, TimeSlots: []model.TimeSlot{{Time: "08:00"}}},
		},
		SkipHoliday: true,
	}
	id, err := repo.UpsertShiftRule(ctx, rule)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if err := repo.UpsertHolidays(ctx, []model.Holiday{{Date: "2024-01-04", Type: model.HolidayRest}}); err != nil {
		t.Fatalf("seed holidays: %v", err)
	}

	rec := newReconciler(repo, repo, fixedNow(2024, 1, 1))
	rec.RegenerateAll(ctx, 9)

	for _, r := range pendingFor(t, repo, model.SourceShiftRule, id) {
		if r.TargetDate == "2024-01-04" {
			t.Fatalf("holiday should be excluded: %#v", r)
		}
	}
	if got := len(pendingFor(t, repo, model.SourceShiftRule, id)); got != 3 {
		t.Fatalf("expected 3 records, got %d", got)
	}
}

type flakyStore struct {
	*storage.SQLiteRepository

	mu         sync.Mutex
	failures   int
	failSource int64
	listErr    error
}

func (f *flakyStore) InsertTaskRecord(ctx context.Context, in model.TaskRecord) (int64, error) {
	f.mu.Lock()
	if in.SourceID == f.failSource {
		f.mu.Unlock()
		return 0, errors.New("disk full")
	}
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return 0, errors.New("database is locked")
	}
	f.mu.Unlock()
	return f.SQLiteRepository.InsertTaskRecord(ctx, in)
}

func (f *flakyStore) ListShiftRules(ctx context.Context) ([]model.ShiftRule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.SQLiteRepository.ListShiftRules(ctx)
}

func TestInsertRetriesTransientFailure(t *testing.T) {
	repo := setupRepo(t)
	store := &flakyStore{SQLiteRepository: repo, failures: 2, failSource: -1}
	rule := alternateDayRule()
	rule.ID = 5
	rec := newReconciler(store, repo, fixedNow(2024, 6, 1))

	report := rec.RegenerateShiftRule(context.Background(), rule, rec.Window(4))
	if report.Inserted != 3 || report.Failed != 0 {
		t.Fatalf("expected retry to recover, got %#v", report)
	}
}

func TestRegenerateAllToleratesFailingSource(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	bad, err := repo.UpsertShiftRule(ctx, alternateDayRule())
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	good, err := repo.UpsertShiftRule(ctx, alternateDayRule())
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	store := &flakyStore{SQLiteRepository: repo, failSource: bad}
	rec := newReconciler(store, repo, fixedNow(2024, 6, 1))

	sum := rec.RegenerateAll(ctx, 4)
	if sum.Failed != 3 || sum.Inserted != 3 || len(sum.Errors) != 1 {
		t.Fatalf("unexpected summary: %#v", sum)
	}
	if got := len(pendingFor(t, repo, model.SourceShiftRule, good)); got != 3 {
		t.Fatalf("good rule should still generate, got %d", got)
	}
}

func TestRegenerateAllDegradesOnListFailure(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	annID, err := repo.UpsertAnniversary(ctx, model.Anniversary{Title: "Wedding", TargetDate: "2020-06-03", ReminderLevel: model.ReminderSilent})
	if err != nil {
		t.Fatalf("create anniversary: %v", err)
	}
	store := &flakyStore{SQLiteRepository: repo, failSource: -1, listErr: errors.New("no such table")}
	rec := newReconciler(store, repo, fixedNow(2024, 6, 1))

	sum := rec.RegenerateAll(ctx, 30)
	if len(sum.Errors) != 1 {
		t.Fatalf("expected list error recorded, got %#v", sum.Errors)
	}
	if got := len(pendingFor(t, repo, model.SourceAnniversary, annID)); got != 1 {
		t.Fatalf("anniversaries should still regenerate, got %d", got)
	}
}

// cancelAfterDelete cancels the caller's context as soon as the pending
// delete has committed, like a client hanging up mid-request.
type cancelAfterDelete struct {
	*storage.SQLiteRepository
	cancel context.CancelFunc
}

func (c *cancelAfterDelete) DeletePendingTaskRecordsForSource(ctx context.Context, sourceType model.SourceType, sourceID int64) (int64, error) {
	n, err := c.SQLiteRepository.DeletePendingTaskRecordsForSource(ctx, sourceType, sourceID)
	c.cancel()
	return n, err
}

func TestRegenerateForSourceSurvivesCallerCancel(t *testing.T) {
	repo := setupRepo(t)
	rule := alternateDayRule()
	rule.ID = 6
	seed := newReconciler(repo, repo, fixedNow(2024, 6, 1))
	seed.RegenerateShiftRule(context.Background(), rule, seed.Window(4))
	if got := len(pendingFor(t, repo, model.SourceShiftRule, 6)); got != 3 {
		t.Fatalf("expected 3 seeded records, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := newReconciler(&cancelAfterDelete{SQLiteRepository: repo, cancel: cancel}, repo, fixedNow(2024, 6, 1))
	report := rec.RegenerateShiftRule(ctx, rule, rec.Window(4))
	if report.Deleted != 3 || report.Inserted != 3 || report.Failed != 0 || report.Err != nil {
		t.Fatalf("expected delete and insert to complete together, got %#v", report)
	}
	if got := len(pendingFor(t, repo, model.SourceShiftRule, 6)); got != 3 {
		t.Fatalf("expected 3 pending records after cancelled caller, got %d", got)
	}
}

// gatedStore reads the rules, then holds the first ListShiftRules call until
// release is closed.
type gatedStore struct {
	*storage.SQLiteRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) ListShiftRules(ctx context.Context) ([]model.ShiftRule, error) {
	rules, err := g.SQLiteRepository.ListShiftRules(ctx)
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return rules, err
}

func requestsFor(rec *Reconciler) uint64 {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var n uint64
	for _, st := range rec.runs {
		n += st.requested
	}
	return n
}

func TestRegenerateAllLateCallerGetsFreshRun(t *testing.T) {
	repo := setupRepo(t)
	first, err := repo.UpsertShiftRule(context.Background(), alternateDayRule())
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	store := &gatedStore{SQLiteRepository: repo, entered: make(chan struct{}), release: make(chan struct{})}
	rec := newReconciler(store, repo, fixedNow(2024, 6, 1))

	ctxA, cancelA := context.WithCancel(context.Background())
	sumA := make(chan Summary, 1)
	go func() { sumA <- rec.RegenerateAll(ctxA, 4) }()
	<-store.entered
	cancelA()

	second, err := repo.UpsertShiftRule(context.Background(), alternateDayRule())
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	sumB := make(chan Summary, 1)
	go func() { sumB <- rec.RegenerateAll(context.Background(), 4) }()

	deadline := time.Now().Add(2 * time.Second)
	for requestsFor(rec) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second caller never requested a run")
		}
		time.Sleep(time.Millisecond)
	}
	close(store.release)

	a := <-sumA
	if len(a.Errors) != 0 || a.Inserted != 3 {
		t.Fatalf("cancelled caller's run should still complete, got %#v", a)
	}
	b := <-sumB
	if b.Sources != 2 || len(b.Errors) != 0 {
		t.Fatalf("late caller should see both rules, got %#v", b)
	}
	for _, id := range []int64{first, second} {
		if got := len(pendingFor(t, repo, model.SourceShiftRule, id)); got != 3 {
			t.Fatalf("rule %d: expected 3 pending records, got %d", id, got)
		}
	}
}

func TestSetLocationMovesWindow(t *testing.T) {
	repo := setupRepo(t)
	rec := newReconciler(repo, repo, func() time.Time { return time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC) })
	tokyo := time.FixedZone("JST", 9*3600)
	rec.SetLocation(tokyo)
	w := rec.Window(1)
	if w.Loc != tokyo || model.FormatDate(w.Start) != "2024-06-02" {
		t.Fatalf("expected window in new zone starting 2024-06-02, got %s in %v", model.FormatDate(w.Start), w.Loc)
	}
}
