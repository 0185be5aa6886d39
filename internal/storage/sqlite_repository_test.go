package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandeepkv93/shiftd/internal/model"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "shiftd-test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	repo, err := NewSQLiteRepository(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	return repo
}

func parseRFC3339(t *testing.T, value string) time.Time {
	t.Helper()
	out, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return out
}

func pendingRecord(sourceID int64, date string, trigger time.Time) model.TaskRecord {
	return model.TaskRecord{
		SourceType:       model.SourceShiftRule,
		SourceID:         sourceID,
		TargetDate:       date,
		TriggerTimestamp: trigger.UnixMilli(),
		ReminderLevel:    model.ReminderAlarm,
		Status:           model.TaskStatusPending,
	}
}

func TestShiftRuleCRUDAndList(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	rule := model.ShiftRule{
		Title:     "Night rotation",
		StartDate: parseRFC3339(t, "2024-01-01T00:00:00Z"),
		CycleDays: 3,
		ShiftConfig: []model.DayConfig{
			{DayIndex: 0, ReminderLevel: model.ReminderAlarm, TimeSlots: []model.TimeSlot{{Time: "08:00", TargetPkgName: "clock"}}},
		},
		SkipHoliday:          true,
		DefaultReminderLevel: model.ReminderAlarm,
	}
	id, err := repo.UpsertShiftRule(ctx, rule)
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if id == 0 {
		t.Fatal("expected generated id")
	}

	got, err := repo.GetShiftRule(ctx, id)
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if !got.SkipHoliday || len(got.ShiftConfig) != 1 || got.ShiftConfig[0].TimeSlots[0].TargetPkgName != "clock" {
		t.Fatalf("unexpected rule: %#v", got)
	}
	if !got.StartDate.Equal(rule.StartDate) {
		t.Fatalf("start date changed: %v vs %v", got.StartDate, rule.StartDate)
	}

	got.Title = "Day rotation"
	got.CycleDays = 4
	if _, err := repo.UpsertShiftRule(ctx, got); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	rules, err := repo.ListShiftRules(ctx)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 || rules[0].Title != "Day rotation" || rules[0].CycleDays != 4 {
		t.Fatalf("unexpected rules: %#v", rules)
	}

	if err := repo.DeleteShiftRule(ctx, id); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	if _, err := repo.GetShiftRule(ctx, id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
	if err := repo.DeleteShiftRule(ctx, id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on second delete, got: %v", err)
	}
}

func TestMalformedShiftConfigLoadsEmpty(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if _, err := repo.db.ExecContext(ctx, `
		INSERT INTO shift_rules (title, start_date, cycle_days, shift_config, skip_holiday, default_reminder_level)
		VALUES ('broken', ?, 2, '{not json', 0, 2)`, mustTime(parseRFC3339(t, "2024-01-01T00:00:00Z"))); err != nil {
		t.Fatalf("seed malformed rule: %v", err)
	}

	rules, err := repo.ListShiftRules(ctx)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 || len(rules[0].ShiftConfig) != 0 {
		t.Fatalf("expected one rule with empty config, got %#v", rules)
	}
}

func TestListSkipsRowsWithUnreadableTimes(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	start := mustTime(parseRFC3339(t, "2024-01-01T00:00:00Z"))

	if _, err := repo.db.ExecContext(ctx, `
		INSERT INTO shift_rules (title, start_date, cycle_days, shift_config, skip_holiday, default_reminder_level)
		VALUES ('corrupt', 'yesterday-ish', 2, '[]', 0, 2), ('good', ?, 2, '[]', 0, 2)`, start); err != nil {
		t.Fatalf("seed rules: %v", err)
	}
	rules, err := repo.ListShiftRules(ctx)
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(rules) != 1 || rules[0].Title != "good" {
		t.Fatalf("expected only the readable rule, got %#v", rules)
	}
	if _, err := repo.GetShiftRule(ctx, 1); !errors.Is(err, ErrMalformedRow) {
		t.Fatalf("expected ErrMalformedRow for the corrupt rule, got %v", err)
	}

	if _, err := repo.db.ExecContext(ctx, `
		INSERT INTO anniversaries (title, target_date, reminder_level, reminder_time)
		VALUES ('corrupt', '2020-06-03', 1, 'noon'), ('good', '2020-06-04', 1, NULL)`); err != nil {
		t.Fatalf("seed anniversaries: %v", err)
	}
	anns, err := repo.ListAnniversaries(ctx)
	if err != nil {
		t.Fatalf("list anniversaries: %v", err)
	}
	if len(anns) != 1 || anns[0].Title != "good" {
		t.Fatalf("expected only the readable anniversary, got %#v", anns)
	}
}

func TestAnniversaryCRUD(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	at := parseRFC3339(t, "2020-03-15T18:30:00Z")

	id, err := repo.UpsertAnniversary(ctx, model.Anniversary{
		Title:         "Wedding",
		TargetDate:    "2020-03-15",
		ReminderLevel: model.ReminderSilent,
		ReminderTime:  &at,
	})
	if err != nil {
		t.Fatalf("create anniversary: %v", err)
	}
	got, err := repo.GetAnniversary(ctx, id)
	if err != nil {
		t.Fatalf("get anniversary: %v", err)
	}
	if got.ReminderTime == nil || !got.ReminderTime.Equal(at) {
		t.Fatalf("unexpected reminder time: %#v", got.ReminderTime)
	}

	got.ReminderTime = nil
	if _, err := repo.UpsertAnniversary(ctx, got); err != nil {
		t.Fatalf("update anniversary: %v", err)
	}
	list, err := repo.ListAnniversaries(ctx)
	if err != nil {
		t.Fatalf("list anniversaries: %v", err)
	}
	if len(list) != 1 || list[0].ReminderTime != nil {
		t.Fatalf("unexpected anniversaries: %#v", list)
	}

	if err := repo.DeleteAnniversary(ctx, id); err != nil {
		t.Fatalf("delete anniversary: %v", err)
	}
	if _, err := repo.GetAnniversary(ctx, id); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTaskRecordUniqueKey(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	trigger := parseRFC3339(t, "2024-06-01T08:00:00Z")

	if _, err := repo.InsertTaskRecord(ctx, pendingRecord(1, "2024-06-01", trigger)); err != nil {
		t.Fatalf("insert record: %v", err)
	}
	_, err := repo.InsertTaskRecord(ctx, pendingRecord(1, "2024-06-01", trigger))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := repo.InsertTaskRecord(ctx, pendingRecord(2, "2024-06-01", trigger)); err != nil {
		t.Fatalf("same instant for another source should insert: %v", err)
	}
}

func TestTaskRecordQueriesAndPendingDelete(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	first, err := repo.InsertTaskRecord(ctx, pendingRecord(7, "2024-06-01", parseRFC3339(t, "2024-06-01T08:00:00Z")))
	if err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if _, err := repo.InsertTaskRecord(ctx, pendingRecord(7, "2024-06-03", parseRFC3339(t, "2024-06-03T08:00:00Z"))); err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if _, err := repo.InsertTaskRecord(ctx, pendingRecord(8, "2024-06-01", parseRFC3339(t, "2024-06-01T09:00:00Z"))); err != nil {
		t.Fatalf("insert other source: %v", err)
	}

	rec, err := repo.GetTaskRecord(ctx, first)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	rec.Status = model.TaskStatusCompleted
	if err := repo.UpdateTaskRecord(ctx, rec); err != nil {
		t.Fatalf("complete record: %v", err)
	}

	byDate, err := repo.GetTaskRecordsForDate(ctx, "2024-06-01")
	if err != nil {
		t.Fatalf("records for date: %v", err)
	}
	if len(byDate) != 2 {
		t.Fatalf("expected 2 records on 2024-06-01, got %d", len(byDate))
	}

	deleted, err := repo.DeletePendingTaskRecordsForSource(ctx, model.SourceShiftRule, 7)
	if err != nil {
		t.Fatalf("delete pending: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 pending record deleted, got %d", deleted)
	}

	left, err := repo.GetTaskRecordsForSource(ctx, model.SourceShiftRule, 7)
	if err != nil {
		t.Fatalf("records for source: %v", err)
	}
	if len(left) != 1 || left[0].ID != first || left[0].Status != model.TaskStatusCompleted {
		t.Fatalf("expected only the completed record to survive, got %#v", left)
	}

	pending, err := repo.ListTaskRecords(ctx, TaskListFilter{Status: model.TaskStatusPending})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].SourceID != 8 {
		t.Fatalf("unexpected pending list: %#v", pending)
	}

	ranged, err := repo.ListTaskRecords(ctx, TaskListFilter{From: "2024-06-02", To: "2024-06-30"})
	if err != nil {
		t.Fatalf("list ranged: %v", err)
	}
	if len(ranged) != 0 {
		t.Fatalf("expected no records after 2024-06-02, got %#v", ranged)
	}

	if err := repo.DeleteTaskRecord(ctx, first); err != nil {
		t.Fatalf("delete record: %v", err)
	}
	if _, err := repo.GetTaskRecord(ctx, first); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHolidayUpsertLastWriteWins(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if err := repo.UpsertHolidays(ctx, []model.Holiday{
		{Date: "2024-01-01", Type: model.HolidayRest, Name: "New Year"},
		{Date: "2024-02-04", Type: model.HolidayWorkday, Name: "Spring Festival调休"},
	}); err != nil {
		t.Fatalf("upsert holidays: %v", err)
	}
	if err := repo.UpsertHolidays(ctx, []model.Holiday{
		{Date: "2024-02-04", Type: model.HolidayRest, Name: "Spring Festival"},
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	all, err := repo.ListHolidays(ctx)
	if err != nil {
		t.Fatalf("list holidays: %v", err)
	}
	if len(all) != 2 || all[1].Type != model.HolidayRest || all[1].Name != "Spring Festival" {
		t.Fatalf("unexpected holidays: %#v", all)
	}

	window, err := repo.ListHolidaysBetween(ctx, "2024-01-02", "2024-12-31")
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(window) != 1 || window[0].Date != "2024-02-04" {
		t.Fatalf("unexpected window: %#v", window)
	}
}

func TestPostCreateListDelete(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	older, err := repo.CreatePost(ctx, model.Post{CreatedAt: parseRFC3339(t, "2024-06-01T10:00:00Z"), Content: "first"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if _, err := repo.CreatePost(ctx, model.Post{
		CreatedAt:     parseRFC3339(t, "2024-06-02T10:00:00Z"),
		Content:       "second",
		ImagePaths:    []string{"/tmp/a.png"},
		LinkedTaskIDs: []int64{3},
	}); err != nil {
		t.Fatalf("create post: %v", err)
	}

	posts, err := repo.ListPosts(ctx)
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(posts) != 2 || posts[0].Content != "second" || posts[0].LinkedTaskIDs[0] != 3 {
		t.Fatalf("unexpected posts: %#v", posts)
	}

	if err := repo.DeletePost(ctx, older); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	posts, _ = repo.ListPosts(ctx)
	if len(posts) != 1 {
		t.Fatalf("expected one post after delete, got %d", len(posts))
	}
}
