package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sandeepkv93/shiftd/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

type Option func(*SQLiteRepository)

func WithLogger(logger *slog.Logger) Option {
	return func(r *SQLiteRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewSQLiteRepository(db *sql.DB, opts ...Option) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	repo := &SQLiteRepository{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(repo)
	}
	return repo, nil
}

// OpenSQLite opens the database at path and applies pending migrations.
func OpenSQLite(path string, opts ...Option) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo, err := NewSQLiteRepository(db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const shiftRuleColumns = `id, title, start_date, cycle_days, shift_config, skip_holiday, default_reminder_level`

func (r *SQLiteRepository) ListShiftRules(ctx context.Context) ([]model.ShiftRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+shiftRuleColumns+` FROM shift_rules ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.ShiftRule, 0)
	for rows.Next() {
		rule, scanErr := r.scanShiftRule(rows)
		if errors.Is(scanErr, ErrMalformedRow) {
			r.logger.WarnContext(ctx, "skipping malformed shift rule", slog.String("error", scanErr.Error()))
			continue
		}
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetShiftRule(ctx context.Context, id int64) (model.ShiftRule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+shiftRuleColumns+` FROM shift_rules WHERE id = ?`, id)
	rule, err := r.scanShiftRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ShiftRule{}, ErrNotFound
		}
		return model.ShiftRule{}, err
	}
	return rule, nil
}

// UpsertShiftRule inserts when in.ID is zero and replaces the row otherwise.
func (r *SQLiteRepository) UpsertShiftRule(ctx context.Context, in model.ShiftRule) (int64, error) {
	cfg, err := model.EncodeShiftConfig(in.ShiftConfig)
	if err != nil {
		return 0, fmt.Errorf("encode shift config: %w", err)
	}
	if in.ID == 0 {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO shift_rules (title, start_date, cycle_days, shift_config, skip_holiday, default_reminder_level)
			VALUES (?, ?, ?, ?, ?, ?)`,
			in.Title, mustTime(in.StartDate), in.CycleDays, cfg, boolInt(in.SkipHoliday), int(in.DefaultReminderLevel),
		)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO shift_rules (id, title, start_date, cycle_days, shift_config, skip_holiday, default_reminder_level)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			start_date = excluded.start_date,
			cycle_days = excluded.cycle_days,
			shift_config = excluded.shift_config,
			skip_holiday = excluded.skip_holiday,
			default_reminder_level = excluded.default_reminder_level`,
		in.ID, in.Title, mustTime(in.StartDate), in.CycleDays, cfg, boolInt(in.SkipHoliday), int(in.DefaultReminderLevel),
	)
	if err != nil {
		return 0, err
	}
	return in.ID, nil
}

func (r *SQLiteRepository) DeleteShiftRule(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM shift_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

const anniversaryColumns = `id, title, target_date, reminder_level, reminder_time`

func (r *SQLiteRepository) ListAnniversaries(ctx context.Context) ([]model.Anniversary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+anniversaryColumns+` FROM anniversaries ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Anniversary, 0)
	for rows.Next() {
		item, scanErr := scanAnniversary(rows)
		if errors.Is(scanErr, ErrMalformedRow) {
			r.logger.WarnContext(ctx, "skipping malformed anniversary", slog.String("error", scanErr.Error()))
			continue
		}
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetAnniversary(ctx context.Context, id int64) (model.Anniversary, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+anniversaryColumns+` FROM anniversaries WHERE id = ?`, id)
	item, err := scanAnniversary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Anniversary{}, ErrNotFound
		}
		return model.Anniversary{}, err
	}
	return item, nil
}

func (r *SQLiteRepository) UpsertAnniversary(ctx context.Context, in model.Anniversary) (int64, error) {
	if in.ID == 0 {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO anniversaries (title, target_date, reminder_level, reminder_time)
			VALUES (?, ?, ?, ?)`,
			in.Title, in.TargetDate, int(in.ReminderLevel), nullTime(in.ReminderTime),
		)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO anniversaries (id, title, target_date, reminder_level, reminder_time)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			target_date = excluded.target_date,
			reminder_level = excluded.reminder_level,
			reminder_time = excluded.reminder_time`,
		in.ID, in.Title, in.TargetDate, int(in.ReminderLevel), nullTime(in.ReminderTime),
	)
	if err != nil {
		return 0, err
	}
	return in.ID, nil
}

func (r *SQLiteRepository) DeleteAnniversary(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM anniversaries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

const taskRecordColumns = `id, source_type, source_id, title, target_date, trigger_timestamp, reminder_level, status, target_pkg_name`

func (r *SQLiteRepository) ListTaskRecords(ctx context.Context, filter TaskListFilter) ([]model.TaskRecord, error) {
	query := `SELECT ` + taskRecordColumns + ` FROM task_records`
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 6)
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.SourceType != "" {
		clauses = append(clauses, "source_type = ?")
		args = append(args, string(filter.SourceType))
	}
	if filter.From != "" {
		clauses = append(clauses, "target_date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		clauses = append(clauses, "target_date <= ?")
		args = append(args, filter.To)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY trigger_timestamp ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)
	return r.queryTaskRecords(ctx, query, args...)
}

func (r *SQLiteRepository) GetTaskRecord(ctx context.Context, id int64) (model.TaskRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskRecordColumns+` FROM task_records WHERE id = ?`, id)
	rec, err := scanTaskRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TaskRecord{}, ErrNotFound
		}
		return model.TaskRecord{}, err
	}
	return rec, nil
}

func (r *SQLiteRepository) GetTaskRecordsForDate(ctx context.Context, date string) ([]model.TaskRecord, error) {
	return r.queryTaskRecords(ctx, `SELECT `+taskRecordColumns+` FROM task_records
		WHERE target_date = ? ORDER BY trigger_timestamp ASC, id ASC`, date)
}

func (r *SQLiteRepository) GetTaskRecordsForSource(ctx context.Context, sourceType model.SourceType, sourceID int64) ([]model.TaskRecord, error) {
	return r.queryTaskRecords(ctx, `SELECT `+taskRecordColumns+` FROM task_records
		WHERE source_type = ? AND source_id = ? ORDER BY trigger_timestamp ASC, id ASC`, string(sourceType), sourceID)
}

// InsertTaskRecord returns ErrDuplicate when a record with the same
// (source_type, source_id, trigger_timestamp) already exists.
func (r *SQLiteRepository) InsertTaskRecord(ctx context.Context, in model.TaskRecord) (int64, error) {
	status := in.Status
	if status == "" {
		status = model.TaskStatusPending
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO task_records (source_type, source_id, title, target_date, trigger_timestamp, reminder_level, status, target_pkg_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(in.SourceType), in.SourceID, in.Title, in.TargetDate, in.TriggerTimestamp, int(in.ReminderLevel), string(status), in.TargetPkgName,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s/%d@%d", ErrDuplicate, in.SourceType, in.SourceID, in.TriggerTimestamp)
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) UpdateTaskRecord(ctx context.Context, in model.TaskRecord) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE task_records
		SET source_type = ?, source_id = ?, title = ?, target_date = ?, trigger_timestamp = ?, reminder_level = ?, status = ?, target_pkg_name = ?
		WHERE id = ?`,
		string(in.SourceType), in.SourceID, in.Title, in.TargetDate, in.TriggerTimestamp, int(in.ReminderLevel), string(in.Status), in.TargetPkgName, in.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%d@%d", ErrDuplicate, in.SourceType, in.SourceID, in.TriggerTimestamp)
		}
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) DeleteTaskRecord(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM task_records WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

// DeletePendingTaskRecordsForSource removes only pending records and reports
// how many went away. Completed and cancelled records stay for the feed.
func (r *SQLiteRepository) DeletePendingTaskRecordsForSource(ctx context.Context, sourceType model.SourceType, sourceID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM task_records WHERE source_type = ? AND source_id = ? AND status = ?`,
		string(sourceType), sourceID, string(model.TaskStatusPending),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) queryTaskRecords(ctx context.Context, query string, args ...any) ([]model.TaskRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.TaskRecord, 0)
	for rows.Next() {
		rec, scanErr := scanTaskRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListHolidays(ctx context.Context) ([]model.Holiday, error) {
	return r.queryHolidays(ctx, `SELECT date, type, name FROM holidays ORDER BY date ASC`)
}

func (r *SQLiteRepository) ListHolidaysBetween(ctx context.Context, from, to string) ([]model.Holiday, error) {
	return r.queryHolidays(ctx, `SELECT date, type, name FROM holidays WHERE date >= ? AND date <= ? ORDER BY date ASC`, from, to)
}

// UpsertHolidays writes every entry in one transaction. The last write for a
// date wins.
func (r *SQLiteRepository) UpsertHolidays(ctx context.Context, in []model.Holiday) error {
	if len(in) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO holidays (date, type, name) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET type = excluded.type, name = excluded.name`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, h := range in {
		if _, err := stmt.ExecContext(ctx, h.Date, string(h.Type), h.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert holiday %s: %w", h.Date, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) queryHolidays(ctx context.Context, query string, args ...any) ([]model.Holiday, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Holiday, 0)
	for rows.Next() {
		var h model.Holiday
		var typ string
		if err := rows.Scan(&h.Date, &typ, &h.Name); err != nil {
			return nil, err
		}
		h.Type = model.HolidayType(typ)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, content, image_paths, linked_task_ids FROM posts ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Post, 0)
	for rows.Next() {
		p, scanErr := scanPost(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreatePost(ctx context.Context, in model.Post) (int64, error) {
	images, err := json.Marshal(nonNilStrings(in.ImagePaths))
	if err != nil {
		return 0, err
	}
	links, err := json.Marshal(nonNilIDs(in.LinkedTaskIDs))
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO posts (created_at, content, image_paths, linked_task_ids) VALUES (?, ?, ?, ?)`,
		mustTime(in.CreatedAt), in.Content, string(images), string(links),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) DeletePost(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilIDs(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			sql += " LIMIT -1"
		}
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

type scanner interface {
	Scan(dest ...any) error
}

// scanShiftRule tolerates a malformed shift_config: the rule loads with an
// empty configuration so it expands to nothing instead of failing the list.
// An unreadable start_date is reported as ErrMalformedRow.
func (r *SQLiteRepository) scanShiftRule(s scanner) (model.ShiftRule, error) {
	var out model.ShiftRule
	var start string
	var cfg string
	var skip int
	var level int
	if err := s.Scan(&out.ID, &out.Title, &start, &out.CycleDays, &cfg, &skip, &level); err != nil {
		return model.ShiftRule{}, err
	}
	startAt, err := parseRequiredTime(start)
	if err != nil {
		return model.ShiftRule{}, fmt.Errorf("%w: shift rule %d start_date: %v", ErrMalformedRow, out.ID, err)
	}
	parsed, err := model.ParseShiftConfig(cfg)
	if err != nil {
		r.logger.Warn("malformed shift config",
			slog.Int64("rule_id", out.ID),
			slog.String("error", err.Error()),
		)
		parsed = []model.DayConfig{}
	}
	out.StartDate = startAt
	out.ShiftConfig = parsed
	out.SkipHoliday = skip == 1
	out.DefaultReminderLevel = model.ReminderLevel(level)
	return out, nil
}

func scanAnniversary(s scanner) (model.Anniversary, error) {
	var out model.Anniversary
	var level int
	var reminder sql.NullString
	if err := s.Scan(&out.ID, &out.Title, &out.TargetDate, &level, &reminder); err != nil {
		return model.Anniversary{}, err
	}
	reminderAt, err := parseNullableTime(reminder)
	if err != nil {
		return model.Anniversary{}, fmt.Errorf("%w: anniversary %d reminder_time: %v", ErrMalformedRow, out.ID, err)
	}
	out.ReminderLevel = model.ReminderLevel(level)
	out.ReminderTime = reminderAt
	return out, nil
}

func scanTaskRecord(s scanner) (model.TaskRecord, error) {
	var out model.TaskRecord
	var sourceType, status string
	var level int
	if err := s.Scan(&out.ID, &sourceType, &out.SourceID, &out.Title, &out.TargetDate, &out.TriggerTimestamp, &level, &status, &out.TargetPkgName); err != nil {
		return model.TaskRecord{}, err
	}
	parsed, err := model.ParseTaskStatus(status)
	if err != nil {
		return model.TaskRecord{}, err
	}
	out.SourceType = model.SourceType(sourceType)
	out.ReminderLevel = model.ReminderLevel(level)
	out.Status = parsed
	return out, nil
}

func scanPost(s scanner) (model.Post, error) {
	var out model.Post
	var created, images, links string
	if err := s.Scan(&out.ID, &created, &out.Content, &images, &links); err != nil {
		return model.Post{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.Post{}, err
	}
	out.CreatedAt = createdAt
	if err := json.Unmarshal([]byte(images), &out.ImagePaths); err != nil {
		return model.Post{}, fmt.Errorf("decode image paths: %w", err)
	}
	if err := json.Unmarshal([]byte(links), &out.LinkedTaskIDs); err != nil {
		return model.Post{}, fmt.Errorf("decode linked tasks: %w", err)
	}
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
