package storage

import (
	"context"
	"errors"

	"github.com/sandeepkv93/shiftd/internal/model"
)

var (
	ErrNotFound  = errors.New("storage: not found")
	ErrDuplicate = errors.New("storage: duplicate task record")
	// ErrMalformedRow marks a stored row whose columns cannot be decoded.
	ErrMalformedRow = errors.New("storage: malformed row")
)

type TaskListFilter struct {
	Status     model.TaskStatus
	SourceType model.SourceType
	From       string
	To         string
	Limit      int
	Offset     int
}

type Repository interface {
	ListShiftRules(ctx context.Context) ([]model.ShiftRule, error)
	GetShiftRule(ctx context.Context, id int64) (model.ShiftRule, error)
	UpsertShiftRule(ctx context.Context, in model.ShiftRule) (int64, error)
	DeleteShiftRule(ctx context.Context, id int64) error

	ListAnniversaries(ctx context.Context) ([]model.Anniversary, error)
	GetAnniversary(ctx context.Context, id int64) (model.Anniversary, error)
	UpsertAnniversary(ctx context.Context, in model.Anniversary) (int64, error)
	DeleteAnniversary(ctx context.Context, id int64) error

	ListTaskRecords(ctx context.Context, filter TaskListFilter) ([]model.TaskRecord, error)
	GetTaskRecord(ctx context.Context, id int64) (model.TaskRecord, error)
	GetTaskRecordsForDate(ctx context.Context, date string) ([]model.TaskRecord, error)
	GetTaskRecordsForSource(ctx context.Context, sourceType model.SourceType, sourceID int64) ([]model.TaskRecord, error)
	InsertTaskRecord(ctx context.Context, in model.TaskRecord) (int64, error)
	UpdateTaskRecord(ctx context.Context, in model.TaskRecord) error
	DeleteTaskRecord(ctx context.Context, id int64) error
	DeletePendingTaskRecordsForSource(ctx context.Context, sourceType model.SourceType, sourceID int64) (int64, error)

	ListHolidays(ctx context.Context) ([]model.Holiday, error)
	ListHolidaysBetween(ctx context.Context, from, to string) ([]model.Holiday, error)
	UpsertHolidays(ctx context.Context, in []model.Holiday) error

	ListPosts(ctx context.Context) ([]model.Post, error)
	CreatePost(ctx context.Context, in model.Post) (int64, error)
	DeletePost(ctx context.Context, id int64) error
}
