package expand

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sandeepkv93/shiftd/internal/model"
)

var ErrInvalidWindow = errors.New("expand: window end before start")

// Window is an inclusive range of calendar days in Loc.
type Window struct {
	Start time.Time
	End   time.Time
	Loc   *time.Location
}

// NewWindow covers [today, today+daysAhead] in loc.
func NewWindow(now time.Time, daysAhead int, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	start := model.DateOf(now, loc)
	return Window{Start: start, End: start.AddDate(0, 0, daysAhead), Loc: loc}
}

// WindowBetween builds a window from two calendar days.
func WindowBetween(start, end time.Time, loc *time.Location) (Window, error) {
	if loc == nil {
		loc = time.Local
	}
	w := Window{Start: model.DateOf(start, loc), End: model.DateOf(end, loc), Loc: loc}
	if w.End.Before(w.Start) {
		return Window{}, ErrInvalidWindow
	}
	return w, nil
}

func (w Window) location() *time.Location {
	if w.Loc == nil {
		return time.Local
	}
	return w.Loc
}

func (w Window) Contains(day time.Time) bool {
	d := model.EpochDay(day)
	return d >= model.EpochDay(w.Start) && d <= model.EpochDay(w.End)
}

// HolidayReader is the slice of the repository the engine reads.
type HolidayReader interface {
	ListHolidaysBetween(ctx context.Context, from, to string) ([]model.Holiday, error)
}

type Engine struct {
	holidays HolidayReader
	logger   *slog.Logger
}

func NewEngine(holidays HolidayReader, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{holidays: holidays, logger: logger}
}

// ShiftRule expands rule over w, reading rest days only when the rule skips
// holidays. A failed holiday read expands without exclusions.
func (e *Engine) ShiftRule(ctx context.Context, rule model.ShiftRule, w Window) []model.TaskRecord {
	var rest map[string]bool
	if rule.SkipHoliday && e.holidays != nil {
		list, err := e.holidays.ListHolidaysBetween(ctx, model.FormatDate(w.Start), model.FormatDate(w.End))
		if err != nil {
			e.logger.WarnContext(ctx, "holiday read failed, expanding without exclusions",
				slog.Int64("source_id", rule.ID),
				slog.String("error", err.Error()),
			)
		} else {
			rest = model.RestDays(list)
		}
	}
	return ExpandShiftRule(rule, w, rest, e.logger)
}

func (e *Engine) Anniversary(ctx context.Context, ann model.Anniversary, w Window) []model.TaskRecord {
	drafts, err := ExpandAnniversary(ann, w)
	if err != nil {
		e.logger.WarnContext(ctx, "anniversary skipped",
			slog.Int64("source_id", ann.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return drafts
}

// ExpandShiftRule emits one pending draft per configured time slot on every
// day of w whose cycle index has a day config. Days in rest are skipped. A slot
// with an unparsable time is skipped on its own.
func ExpandShiftRule(rule model.ShiftRule, w Window, rest map[string]bool, logger *slog.Logger) []model.TaskRecord {
	if rule.CycleDays <= 0 || len(rule.ShiftConfig) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc := w.location()
	base := model.DateOf(rule.StartDate, loc)
	out := make([]model.TaskRecord, 0)
	for d := model.DateOf(w.Start, loc); !d.After(model.DateOf(w.End, loc)); d = d.AddDate(0, 0, 1) {
		date := model.FormatDate(d)
		if rest[date] {
			continue
		}
		dc, ok := rule.DayConfigFor(model.DayIndex(base, d, rule.CycleDays))
		if !ok {
			continue
		}
		for _, slot := range dc.TimeSlots {
			hour, minute, err := slot.Clock()
			if err != nil {
				logger.Warn("skipping malformed time slot",
					slog.Int64("source_id", rule.ID),
					slog.String("date", date),
					slog.String("time", slot.Time),
				)
				continue
			}
			at := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
			out = append(out, model.TaskRecord{
				SourceType:       model.SourceShiftRule,
				SourceID:         rule.ID,
				Title:            rule.Title,
				TargetDate:       date,
				TriggerTimestamp: at.UnixMilli(),
				ReminderLevel:    dc.ReminderLevel,
				Status:           model.TaskStatusPending,
				TargetPkgName:    slot.TargetPkgName,
			})
		}
	}
	return out
}

// ExpandAnniversary emits one draft for each year touched by w whose
// occurrence lands inside w. The window's start year and the next are always
// considered so a short window across new year still matches.
func ExpandAnniversary(ann model.Anniversary, w Window) ([]model.TaskRecord, error) {
	loc := w.location()
	first := w.Start.Year()
	last := w.End.Year()
	if last < first+1 {
		last = first + 1
	}
	hour, minute := ann.Clock(loc)
	out := make([]model.TaskRecord, 0, 1)
	for year := first; year <= last; year++ {
		day, err := ann.OccurrenceIn(year, loc)
		if err != nil {
			return nil, err
		}
		if !w.Contains(day) {
			continue
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		out = append(out, model.TaskRecord{
			SourceType:       model.SourceAnniversary,
			SourceID:         ann.ID,
			Title:            AnniversaryTitle(ann.Title),
			TargetDate:       model.FormatDate(day),
			TriggerTimestamp: at.UnixMilli(),
			ReminderLevel:    ann.ReminderLevel,
			Status:           model.TaskStatusPending,
		})
	}
	return out, nil
}

func AnniversaryTitle(title string) string {
	if title == "" {
		return "Anniversary reminder"
	}
	return "Anniversary reminder: " + title
}
