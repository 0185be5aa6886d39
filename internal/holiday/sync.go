package holiday

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/shiftd/internal/model"
)

type Writer interface {
	UpsertHolidays(ctx context.Context, in []model.Holiday) error
}

// Result is the outcome surfaced to the user after a sync.
type Result struct {
	Success  bool
	Message  string
	Imported int
	Err      error
}

type Syncer struct {
	provider Provider
	store    Writer
	now      func() time.Time
	logger   *slog.Logger
}

func NewSyncer(provider Provider, store Writer, now func() time.Time, logger *slog.Logger) *Syncer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{provider: provider, store: store, now: now, logger: logger}
}

func (s *Syncer) SyncYear(ctx context.Context, year int) Result {
	list, err := s.provider.FetchYear(ctx, year)
	if err != nil {
		return s.failure(ctx, year, err)
	}
	return s.save(ctx, year, list)
}

func (s *Syncer) save(ctx context.Context, year int, list []model.Holiday) Result {
	if err := s.store.UpsertHolidays(ctx, list); err != nil {
		return s.failure(ctx, year, fmt.Errorf("store holidays: %w", err))
	}
	s.logger.InfoContext(ctx, "holiday data synced",
		slog.Int("year", year),
		slog.Int("count", len(list)),
	)
	return Result{
		Success:  true,
		Message:  fmt.Sprintf("synced %d holiday entries for %d", len(list), year),
		Imported: len(list),
	}
}

func (s *Syncer) failure(ctx context.Context, year int, err error) Result {
	msg := fmt.Sprintf("holiday sync for %d failed: %v", year, err)
	if errors.Is(err, ErrNotPublished) || errors.Is(err, ErrEmpty) {
		s.logger.WarnContext(ctx, "holiday year unavailable", slog.Int("year", year), slog.String("error", err.Error()))
	} else {
		s.logger.ErrorContext(ctx, "holiday sync failed", slog.Int("year", year), slog.String("error", err.Error()))
	}
	return Result{Success: false, Message: msg, Err: err}
}

// Years is the range synced by SyncRange: the previous, current and next year.
func (s *Syncer) Years() []int {
	y := s.now().Year()
	return []int{y - 1, y, y + 1}
}

// SyncRange fetches every year in Years concurrently and stores each one that
// arrived. It succeeds when anything was imported.
func (s *Syncer) SyncRange(ctx context.Context) Result {
	years := s.Years()
	fetched := make([][]model.Holiday, len(years))
	fetchErrs := make([]error, len(years))

	g, gctx := errgroup.WithContext(ctx)
	for i, year := range years {
		g.Go(func() error {
			list, err := s.provider.FetchYear(gctx, year)
			fetched[i] = list
			fetchErrs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	failures := make([]string, 0)
	var errs []error
	for i, year := range years {
		var res Result
		if fetchErrs[i] != nil {
			res = s.failure(ctx, year, fetchErrs[i])
		} else {
			res = s.save(ctx, year, fetched[i])
		}
		if res.Success {
			total += res.Imported
			continue
		}
		failures = append(failures, res.Message)
		errs = append(errs, res.Err)
	}

	yearList := fmt.Sprintf("%d-%d", years[0], years[len(years)-1])
	switch {
	case len(failures) == 0:
		return Result{Success: true, Imported: total, Message: fmt.Sprintf("synced %s holiday data, %d entries", yearList, total)}
	case total > 0:
		return Result{
			Success:  true,
			Imported: total,
			Message:  fmt.Sprintf("partially synced (%d entries); failures: %s", total, strings.Join(failures, "; ")),
			Err:      errors.Join(errs...),
		}
	default:
		return Result{
			Success: false,
			Message: "holiday sync failed: " + strings.Join(failures, "; "),
			Err:     errors.Join(errs...),
		}
	}
}
