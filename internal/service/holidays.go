package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/shiftd/internal/holiday"
	"github.com/sandeepkv93/shiftd/internal/model"
)

type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncSucceeded
	SyncFailed
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "syncing"
	case SyncSucceeded:
		return "success"
	case SyncFailed:
		return "error"
	default:
		return "idle"
	}
}

type SyncStatus struct {
	State    SyncState
	Message  string
	Imported int
	At       time.Time
}

func (s *Service) SyncStatus() SyncStatus {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return s.syncStatus
}

func (s *Service) setSyncStatus(st SyncStatus) {
	s.syncMu.Lock()
	s.syncStatus = st
	s.syncMu.Unlock()
	s.notifyChanged()
}

// SyncHolidays imports holiday data for the current year and its
// neighbours. Anything imported triggers a full recovery pass so skip-holiday
// rules pick up the new exclusions.
func (s *Service) SyncHolidays(ctx context.Context) (holiday.Result, error) {
	if s.holidays == nil {
		return holiday.Result{}, ErrHolidaysDisabled
	}
	s.syncMu.Lock()
	if s.syncStatus.State == SyncRunning {
		s.syncMu.Unlock()
		return holiday.Result{}, ErrSyncInProgress
	}
	s.syncStatus = SyncStatus{State: SyncRunning, Message: "syncing holiday data", At: s.now()}
	s.syncMu.Unlock()
	s.notifyChanged()

	res := s.holidays.SyncRange(ctx)
	if !res.Success {
		s.setSyncStatus(SyncStatus{State: SyncFailed, Message: res.Message, At: s.now()})
		return res, nil
	}
	s.setSyncStatus(SyncStatus{State: SyncSucceeded, Message: res.Message, Imported: res.Imported, At: s.now()})
	s.logger.InfoContext(ctx, "holiday sync finished", slog.Int("imported", res.Imported))
	s.Recover(ctx, "holiday_sync")
	return res, nil
}

func (s *Service) Holidays(ctx context.Context, from, to string) []model.Holiday {
	list, err := s.repo.ListHolidaysBetween(ctx, from, to)
	if err != nil {
		s.logger.ErrorContext(ctx, "load holidays failed", slog.String("error", err.Error()))
		return nil
	}
	return list
}
