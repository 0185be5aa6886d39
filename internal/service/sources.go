package service

import (
	"context"
	"log/slog"

	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/reconcile"
)

func (s *Service) ShiftRules(ctx context.Context) ([]model.ShiftRule, error) {
	return s.repo.ListShiftRules(ctx)
}

func (s *Service) ShiftRule(ctx context.Context, id int64) (model.ShiftRule, error) {
	return s.repo.GetShiftRule(ctx, id)
}

// SaveShiftRule validates and stores the rule, rebuilds its records over the
// rolling window and re-registers pending wake-ups.
func (s *Service) SaveShiftRule(ctx context.Context, rule model.ShiftRule) (model.ShiftRule, reconcile.Report, error) {
	if err := rule.Validate(); err != nil {
		return model.ShiftRule{}, reconcile.Report{}, err
	}
	id, err := s.repo.UpsertShiftRule(ctx, rule)
	if err != nil {
		return model.ShiftRule{}, reconcile.Report{}, err
	}
	rule.ID = id

	s.cancelPending(ctx, model.SourceShiftRule, id)
	rep := s.reconciler.RegenerateShiftRule(ctx, rule, s.reconciler.Window(s.daysAhead))
	s.dispatcher.RegisterAllPending(ctx)
	s.notifyChanged()
	return rule, rep, nil
}

func (s *Service) DeleteShiftRule(ctx context.Context, id int64) error {
	if err := s.repo.DeleteShiftRule(ctx, id); err != nil {
		return err
	}
	s.removeSource(ctx, model.SourceShiftRule, id)
	return nil
}

func (s *Service) Anniversaries(ctx context.Context) ([]model.Anniversary, error) {
	return s.repo.ListAnniversaries(ctx)
}

func (s *Service) Anniversary(ctx context.Context, id int64) (model.Anniversary, error) {
	return s.repo.GetAnniversary(ctx, id)
}

func (s *Service) SaveAnniversary(ctx context.Context, ann model.Anniversary) (model.Anniversary, reconcile.Report, error) {
	if err := ann.Validate(); err != nil {
		return model.Anniversary{}, reconcile.Report{}, err
	}
	id, err := s.repo.UpsertAnniversary(ctx, ann)
	if err != nil {
		return model.Anniversary{}, reconcile.Report{}, err
	}
	ann.ID = id

	s.cancelPending(ctx, model.SourceAnniversary, id)
	rep := s.reconciler.RegenerateAnniversary(ctx, ann, s.reconciler.Window(s.daysAhead))
	s.dispatcher.RegisterAllPending(ctx)
	s.notifyChanged()
	return ann, rep, nil
}

func (s *Service) DeleteAnniversary(ctx context.Context, id int64) error {
	if err := s.repo.DeleteAnniversary(ctx, id); err != nil {
		return err
	}
	s.removeSource(ctx, model.SourceAnniversary, id)
	return nil
}

func (s *Service) removeSource(ctx context.Context, sourceType model.SourceType, id int64) {
	s.cancelPending(ctx, sourceType, id)
	s.reconciler.RemoveSource(ctx, sourceType, id)
	s.dispatcher.RegisterAllPending(ctx)
	s.notifyChanged()
}

// cancelPending drops the wake-ups of a source's pending records before they
// are deleted, so no registration outlives its record.
func (s *Service) cancelPending(ctx context.Context, sourceType model.SourceType, id int64) {
	tasks, err := s.repo.GetTaskRecordsForSource(ctx, sourceType, id)
	if err != nil {
		s.logger.WarnContext(ctx, "load source tasks for cancel failed",
			slog.String("source_type", string(sourceType)),
			slog.Int64("source_id", id),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, task := range tasks {
		if task.IsPending() {
			s.dispatcher.CancelTask(ctx, task)
		}
	}
}
