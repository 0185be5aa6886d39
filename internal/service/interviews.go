package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/shiftd/internal/assist"
	"github.com/sandeepkv93/shiftd/internal/storage"
)

// ImportResult is what the mail pass reports back to the user.
type ImportResult struct {
	Success bool
	Message string
	Summary string
	Created int
	Skipped int
}

// ImportInterviews reads today's mail, stores one reminder per interview it
// finds and registers the new ones. Failures are reported, not returned.
func (s *Service) ImportInterviews(ctx context.Context) ImportResult {
	if s.assistant == nil || !s.assistant.Configured() {
		return ImportResult{Message: assist.ErrNotConfigured.Error()}
	}
	rep, err := s.assistant.Run(ctx, true)
	if err != nil {
		s.logger.WarnContext(ctx, "mail import failed", slog.String("error", err.Error()))
		return ImportResult{Summary: rep.Summary, Message: "mail import failed: " + err.Error()}
	}

	res := ImportResult{Success: true, Summary: rep.Summary}
	for _, draft := range rep.Tasks {
		id, err := s.repo.InsertTaskRecord(ctx, draft)
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			res.Skipped++
			continue
		case err != nil:
			s.logger.WarnContext(ctx, "insert interview task failed",
				slog.String("title", draft.Title),
				slog.String("error", err.Error()),
			)
			res.Skipped++
			continue
		}
		draft.ID = id
		res.Created++
		if _, err := s.dispatcher.RegisterTask(ctx, draft); err != nil {
			s.logger.WarnContext(ctx, "register interview task failed",
				slog.Int64("task_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	res.Message = fmt.Sprintf("read %d emails, created %d interview reminders", rep.Emails, res.Created)
	if res.Created > 0 {
		s.notifyChanged()
	}
	return res
}
