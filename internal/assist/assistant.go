package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/shiftd/internal/model"
)

var ErrNotConfigured = errors.New("assist: mail assistant is not configured")

// Report is the outcome of one mail pass.
type Report struct {
	Emails     int
	Summary    string
	Interviews []Interview
	Tasks      []model.TaskRecord
}

// Assistant reads today's unread mail, summarizes it and drafts interview
// reminders. Persisting the drafts is left to the caller.
type Assistant struct {
	mail      MailSource
	extractor *Extractor
	now       func() time.Time
	logger    *slog.Logger

	mu  sync.Mutex
	loc *time.Location
}

func NewAssistant(mail MailSource, gen Generator, loc *time.Location, now func() time.Time, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	var ex *Extractor
	if gen != nil {
		ex = NewExtractor(gen, logger)
	}
	return &Assistant{mail: mail, extractor: ex, now: now, loc: loc, logger: logger}
}

// SetLocation changes the zone interview times are read in.
func (a *Assistant) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	a.mu.Lock()
	a.loc = loc
	a.mu.Unlock()
}

func (a *Assistant) location() *time.Location {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loc
}

func (a *Assistant) Configured() bool {
	return a != nil && a.mail != nil && a.extractor != nil
}

func (a *Assistant) Run(ctx context.Context, summarize bool) (Report, error) {
	if !a.Configured() {
		return Report{}, ErrNotConfigured
	}
	emails, err := a.mail.FetchTodayUnread(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetch mail: %w", err)
	}
	rep := Report{Emails: len(emails)}
	if summarize {
		summary, err := a.extractor.Summarize(ctx, emails)
		if err != nil {
			return rep, fmt.Errorf("summarize mail: %w", err)
		}
		rep.Summary = summary
	}

	interviews, err := a.extractor.ExtractInterviews(ctx, emails)
	if err != nil {
		return rep, fmt.Errorf("extract interviews: %w", err)
	}
	rep.Interviews = interviews
	now, loc := a.now(), a.location()
	for _, iv := range interviews {
		rep.Tasks = append(rep.Tasks, InterviewTask(iv, now, loc))
	}
	a.logger.InfoContext(ctx, "mail pass finished",
		slog.Int("emails", rep.Emails),
		slog.Int("interviews", len(rep.Interviews)),
	)
	return rep, nil
}
