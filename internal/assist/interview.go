package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/shiftd/internal/model"
)

const (
	maxExtractEmails   = 15
	maxExtractChars    = 1500
	maxSummarizeEmails = 20
	maxSummarizeChars  = 2000
)

var ErrUnparseableReply = errors.New("assist: model reply is not a JSON interview list")

// Interview is one interview invitation found in mail.
type Interview struct {
	Company  string `json:"company"`
	Position string `json:"position"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Location string `json:"location"`
	Notes    string `json:"notes"`
}

func (i Interview) blank() bool {
	return strings.TrimSpace(i.Company) == "" && strings.TrimSpace(i.Date) == ""
}

func (i Interview) Title() string {
	return strings.TrimSpace("Interview - " + strings.TrimSpace(i.Company+" "+i.Position))
}

// Extractor turns mail into summaries and interview lists with a Generator.
type Extractor struct {
	gen    Generator
	logger *slog.Logger
}

func NewExtractor(gen Generator, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{gen: gen, logger: logger}
}

func (e *Extractor) Summarize(ctx context.Context, emails []Email) (string, error) {
	if len(emails) == 0 {
		return "No unread mail today.", nil
	}
	var sb strings.Builder
	sb.WriteString("Summarize the following emails in a short bullet list. ")
	sb.WriteString("Call out anything that needs action today.\n\n")
	writeEmails(&sb, emails, maxSummarizeEmails, maxSummarizeChars)
	return e.gen.GenerateText(ctx, sb.String())
}

func (e *Extractor) ExtractInterviews(ctx context.Context, emails []Email) ([]Interview, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	sb.WriteString("Find every job interview invitation in the emails below. ")
	sb.WriteString("Reply with only a JSON array. Each element has the fields ")
	sb.WriteString(`"company", "position", "date" (YYYY-MM-DD), "time" (HH:mm), "location" and "notes". `)
	sb.WriteString("Reply with [] when there are none.\n\n")
	writeEmails(&sb, emails, maxExtractEmails, maxExtractChars)

	reply, err := e.gen.GenerateText(ctx, sb.String())
	if err != nil {
		return nil, err
	}
	out, err := ParseInterviews(reply)
	if err != nil {
		e.logger.WarnContext(ctx, "interview extraction reply rejected",
			slog.Int("reply_len", len(reply)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return out, nil
}

func writeEmails(sb *strings.Builder, emails []Email, maxEmails, maxChars int) {
	for i, m := range emails {
		if i >= maxEmails {
			break
		}
		body := m.Body
		if body == "" {
			body = m.Snippet
		}
		if r := []rune(body); len(r) > maxChars {
			body = string(r[:maxChars])
		}
		fmt.Fprintf(sb, "--- Email %d ---\nFrom: %s\nSubject: %s\n%s\n\n", i+1, m.From, m.Subject, body)
	}
}

// ParseInterviews decodes a model reply, tolerating markdown code fences, and
// drops entries with neither a company nor a date.
func ParseInterviews(reply string) ([]Interview, error) {
	text := strings.TrimSpace(reply)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var raw []Interview
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableReply, err)
	}
	out := make([]Interview, 0, len(raw))
	for _, iv := range raw {
		if iv.blank() {
			continue
		}
		out = append(out, iv)
	}
	return out, nil
}

// ParseInterviewClock reads loose clock strings such as "14:00", "9",
// "2pm" or "下午2点". Anything unreadable falls back to 09:00.
func ParseInterviewClock(raw string) (hour, minute int) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 9, 0
	}

	pm := false
	for _, marker := range []string{"下午", "晚上", "pm", "p.m."} {
		if strings.Contains(s, marker) {
			pm = true
			s = strings.ReplaceAll(s, marker, "")
		}
	}
	for _, marker := range []string{"上午", "早上", "am", "a.m."} {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.ReplaceAll(s, "点半", ":30")
	s = strings.ReplaceAll(s, "点", ":")
	s = strings.ReplaceAll(s, "分", "")
	s = strings.TrimSuffix(strings.TrimSpace(s), ":")

	h, m, ok := splitClock(s)
	if !ok {
		return 9, 0
	}
	if pm && h < 12 {
		h += 12
	}
	return h, m
}

func splitClock(s string) (int, int, bool) {
	hs, ms, found := strings.Cut(s, ":")
	h, err := strconv.Atoi(strings.TrimSpace(hs))
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	if !found || strings.TrimSpace(ms) == "" {
		return h, 0, true
	}
	if len(ms) > 2 {
		ms = ms[:2]
	}
	m, err := strconv.Atoi(strings.TrimSpace(ms))
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// InterviewTask converts an interview into a silent ad-hoc reminder. A
// missing or unreadable date means today.
func InterviewTask(iv Interview, now time.Time, loc *time.Location) model.TaskRecord {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	day, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(iv.Date), loc)
	if err != nil {
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	}
	h, m := ParseInterviewClock(iv.Time)
	at := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)

	return model.TaskRecord{
		SourceType:       model.SourceGmailInterview,
		SourceID:         0,
		Title:            iv.Title(),
		TargetDate:       at.Format(model.DateLayout),
		TriggerTimestamp: at.UnixMilli(),
		ReminderLevel:    model.ReminderSilent,
		Status:           model.TaskStatusPending,
	}
}
