package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sandeepkv93/shiftd/internal/holiday"
	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/reconcile"
	"github.com/sandeepkv93/shiftd/internal/service"
	"github.com/sandeepkv93/shiftd/internal/storage"
)

type fakeBackend struct {
	tasks      map[string][]model.TaskRecord
	acked      []int64
	rules      []model.ShiftRule
	anns       []model.Anniversary
	posts      []model.Post
	syncResult holiday.Result
	syncErr    error
}

func (f *fakeBackend) Location() *time.Location { return time.UTC }

func (f *fakeBackend) TasksForDate(_ context.Context, date string) []model.TaskRecord {
	return f.tasks[date]
}

func (f *fakeBackend) UpcomingTasks(context.Context) []model.TaskRecord {
	var out []model.TaskRecord
	for _, list := range f.tasks {
		out = append(out, list...)
	}
	return out
}

func (f *fakeBackend) Acknowledge(_ context.Context, id int64) error {
	for _, list := range f.tasks {
		for _, t := range list {
			if t.ID == id {
				f.acked = append(f.acked, id)
				return nil
			}
		}
	}
	return storage.ErrNotFound
}

func (f *fakeBackend) ShiftRules(context.Context) ([]model.ShiftRule, error) { return f.rules, nil }

func (f *fakeBackend) SaveShiftRule(_ context.Context, rule model.ShiftRule) (model.ShiftRule, reconcile.Report, error) {
	if err := rule.Validate(); err != nil {
		return model.ShiftRule{}, reconcile.Report{}, err
	}
	rule.ID = int64(len(f.rules) + 1)
	f.rules = append(f.rules, rule)
	return rule, reconcile.Report{Inserted: 3}, nil
}

func (f *fakeBackend) DeleteShiftRule(_ context.Context, id int64) error {
	for i, r := range f.rules {
		if r.ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeBackend) Anniversaries(context.Context) ([]model.Anniversary, error) { return f.anns, nil }

func (f *fakeBackend) SaveAnniversary(_ context.Context, ann model.Anniversary) (model.Anniversary, reconcile.Report, error) {
	if err := ann.Validate(); err != nil {
		return model.Anniversary{}, reconcile.Report{}, err
	}
	ann.ID = int64(len(f.anns) + 1)
	f.anns = append(f.anns, ann)
	return ann, reconcile.Report{Inserted: 1}, nil
}

func (f *fakeBackend) DeleteAnniversary(context.Context, int64) error { return storage.ErrNotFound }

func (f *fakeBackend) SyncHolidays(context.Context) (holiday.Result, error) {
	return f.syncResult, f.syncErr
}

func (f *fakeBackend) Feed(context.Context) []model.FeedItem {
	return model.BuildFeed(f.posts, nil, time.Now())
}

func (f *fakeBackend) CreatePost(_ context.Context, content string, images []string, linked []int64) (model.Post, error) {
	if content == " " {
		return model.Post{}, service.ErrEmptyContent
	}
	p := model.Post{ID: int64(len(f.posts) + 1), Content: content, CreatedAt: time.Now(), ImagePaths: images, LinkedTaskIDs: linked}
	f.posts = append(f.posts, p)
	return p, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *fakeBackend) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	backend := &fakeBackend{tasks: map[string][]model.TaskRecord{
		"2024-06-01": {{
			ID:               5,
			SourceType:       model.SourceShiftRule,
			SourceID:         1,
			TargetDate:       "2024-06-01",
			TriggerTimestamp: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC).UnixMilli(),
			ReminderLevel:    model.ReminderAlarm,
			Status:           model.TaskStatusPending,
		}},
	}}
	return NewRouter(backend, nil), backend
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthzSetsRequestID(t *testing.T) {
	r, _ := setupRouter(t)
	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestListTasksByDate(t *testing.T) {
	r, _ := setupRouter(t)
	w := doJSON(t, r, http.MethodGet, "/v1/tasks?date=2024-06-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Tasks []taskDTO `json:"tasks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Title != "Shift check-in reminder" || resp.Tasks[0].TriggerAt != "2024-06-01T08:00:00Z" {
		t.Fatalf("unexpected tasks: %#v", resp.Tasks)
	}

	if w := doJSON(t, r, http.MethodGet, "/v1/tasks?date=june", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", w.Code)
	}
}

func TestAcknowledgeTask(t *testing.T) {
	r, backend := setupRouter(t)
	if w := doJSON(t, r, http.MethodPost, "/v1/tasks/5/ack", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(backend.acked) != 1 || backend.acked[0] != 5 {
		t.Fatalf("expected task 5 acknowledged, got %#v", backend.acked)
	}
	if w := doJSON(t, r, http.MethodPost, "/v1/tasks/99/ack", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/v1/tasks/abc/ack", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSaveShiftRuleAppliesConfigDefaults(t *testing.T) {
	r, backend := setupRouter(t)
	body := map[string]any{
		"title":      "Rotation",
		"start_date": "2024-06-01",
		"cycle_days": 3,
		"shift_config": []map[string]any{
			{"dayIndex": 0, "timeSlots": []map[string]any{{"time": "08:00"}}},
		},
	}
	w := doJSON(t, r, http.MethodPost, "/v1/shift-rules", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(backend.rules) != 1 || backend.rules[0].ShiftConfig[0].ReminderLevel != model.ReminderAlarm {
		t.Fatalf("expected stored rule with default alarm level, got %#v", backend.rules)
	}

	list := doJSON(t, r, http.MethodGet, "/v1/shift-rules", nil)
	var resp struct {
		Rules []shiftRuleDTO `json:"shift_rules"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Rules) != 1 || resp.Rules[0].StartDate != "2024-06-01" {
		t.Fatalf("unexpected listing: %#v", resp.Rules)
	}
}

func TestSaveShiftRuleRejectsBadInput(t *testing.T) {
	r, _ := setupRouter(t)
	cases := []map[string]any{
		{"start_date": "2024-06-01", "cycle_days": 3},
		{"title": "x", "start_date": "06/01/2024", "cycle_days": 3},
		{"title": "x", "start_date": "2024-06-01", "cycle_days": 2, "shift_config": []map[string]any{{"dayIndex": 5}}},
		{"title": "x", "start_date": "2024-06-01", "cycle_days": 2, "shift_config": "nope"},
		{"title": "x", "start_date": "2024-06-01", "cycle_days": 2, "shift_config": []map[string]any{{"dayIndex": 0}, {"dayIndex": 0}}},
	}
	for i, body := range cases {
		if w := doJSON(t, r, http.MethodPost, "/v1/shift-rules", body); w.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d: %s", i, w.Code, w.Body.String())
		}
	}
}

func TestDeleteShiftRule(t *testing.T) {
	r, backend := setupRouter(t)
	backend.rules = []model.ShiftRule{{ID: 1, Title: "x"}}
	if w := doJSON(t, r, http.MethodDelete, "/v1/shift-rules/1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodDelete, "/v1/shift-rules/1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSaveAnniversaryWithClock(t *testing.T) {
	r, backend := setupRouter(t)
	w := doJSON(t, r, http.MethodPost, "/v1/anniversaries", map[string]any{
		"title":         "Wedding",
		"target_date":   "2015-10-03",
		"reminder_time": "18:45",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if h, m := backend.anns[0].Clock(time.UTC); h != 18 || m != 45 {
		t.Fatalf("expected 18:45, got %02d:%02d", h, m)
	}
	if backend.anns[0].ReminderLevel != model.ReminderSilent {
		t.Fatalf("expected silent default, got %v", backend.anns[0].ReminderLevel)
	}

	bad := doJSON(t, r, http.MethodPost, "/v1/anniversaries", map[string]any{
		"title":         "Wedding",
		"target_date":   "2015-10-03",
		"reminder_time": "25:00",
	})
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.Code)
	}
}

func TestSyncHolidaysStatusMapping(t *testing.T) {
	r, backend := setupRouter(t)
	backend.syncResult = holiday.Result{Success: true, Imported: 12, Message: "ok"}
	if w := doJSON(t, r, http.MethodPost, "/v1/holidays/sync", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	backend.syncResult = holiday.Result{Success: false, Message: "year not published"}
	if w := doJSON(t, r, http.MethodPost, "/v1/holidays/sync", nil); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	backend.syncErr = service.ErrHolidaysDisabled
	if w := doJSON(t, r, http.MethodPost, "/v1/holidays/sync", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	backend.syncErr = errors.New("boom")
	if w := doJSON(t, r, http.MethodPost, "/v1/holidays/sync", nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestPostsAndFeed(t *testing.T) {
	r, _ := setupRouter(t)
	if w := doJSON(t, r, http.MethodPost, "/v1/posts", map[string]any{"content": "handover notes"}); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/v1/posts", map[string]any{"content": " "}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	w := doJSON(t, r, http.MethodGet, "/v1/feed", nil)
	var resp struct {
		Items []feedItemDTO `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Content != "handover notes" || resp.Items[0].Kind != "post" {
		t.Fatalf("unexpected feed: %#v", resp.Items)
	}
}
