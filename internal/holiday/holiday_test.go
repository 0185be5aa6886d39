package holiday

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/shiftd/internal/model"
)

const payload2024 = `{
	"holidays": {
		"2024-01-01": "New Year's Day,元旦,1",
		"2024-02-10": "Spring Festival,春节,8",
		"2024-02-11": "broken"
	},
	"workdays": {
		"2024-02-04": "Spring Festival,春节,8"
	},
	"inLieuDays": {}
}`

func newCDN(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/npm/chinese-days/dist/years/2024.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(payload2024))
		case "/npm/chinese-days/dist/years/2023.json":
			_, _ = w.Write([]byte(`{"holidays": {}, "workdays": {}}`))
		case "/npm/chinese-days/dist/years/2022.json":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type memWriter struct {
	mu    sync.Mutex
	saved map[string]model.Holiday
	err   error
}

func (m *memWriter) UpsertHolidays(_ context.Context, in []model.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.saved == nil {
		m.saved = make(map[string]model.Holiday)
	}
	for _, h := range in {
		m.saved[h.Date] = h
	}
	return nil
}

func TestFetchYearClassifiesEntries(t *testing.T) {
	client := NewClient(newCDN(t).URL, nil)
	got, err := client.FetchYear(context.Background(), 2024)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %#v", got)
	}
	if got[0].Date != "2024-01-01" || got[0].Type != model.HolidayRest || got[0].Name != "元旦" {
		t.Fatalf("unexpected first entry: %#v", got[0])
	}
	if got[1].Date != "2024-02-04" || got[1].Type != model.HolidayWorkday || got[1].Name != "春节调休" {
		t.Fatalf("unexpected workday entry: %#v", got[1])
	}
}

func TestFetchYearSoftFailures(t *testing.T) {
	client := NewClient(newCDN(t).URL, nil)
	if _, err := client.FetchYear(context.Background(), 2099); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("expected ErrNotPublished, got %v", err)
	}
	if _, err := client.FetchYear(context.Background(), 2023); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := client.FetchYear(context.Background(), 2022); err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSyncYearStoresEntries(t *testing.T) {
	store := &memWriter{}
	syncer := NewSyncer(NewClient(newCDN(t).URL, nil), store, nil, nil)

	res := syncer.SyncYear(context.Background(), 2024)
	if !res.Success || res.Imported != 3 {
		t.Fatalf("unexpected result: %#v", res)
	}
	if store.saved["2024-02-10"].Type != model.HolidayRest {
		t.Fatalf("expected stored rest day, got %#v", store.saved)
	}

	res = syncer.SyncYear(context.Background(), 2099)
	if res.Success || !errors.Is(res.Err, ErrNotPublished) || !strings.Contains(res.Message, "2099") {
		t.Fatalf("unexpected not-published result: %#v", res)
	}
}

func TestSyncRangeReportsPartialSuccess(t *testing.T) {
	store := &memWriter{}
	now := func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) }
	syncer := NewSyncer(NewClient(newCDN(t).URL, nil), store, now, nil)

	if years := syncer.Years(); len(years) != 3 || years[0] != 2023 || years[2] != 2025 {
		t.Fatalf("unexpected years: %v", years)
	}
	res := syncer.SyncRange(context.Background())
	if !res.Success || res.Imported != 3 {
		t.Fatalf("expected partial success, got %#v", res)
	}
	if !strings.Contains(res.Message, "partially synced") || !strings.Contains(res.Message, "2025") {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestSyncRangeAllFailing(t *testing.T) {
	store := &memWriter{}
	now := func() time.Time { return time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC) }
	syncer := NewSyncer(NewClient(newCDN(t).URL, nil), store, now, nil)

	res := syncer.SyncRange(context.Background())
	if res.Success || res.Imported != 0 || res.Err == nil {
		t.Fatalf("expected failure, got %#v", res)
	}
	if !strings.HasPrefix(res.Message, "holiday sync failed") {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestSyncYearStoreFailure(t *testing.T) {
	store := &memWriter{err: errors.New("readonly database")}
	syncer := NewSyncer(NewClient(newCDN(t).URL, nil), store, nil, nil)
	res := syncer.SyncYear(context.Background(), 2024)
	if res.Success || res.Err == nil {
		t.Fatalf("expected store failure, got %#v", res)
	}
}
