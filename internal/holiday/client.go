package holiday

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/shiftd/internal/model"
)

const DefaultBaseURL = "https://cdn.jsdelivr.net/"

var (
	ErrNotPublished = errors.New("holiday: year not published")
	ErrEmpty        = errors.New("holiday: no holiday data")
)

// yearPayload is the chinese-days per-year document. Values look like
// "New Year's Day,元旦,1".
type yearPayload struct {
	Holidays   map[string]string `json:"holidays"`
	Workdays   map[string]string `json:"workdays"`
	InLieuDays map[string]string `json:"inLieuDays"`
}

type Provider interface {
	FetchYear(ctx context.Context, year int) ([]model.Holiday, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchYear downloads and classifies one year. A 404 means the provider has
// not published that year yet.
func (c *Client) FetchYear(ctx context.Context, year int) ([]model.Holiday, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	u = u.JoinPath("npm", "chinese-days", "dist", "years", strconv.Itoa(year)+".json")

	c.logger.DebugContext(ctx, "fetching holiday data", slog.String("url", u.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %d (HTTP 404)", ErrNotPublished, year)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var payload yearPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(payload.Holidays) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrEmpty, year)
	}
	out := classify(payload)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrEmpty, year)
	}
	return out, nil
}

// classify turns a payload into holidays sorted by date. Entries with fewer
// than three comma-separated fields are dropped. Workday names carry the
// 调休 suffix.
func classify(p yearPayload) []model.Holiday {
	out := make([]model.Holiday, 0, len(p.Holidays)+len(p.Workdays))
	for date, raw := range p.Holidays {
		if name, ok := parseName(raw); ok {
			out = append(out, model.Holiday{Date: date, Type: model.HolidayRest, Name: name})
		}
	}
	for date, raw := range p.Workdays {
		if name, ok := parseName(raw); ok {
			out = append(out, model.Holiday{Date: date, Type: model.HolidayWorkday, Name: name + "调休"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func parseName(raw string) (string, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) < 3 {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
