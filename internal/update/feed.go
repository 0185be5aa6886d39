package update

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepkv93/shiftd/internal/logging"
	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/views"
)

const logTailLines = 200

func (m Model) loadFeed() Model {
	m.Feed.Items = m.backend.Feed(m.ctx)
	m.Feed.Cursor = clampCursor(m.Feed.Cursor, len(m.Feed.Items))
	return m.syncFeedViewport()
}

func (m Model) syncFeedViewport() Model {
	if len(m.Feed.Items) == 0 {
		m.feedViewport.SetContent("")
		return m
	}
	m.feedViewport.SetContent(views.RenderMarkdown(m.feedMarkdown(m.Feed.Items[m.Feed.Cursor])))
	m.feedViewport.GotoTop()
	return m
}

func (m Model) handleFeedKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if m.Feed.Cursor < len(m.Feed.Items)-1 {
			m.Feed.Cursor++
			m = m.syncFeedViewport()
		}
	case "k", "up":
		if m.Feed.Cursor > 0 {
			m.Feed.Cursor--
			m = m.syncFeedViewport()
		}
	case "x":
		if len(m.Feed.Items) == 0 {
			return m.setError(errNoSelection), nil
		}
		item := m.Feed.Items[m.Feed.Cursor]
		if item.Kind != model.FeedPost {
			return m.setError(errNotANote), nil
		}
		if err := m.backend.DeletePost(m.ctx, item.Post.ID); err != nil {
			return m.setError(err), nil
		}
		m.Status = StatusBar{Text: fmt.Sprintf("note #%d deleted", item.Post.ID)}
		return m.reload(), nil
	default:
		var cmd tea.Cmd
		m.feedViewport, cmd = m.feedViewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) feedMarkdown(item model.FeedItem) string {
	at := item.At.In(m.loc).Format("2006-01-02 15:04")
	if item.Kind == model.FeedPost {
		var b strings.Builder
		fmt.Fprintf(&b, "### Note #%d\n\n_%s_\n\n%s\n", item.Post.ID, at, item.Post.Content)
		for _, img := range item.Post.ImagePaths {
			fmt.Fprintf(&b, "\n- image: `%s`", img)
		}
		for _, id := range item.Post.LinkedTaskIDs {
			fmt.Fprintf(&b, "\n- linked task #%d", id)
		}
		return b.String()
	}
	t := item.Task
	return fmt.Sprintf("### %s\n\n- when: %s\n- level: %s\n- status: %s\n- source: %s #%d\n",
		t.DisplayTitle(), at, t.ReminderLevel, t.Status, t.SourceType, t.SourceID)
}

func (m Model) renderFeedView() string {
	data := views.FeedPanelData{Cursor: m.Feed.Cursor}
	for _, item := range m.Feed.Items {
		row := views.FeedItemData{Kind: string(item.Kind), At: item.At.In(m.loc).Format("01-02 15:04")}
		if item.Kind == model.FeedPost {
			row.ID = item.Post.ID
			row.Title = firstLine(item.Post.Content)
		} else {
			row.ID = item.Task.ID
			row.Title = item.Task.DisplayTitle()
		}
		data.Items = append(data.Items, row)
	}
	return views.RenderFeedPanel(data)
}

func (m Model) loadLogs() Model {
	if m.Logs.Path == "" {
		return m
	}
	lines, err := logging.Tail(m.Logs.Path, logTailLines)
	if err != nil {
		return m.setError(err)
	}
	m.Logs.Lines = lines
	m.logViewport.SetContent(strings.Join(lines, "\n"))
	m.logViewport.GotoBottom()
	return m
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if msg.String() == "r" {
		m = m.loadLogs()
		m.Status = StatusBar{Text: fmt.Sprintf("loaded %d log lines", len(m.Logs.Lines))}
		return m, nil
	}
	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	return m, cmd
}

func (m Model) renderLogsView() string {
	return views.RenderLogsPanel(views.LogsPanelData{
		Path:     m.Logs.Path,
		Viewport: m.logViewport.View(),
		Empty:    len(m.Logs.Lines) == 0,
	})
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len([]rune(s)) > 40 {
		s = string([]rune(s)[:40]) + "..."
	}
	return s
}
