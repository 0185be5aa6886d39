package update

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepkv93/shiftd/internal/service"
	"github.com/sandeepkv93/shiftd/internal/views"
)

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEventCmd(m.events)}
	if m.backend != nil {
		cmds = append(cmds, waitForChangesCmd(m.backend.Changes()))
	}
	if m.Syncing {
		cmds = append(cmds, m.syncSpinner.Tick)
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(typed)
	case tea.WindowSizeMsg:
		m.feedViewport.Width = max(typed.Width/2-6, 20)
		m.logViewport.Width = max(typed.Width/2-6, 20)
		m.logViewport.Height = max(typed.Height-10, 5)
		return m, nil
	case spinner.TickMsg:
		if m.Syncing {
			var cmd tea.Cmd
			m.syncSpinner, cmd = m.syncSpinner.Update(typed)
			return m, cmd
		}
		return m, nil
	case DeliveryEventMsg:
		m = m.applyDeliveryEvent(typed.Event)
		return m, waitForEventCmd(m.events)
	case DataChangedMsg:
		if m.backend == nil {
			return m, nil
		}
		m = m.reload()
		cmds := []tea.Cmd{waitForChangesCmd(m.backend.Changes())}
		running := m.backend.SyncStatus().State == service.SyncRunning
		if running && !m.Syncing {
			cmds = append(cmds, m.syncSpinner.Tick)
		}
		m.Syncing = running
		return m, tea.Batch(cmds...)
	case SyncFinishedMsg:
		m.Syncing = false
		switch {
		case typed.Err != nil:
			m.Status = StatusBar{Text: "holiday sync: " + typed.Err.Error(), IsError: true}
		case !typed.Result.Success:
			m.Status = StatusBar{Text: "holiday sync failed: " + typed.Result.Message, IsError: true}
		default:
			m.Status = StatusBar{Text: fmt.Sprintf("holiday sync complete: %d days imported", typed.Result.Imported)}
		}
		m = m.reload()
		return m, nil
	case RecoverFinishedMsg:
		r := typed.Recovery
		m.Status = StatusBar{Text: fmt.Sprintf("regenerated %d sources: %d inserted, %d registered",
			r.Summary.Sources, r.Summary.Inserted, r.Dispatch.Registered)}
		if len(r.Summary.Errors) > 0 {
			m.Status = StatusBar{Text: "regenerate: " + strings.Join(r.Summary.Errors, "; "), IsError: true}
		}
		m = m.reload()
		return m, nil
	case MailFinishedMsg:
		m = m.reload()
		m.Status = StatusBar{Text: typed.Result.Message, IsError: !typed.Result.Success}
		if typed.Result.Summary != "" {
			m.CurrentView = ViewFeed
			m.feedViewport.SetContent(views.RenderMarkdown("## Today's mail\n\n" + typed.Result.Summary))
		}
		return m, nil
	case TaskActionMsg:
		return m.applyTaskAction(typed), nil
	case SwitchViewMsg:
		if isKnownView(typed.View) {
			m = m.switchView(typed.View)
		}
		return m, nil
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil
	case AppErrorMsg:
		m.LastError = typed.Err
		if typed.Err != nil {
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	keyStr := msg.String()
	if keyStr == "ctrl+c" {
		m.Quitting = true
		return m, tea.Quit
	}
	if len(m.Alarms) > 0 {
		return m.handleAlarmKey(msg)
	}
	if m.Palette.Active {
		return m.handlePaletteKey(msg)
	}

	switch keyStr {
	case "/":
		m.Palette.Active = true
		m.Palette.Input = ""
		m.commandInput.SetValue("")
		m.commandInput.Focus()
		m.Status = StatusBar{Text: "command palette active"}
		return m, nil
	case m.Keys.Calendar:
		return m.switchView(ViewCalendar), nil
	case m.Keys.Rules:
		return m.switchView(ViewRules), nil
	case m.Keys.Feed:
		return m.switchView(ViewFeed), nil
	case m.Keys.Logs:
		return m.switchView(ViewLogs), nil
	case m.Keys.Sync:
		return m.startSync()
	case m.Keys.Help:
		m.HelpVisible = !m.HelpVisible
		if m.HelpVisible {
			m.Status = StatusBar{Text: "help shown"}
		} else {
			m.Status = StatusBar{Text: "help hidden"}
		}
		return m, nil
	case "c":
		return m.dismissLatestNotification()
	case m.Keys.Quit:
		m.Quitting = true
		return m, tea.Quit
	}

	switch m.CurrentView {
	case ViewCalendar:
		return m.handleCalendarKey(msg)
	case ViewRules:
		return m.handleRulesKey(msg), nil
	case ViewFeed:
		return m.handleFeedKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

func (m Model) switchView(v View) Model {
	m.CurrentView = v
	return m.reload()
}

func (m Model) startSync() (Model, tea.Cmd) {
	if m.backend == nil {
		return m, nil
	}
	if m.Syncing {
		m.Status = StatusBar{Text: "holiday sync already running"}
		return m, nil
	}
	m.Syncing = true
	m.Status = StatusBar{Text: "holiday sync started"}
	return m, tea.Batch(m.syncSpinner.Tick, syncHolidaysCmd(m.ctx, m.backend))
}

// reload pulls every view's data from the backend.
func (m Model) reload() Model {
	if m.backend == nil {
		return m
	}
	if loc := m.backend.Location(); loc != nil {
		m.loc = loc
	}
	m = m.loadCalendar()
	m = m.loadRules()
	m = m.loadFeed()
	m = m.loadLogs()
	return m
}

func (m Model) setError(err error) Model {
	m.LastError = err
	m.Status = StatusBar{Text: err.Error(), IsError: true}
	return m
}

func (m Model) View() string {
	status := ""
	if m.Status.Text != "" {
		if m.Status.IsError {
			status = fmt.Sprintf("status: error: %s", m.Status.Text)
		} else {
			status = fmt.Sprintf("status: %s", m.Status.Text)
		}
	}

	if len(m.Alarms) > 0 {
		return views.RenderApp(views.AppData{
			Header:     m.header(),
			Overlay:    views.RenderAlarmPrompt(m.alarmPromptData()),
			StatusLine: status,
		})
	}

	leftPane := ""
	rightPane := ""
	switch m.CurrentView {
	case ViewCalendar:
		leftPane = m.renderCalendarView()
		rightPane = m.renderAgendaDetail()
	case ViewRules:
		leftPane = m.renderRulesView()
		rightPane = m.renderRulesHint()
	case ViewFeed:
		leftPane = m.renderFeedView()
		rightPane = m.feedViewport.View()
	case ViewLogs:
		leftPane = m.renderLogsView()
	}
	rightPane = joinSections(rightPane, views.RenderCommandPalette(m.Palette.Active, m.commandInput.Value()), m.renderHelpIfVisible())

	notification := views.RenderNotifications(m.notificationData())
	if m.Syncing {
		notification = joinSections("sync: "+m.syncSpinner.View()+" running", notification)
	}

	return views.RenderApp(views.AppData{
		Header:       m.header(),
		LeftPane:     leftPane,
		RightPane:    rightPane,
		StatusLine:   status,
		Notification: notification,
		Footer: fmt.Sprintf("keys: %s cal | %s rules | %s feed | %s logs | %s sync | / cmd | %s help | %s quit",
			m.Keys.Calendar, m.Keys.Rules, m.Keys.Feed, m.Keys.Logs, m.Keys.Sync, m.Keys.Help, m.Keys.Quit),
	})
}

func (m Model) header() string {
	h := fmt.Sprintf("shiftd | view: %s | %s", m.CurrentView, m.now().In(m.loc).Format("2006-01-02 15:04 MST"))
	if m.backend != nil {
		st := m.backend.SyncStatus()
		if !st.At.IsZero() {
			h += fmt.Sprintf(" | holidays: %s %s", st.State, st.At.In(m.loc).Format(time.DateTime))
		}
	}
	return h
}

func joinSections(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}

func isKnownView(v View) bool {
	switch v {
	case ViewCalendar, ViewRules, ViewFeed, ViewLogs:
		return true
	default:
		return false
	}
}

var (
	errNoSelection = errors.New("nothing selected")
	errNotANote    = errors.New("only notes can be deleted from the feed")
)
