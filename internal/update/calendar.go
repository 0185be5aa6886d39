package update

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/views"
)

func (m Model) loadCalendar() Model {
	day := m.Calendar.FocusDate
	m.Calendar.Markers = m.backend.Markers(m.ctx, day)

	first, last := monthBounds(day)
	m.Calendar.Holidays = make(map[string]model.Holiday)
	for _, h := range m.backend.Holidays(m.ctx, model.FormatDate(first), model.FormatDate(last)) {
		m.Calendar.Holidays[h.Date] = h
	}

	m.Calendar.Items = m.backend.TasksForDate(m.ctx, model.FormatDate(day))
	m.Calendar.Cursor = clampCursor(m.Calendar.Cursor, len(m.Calendar.Items))
	return m
}

func (m Model) handleCalendarKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "h", "left":
		return m.focusOn(m.Calendar.FocusDate.AddDate(0, 0, -1)), nil
	case "l", "right":
		return m.focusOn(m.Calendar.FocusDate.AddDate(0, 0, 1)), nil
	case "H", "pgup":
		return m.focusOn(shiftMonth(m.Calendar.FocusDate, -1)), nil
	case "L", "pgdown":
		return m.focusOn(shiftMonth(m.Calendar.FocusDate, 1)), nil
	case "t":
		return m.focusOn(model.DateOf(m.now(), m.loc)), nil
	case "j", "down":
		if m.Calendar.Cursor < len(m.Calendar.Items)-1 {
			m.Calendar.Cursor++
		}
	case "k", "up":
		if m.Calendar.Cursor > 0 {
			m.Calendar.Cursor--
		}
	case "a", "enter":
		task, ok := m.selectedTask()
		if !ok {
			return m.setError(errNoSelection), nil
		}
		m.Status = StatusBar{Text: fmt.Sprintf("acknowledging task #%d", task.ID)}
		return m, taskActionCmd(m.ctx, m.backend, ActionAcknowledge, task.ID, "")
	case "o":
		task, ok := m.selectedTask()
		if !ok {
			return m.setError(errNoSelection), nil
		}
		m.Status = StatusBar{Text: "opening " + task.TargetPkgName}
		return m, taskActionCmd(m.ctx, m.backend, ActionOpen, task.ID, task.TargetPkgName)
	case "x":
		task, ok := m.selectedTask()
		if !ok {
			return m.setError(errNoSelection), nil
		}
		if err := m.backend.DeleteTask(m.ctx, task.ID); err != nil {
			return m.setError(err), nil
		}
		m.Status = StatusBar{Text: fmt.Sprintf("task #%d deleted", task.ID)}
		return m.reload(), nil
	}
	return m, nil
}

func (m Model) focusOn(day time.Time) Model {
	m.Calendar.FocusDate = model.DateOf(day, m.loc)
	m.Calendar.Cursor = 0
	if m.backend == nil {
		return m
	}
	return m.loadCalendar()
}

func (m Model) selectedTask() (model.TaskRecord, bool) {
	if m.backend == nil || len(m.Calendar.Items) == 0 {
		return model.TaskRecord{}, false
	}
	return m.Calendar.Items[m.Calendar.Cursor], true
}

func (m Model) renderCalendarView() string {
	date := model.FormatDate(m.Calendar.FocusDate)
	data := views.CalendarPanelData{
		Grid:      m.monthGrid(),
		FocusDate: date,
		Cursor:    m.Calendar.Cursor,
	}
	if h, ok := m.Calendar.Holidays[date]; ok {
		data.Holiday = holidayLabel(h)
	}
	for _, t := range m.Calendar.Items {
		data.Items = append(data.Items, m.agendaItem(t))
	}
	return views.RenderCalendarPanel(data)
}

func (m Model) renderAgendaDetail() string {
	task, ok := m.selectedTask()
	if !ok {
		return views.RenderAgendaDetail(nil)
	}
	item := m.agendaItem(task)
	return views.RenderAgendaDetail(&item)
}

func (m Model) agendaItem(t model.TaskRecord) views.AgendaItemData {
	return views.AgendaItemData{
		ID:     t.ID,
		Time:   t.TriggerAt().In(m.loc).Format("15:04"),
		Title:  t.DisplayTitle(),
		Level:  t.ReminderLevel.String(),
		Status: string(t.Status),
		Source: string(t.SourceType),
	}
}

// monthGrid lays the focused month out in Monday-first weeks.
func (m Model) monthGrid() views.MonthGridData {
	first, last := monthBounds(m.Calendar.FocusDate)
	today := model.FormatDate(model.DateOf(m.now(), m.loc))
	focus := model.FormatDate(m.Calendar.FocusDate)

	data := views.MonthGridData{Title: first.Format("January 2006")}
	week := make([]views.MonthCellData, (int(first.Weekday())+6)%7)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		date := model.FormatDate(d)
		cell := views.MonthCellData{
			Day:     d.Day(),
			Date:    date,
			Today:   date == today,
			Focused: date == focus,
		}
		if level, ok := m.Calendar.Markers[date]; ok {
			cell.Marker = levelMarker(level)
		}
		week = append(week, cell)
		if len(week) == 7 {
			data.Weeks = append(data.Weeks, week)
			week = nil
		}
	}
	if len(week) > 0 {
		week = append(week, make([]views.MonthCellData, 7-len(week))...)
		data.Weeks = append(data.Weeks, week)
	}
	return data
}

func levelMarker(level model.ReminderLevel) string {
	switch level {
	case model.ReminderAlarm:
		return views.MarkerAlarm
	case model.ReminderSilent:
		return views.MarkerSilent
	default:
		return views.MarkerNone
	}
}

func holidayLabel(h model.Holiday) string {
	name := strings.TrimSpace(h.Name)
	if h.Type == model.HolidayWorkday {
		return strings.TrimSpace(name + " (workday)")
	}
	return name
}

func monthBounds(day time.Time) (time.Time, time.Time) {
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
	return first, first.AddDate(0, 1, -1)
}

// shiftMonth moves by n months, clamping the day to the target month.
func shiftMonth(day time.Time, n int) time.Time {
	first := time.Date(day.Year(), day.Month()+time.Month(n), 1, 0, 0, 0, 0, day.Location())
	_, last := monthBounds(first)
	return time.Date(first.Year(), first.Month(), min(day.Day(), last.Day()), 0, 0, 0, 0, day.Location())
}

func clampCursor(cursor, n int) int {
	if n == 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}
