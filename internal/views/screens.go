package views

import (
	"fmt"
	"strings"
)

// Marker values used in the month grid.
const (
	MarkerNone   = ""
	MarkerSilent = "silent"
	MarkerAlarm  = "alarm"
)

type MonthCellData struct {
	Day     int
	Date    string
	Marker  string
	Today   bool
	Focused bool
}

type MonthGridData struct {
	Title string
	// Weeks holds seven cells per row starting on Monday. Day 0 pads the
	// slots outside the month.
	Weeks [][]MonthCellData
}

type AgendaItemData struct {
	ID     int64
	Time   string
	Title  string
	Level  string
	Status string
	Source string
}

type CalendarPanelData struct {
	Grid      MonthGridData
	FocusDate string
	Holiday   string
	Items     []AgendaItemData
	Cursor    int
}

type ShiftRuleItemData struct {
	ID          int64
	Title       string
	StartDate   string
	CycleDays   int
	Days        []string
	SkipHoliday bool
	Level       string
}

type AnniversaryItemData struct {
	ID    int64
	Title string
	Date  string
	Time  string
	Level string
}

type RulesPanelData struct {
	ShiftRules    []ShiftRuleItemData
	Anniversaries []AnniversaryItemData
	Cursor        int
}

type FeedItemData struct {
	Kind  string
	ID    int64
	At    string
	Title string
	Body  string
}

type FeedPanelData struct {
	Items  []FeedItemData
	Cursor int
}

type LogsPanelData struct {
	Path     string
	Viewport string
	Empty    bool
}

type AlarmPromptData struct {
	TaskID int64
	Title  string
	At     string
	Target string
}

type HelpPanelData struct {
	CurrentView string
	Bindings    []string
	HelpView    string
}

type NotificationData struct {
	TaskID int64
	At     string
	Title  string
}

func RenderMonthGrid(data MonthGridData) string {
	var b strings.Builder
	b.WriteString(data.Title + "\n")
	for _, name := range []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"} {
		b.WriteString(" " + name + "  ")
	}
	b.WriteString("\n")
	for _, week := range data.Weeks {
		cells := make([]string, 0, len(week))
		for _, c := range week {
			cells = append(cells, renderCell(c))
		}
		b.WriteString(strings.Join(cells, "") + "\n")
	}
	b.WriteString("legend: ! alarm  * silent  () today  [] focused")
	return b.String()
}

func renderCell(c MonthCellData) string {
	if c.Day == 0 {
		return "     "
	}
	mark := " "
	switch c.Marker {
	case MarkerAlarm:
		mark = "!"
	case MarkerSilent:
		mark = "*"
	}
	switch {
	case c.Focused:
		return fmt.Sprintf("[%2d]", c.Day) + mark
	case c.Today:
		return fmt.Sprintf("(%2d)", c.Day) + mark
	default:
		return fmt.Sprintf(" %2d ", c.Day) + mark
	}
}

func RenderCalendarPanel(data CalendarPanelData) string {
	var b strings.Builder
	b.WriteString(RenderMonthGrid(data.Grid))
	b.WriteString(fmt.Sprintf("\n\nagenda %s:\n", data.FocusDate))
	if data.Holiday != "" {
		b.WriteString("holiday: " + data.Holiday + "\n")
	}
	if len(data.Items) == 0 {
		b.WriteString("  (no reminders)\n")
	}
	for i, item := range data.Items {
		cursor := " "
		if i == data.Cursor {
			cursor = ">"
		}
		b.WriteString(fmt.Sprintf("%s #%d %s [%s] %s (%s)\n", cursor, item.ID, item.Time, strings.ToUpper(item.Level), item.Title, item.Status))
	}
	return strings.TrimSpace(b.String())
}

func RenderAgendaDetail(item *AgendaItemData) string {
	if item == nil {
		return "task:\n(no selection)"
	}
	return fmt.Sprintf("task:\nid: %d\nsource: %s\nwhen: %s\nlevel: %s\nstatus: %s\nactions: [a]ck [x]delete",
		item.ID, item.Source, item.Time, item.Level, item.Status)
}

func RenderRulesPanel(data RulesPanelData) string {
	var b strings.Builder
	idx := 0
	b.WriteString("shift rules:\n")
	if len(data.ShiftRules) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, r := range data.ShiftRules {
		cursor := " "
		if idx == data.Cursor {
			cursor = ">"
		}
		idx++
		skip := ""
		if r.SkipHoliday {
			skip = " skip-holiday"
		}
		b.WriteString(fmt.Sprintf("%s #%d %s from %s cycle:%d level:%s%s\n", cursor, r.ID, r.Title, r.StartDate, r.CycleDays, r.Level, skip))
		for _, d := range r.Days {
			b.WriteString("    " + d + "\n")
		}
	}
	b.WriteString("\nanniversaries:\n")
	if len(data.Anniversaries) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, a := range data.Anniversaries {
		cursor := " "
		if idx == data.Cursor {
			cursor = ">"
		}
		idx++
		b.WriteString(fmt.Sprintf("%s #%d %s on %s at %s level:%s\n", cursor, a.ID, a.Title, a.Date, a.Time, a.Level))
	}
	return strings.TrimSpace(b.String())
}

func RenderFeedPanel(data FeedPanelData) string {
	var b strings.Builder
	b.WriteString("feed:\n")
	if len(data.Items) == 0 {
		b.WriteString("  (empty) use /note to write one\n")
	}
	for i, item := range data.Items {
		cursor := " "
		if i == data.Cursor {
			cursor = ">"
		}
		b.WriteString(fmt.Sprintf("%s %s [%s] %s\n", cursor, item.At, strings.ToUpper(item.Kind), item.Title))
	}
	return strings.TrimSpace(b.String())
}

func RenderLogsPanel(data LogsPanelData) string {
	if data.Empty {
		return fmt.Sprintf("logs: %s\n(no log lines yet)", data.Path)
	}
	return fmt.Sprintf("logs: %s\n%s", data.Path, data.Viewport)
}

func RenderAlarmPrompt(data AlarmPromptData) string {
	var b strings.Builder
	b.WriteString("ALARM\n")
	b.WriteString(fmt.Sprintf("%s\n", data.Title))
	b.WriteString(fmt.Sprintf("task #%d due %s\n", data.TaskID, data.At))
	if data.Target != "" {
		b.WriteString(fmt.Sprintf("target: %s\n", data.Target))
		b.WriteString("[enter] acknowledge  [o] open target")
	} else {
		b.WriteString("[enter] acknowledge")
	}
	return alarmStyle.Render(b.String())
}

func RenderNotifications(items []NotificationData) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("notifications ([c] dismiss latest):\n")
	for _, n := range items {
		b.WriteString(fmt.Sprintf("- %s #%d %s\n", n.At, n.TaskID, n.Title))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: /%s", input)
}

func RenderHelpPanel(data HelpPanelData) string {
	return fmt.Sprintf("help:\n%s view:\n%s\n%s",
		strings.ToLower(data.CurrentView),
		strings.Join(data.Bindings, "\n"),
		data.HelpView,
	)
}
