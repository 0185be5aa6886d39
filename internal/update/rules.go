package update

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/views"
)

func (m Model) loadRules() Model {
	rules, err := m.backend.ShiftRules(m.ctx)
	if err != nil {
		return m.setError(err)
	}
	anns, err := m.backend.Anniversaries(m.ctx)
	if err != nil {
		return m.setError(err)
	}
	m.Rules.ShiftRules = rules
	m.Rules.Anniversaries = anns
	m.Rules.Cursor = clampCursor(m.Rules.Cursor, len(m.ruleRefs()))
	return m
}

// ruleRefs lists shift rules first, then anniversaries, in display order.
func (m Model) ruleRefs() []RuleRef {
	out := make([]RuleRef, 0, len(m.Rules.ShiftRules)+len(m.Rules.Anniversaries))
	for _, r := range m.Rules.ShiftRules {
		out = append(out, RuleRef{Source: model.SourceShiftRule, ID: r.ID})
	}
	for _, a := range m.Rules.Anniversaries {
		out = append(out, RuleRef{Source: model.SourceAnniversary, ID: a.ID})
	}
	return out
}

func (m Model) handleRulesKey(msg tea.KeyMsg) Model {
	refs := m.ruleRefs()
	switch msg.String() {
	case "j", "down":
		if m.Rules.Cursor < len(refs)-1 {
			m.Rules.Cursor++
		}
	case "k", "up":
		if m.Rules.Cursor > 0 {
			m.Rules.Cursor--
		}
	case "x":
		if len(refs) == 0 {
			return m.setError(errNoSelection)
		}
		return m.deleteSource(refs[m.Rules.Cursor])
	}
	return m
}

func (m Model) deleteSource(ref RuleRef) Model {
	var err error
	switch ref.Source {
	case model.SourceShiftRule:
		err = m.backend.DeleteShiftRule(m.ctx, ref.ID)
	case model.SourceAnniversary:
		err = m.backend.DeleteAnniversary(m.ctx, ref.ID)
	}
	if err != nil {
		return m.setError(err)
	}
	m.Status = StatusBar{Text: fmt.Sprintf("%s #%d deleted", strings.ReplaceAll(string(ref.Source), "_", " "), ref.ID)}
	return m.reload()
}

func (m Model) renderRulesView() string {
	data := views.RulesPanelData{Cursor: m.Rules.Cursor}
	for _, r := range m.Rules.ShiftRules {
		item := views.ShiftRuleItemData{
			ID:          r.ID,
			Title:       r.Title,
			StartDate:   model.FormatDate(r.StartDate),
			CycleDays:   r.CycleDays,
			SkipHoliday: r.SkipHoliday,
			Level:       r.DefaultReminderLevel.String(),
		}
		for _, d := range r.ShiftConfig {
			item.Days = append(item.Days, describeDay(d))
		}
		data.ShiftRules = append(data.ShiftRules, item)
	}
	for _, a := range m.Rules.Anniversaries {
		hour, minute := a.Clock(m.loc)
		data.Anniversaries = append(data.Anniversaries, views.AnniversaryItemData{
			ID:    a.ID,
			Title: a.Title,
			Date:  a.TargetDate,
			Time:  fmt.Sprintf("%02d:%02d", hour, minute),
			Level: a.ReminderLevel.String(),
		})
	}
	return views.RenderRulesPanel(data)
}

func describeDay(d model.DayConfig) string {
	times := make([]string, 0, len(d.TimeSlots))
	for _, s := range d.TimeSlots {
		t := s.Time
		if s.TargetPkgName != "" {
			t += "->" + s.TargetPkgName
		}
		times = append(times, t)
	}
	if len(times) == 0 {
		times = append(times, "off")
	}
	return fmt.Sprintf("day %d [%s] %s", d.DayIndex, d.ReminderLevel, strings.Join(times, ", "))
}

func (m Model) renderRulesHint() string {
	return strings.Join([]string{
		"add:",
		"/shift <title> start:YYYY-MM-DD cycle:N d0=08:00,20:00 d2=21:30!1",
		"  [pkg:<app>] [skip-holiday] [level:0|1|2]",
		"/anniv <title> date:YYYY-MM-DD [at:HH:MM] [level:0|1|2]",
		"",
		"actions: [j/k] move [x] delete selected",
	}, "\n")
}
