package update

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepkv93/shiftd/internal/commands"
	"github.com/sandeepkv93/shiftd/internal/model"
)

const statusLinger = 6 * time.Second

func (m Model) handlePaletteKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m = m.closePalette()
		m.Status = StatusBar{Text: "command palette closed"}
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		return m.executePaletteCommand()
	case m.Keys.Help:
		if m.commandInput.Value() == "" {
			m.HelpVisible = !m.HelpVisible
			return m, nil
		}
		fallthrough
	default:
		if msg.Type == tea.KeyRunes {
			m.commandInput.SetValue(m.commandInput.Value() + string(msg.Runes))
			m.Palette.Input = m.commandInput.Value()
			return m, nil
		}
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		m.Palette.Input = m.commandInput.Value()
		return m, cmd
	}
	return m, nil
}

func (m Model) closePalette() Model {
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()
	return m
}

func (m Model) executePaletteCommand() (Model, tea.Cmd) {
	raw := strings.TrimSpace(m.Palette.Input)
	m = m.closePalette()
	if m.backend == nil {
		return m.setError(fmt.Errorf("no backend configured")), nil
	}
	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}

	var follow tea.Cmd
	res, err := commands.Execute(cmd, commands.Handlers{
		Shift: func(a commands.ShiftArgs) (commands.Result, error) {
			rule, err := a.Rule(m.loc)
			if err != nil {
				return commands.Result{}, err
			}
			saved, rep, err := m.backend.SaveShiftRule(m.ctx, rule)
			if err != nil {
				return commands.Result{}, err
			}
			m.CurrentView = ViewRules
			return commands.Result{Message: fmt.Sprintf("shift rule #%d saved: %d reminders generated", saved.ID, rep.Inserted)}, nil
		},
		Anniv: func(a commands.AnnivArgs) (commands.Result, error) {
			saved, rep, err := m.backend.SaveAnniversary(m.ctx, a.Anniversary(m.loc))
			if err != nil {
				return commands.Result{}, err
			}
			m.CurrentView = ViewRules
			return commands.Result{Message: fmt.Sprintf("anniversary #%d saved: %d reminders generated", saved.ID, rep.Inserted)}, nil
		},
		Note: func(a commands.NoteArgs) (commands.Result, error) {
			var linked []int64
			if task, ok := m.selectedTask(); ok && m.CurrentView == ViewCalendar {
				linked = append(linked, task.ID)
			}
			post, err := m.backend.CreatePost(m.ctx, a.Content, nil, linked)
			if err != nil {
				return commands.Result{}, err
			}
			m.CurrentView = ViewFeed
			return commands.Result{Message: fmt.Sprintf("note #%d saved", post.ID)}, nil
		},
		Sync: func() (commands.Result, error) {
			if m.Syncing {
				return commands.Result{Message: "holiday sync already running"}, nil
			}
			m.Syncing = true
			follow = tea.Batch(m.syncSpinner.Tick, syncHolidaysCmd(m.ctx, m.backend))
			return commands.Result{Message: "holiday sync started"}, nil
		},
		Regen: func() (commands.Result, error) {
			follow = recoverCmd(m.ctx, m.backend, "manual")
			return commands.Result{Message: "regenerating reminders"}, nil
		},
		Ack: func(a commands.AckArgs) (commands.Result, error) {
			follow = taskActionCmd(m.ctx, m.backend, ActionAcknowledge, a.TaskID, "")
			return commands.Result{Message: fmt.Sprintf("acknowledging task #%d", a.TaskID)}, nil
		},
		Delete: func(a commands.DeleteArgs) (commands.Result, error) {
			var err error
			switch a.Kind {
			case "shift":
				err = m.backend.DeleteShiftRule(m.ctx, a.ID)
			case "anniv":
				err = m.backend.DeleteAnniversary(m.ctx, a.ID)
			case "task":
				err = m.backend.DeleteTask(m.ctx, a.ID)
			case "note":
				err = m.backend.DeletePost(m.ctx, a.ID)
			}
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("%s #%d deleted", a.Kind, a.ID)}, nil
		},
		Goto: func(a commands.GotoArgs) (commands.Result, error) {
			day := model.DateOf(m.now(), m.loc)
			if !a.Today {
				parsed, err := model.ParseDate(a.Date, m.loc)
				if err != nil {
					return commands.Result{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: "goto expects YYYY-MM-DD or today"}
				}
				day = parsed
			}
			m.CurrentView = ViewCalendar
			m = m.focusOn(day)
			return commands.Result{Message: "showing " + model.FormatDate(day)}, nil
		},
		Mail: func() (commands.Result, error) {
			follow = importMailCmd(m.ctx, m.backend)
			return commands.Result{Message: "reading today's mail"}, nil
		},
	})
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}
	m = m.reload()
	m.Status = StatusBar{Text: res.Message}
	if follow == nil {
		follow = clearStatusAfter(statusLinger)
	}
	return m, follow
}
