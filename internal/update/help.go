package update

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/sandeepkv93/shiftd/internal/views"
)

type KeyBinding struct {
	Key    string
	Action string
}

type helpKeyMap struct {
	short []key.Binding
	full  [][]key.Binding
}

func (k helpKeyMap) ShortHelp() []key.Binding  { return k.short }
func (k helpKeyMap) FullHelp() [][]key.Binding { return k.full }

func (m Model) renderHelpIfVisible() string {
	if !m.HelpVisible {
		return ""
	}
	var plain []string
	for _, kb := range m.viewBindings() {
		plain = append(plain, fmt.Sprintf("- %s: %s", kb.Key, kb.Action))
	}
	global := toKeyBindings(m.globalBindings())
	return views.RenderHelpPanel(views.HelpPanelData{
		CurrentView: string(m.CurrentView),
		Bindings:    plain,
		HelpView: m.helpModel.View(helpKeyMap{
			short: global,
			full:  [][]key.Binding{global[:4], global[4:]},
		}),
	})
}

func (m Model) globalBindings() []KeyBinding {
	return []KeyBinding{
		{Key: m.Keys.Calendar, Action: "calendar"},
		{Key: m.Keys.Rules, Action: "rules"},
		{Key: m.Keys.Feed, Action: "feed"},
		{Key: m.Keys.Logs, Action: "logs"},
		{Key: "/", Action: "command palette"},
		{Key: m.Keys.Sync, Action: "sync holidays"},
		{Key: "c", Action: "dismiss notification"},
		{Key: m.Keys.Help, Action: "toggle help"},
		{Key: m.Keys.Quit, Action: "quit"},
	}
}

func (m Model) viewBindings() []KeyBinding {
	switch m.CurrentView {
	case ViewCalendar:
		return []KeyBinding{
			{Key: "h/l", Action: "previous/next day"},
			{Key: "H/L", Action: "previous/next month"},
			{Key: "t", Action: "jump to today"},
			{Key: "j/k", Action: "move agenda cursor"},
			{Key: "a", Action: "acknowledge selected"},
			{Key: "o", Action: "open selected target"},
			{Key: "x", Action: "delete selected"},
		}
	case ViewRules:
		return []KeyBinding{
			{Key: "j/k", Action: "move cursor"},
			{Key: "x", Action: "delete selected rule"},
		}
	case ViewFeed:
		return []KeyBinding{
			{Key: "j/k", Action: "move cursor"},
			{Key: "pgup/pgdown", Action: "scroll detail"},
			{Key: "x", Action: "delete selected note"},
		}
	case ViewLogs:
		return []KeyBinding{
			{Key: "r", Action: "reload log tail"},
			{Key: "pgup/pgdown", Action: "scroll"},
		}
	default:
		return []KeyBinding{{Key: "-", Action: "no contextual bindings"}}
	}
}

func toKeyBindings(in []KeyBinding) []key.Binding {
	out := make([]key.Binding, 0, len(in))
	for _, kb := range in {
		out = append(out, key.NewBinding(key.WithKeys(kb.Key), key.WithHelp(kb.Key, kb.Action)))
	}
	return out
}
