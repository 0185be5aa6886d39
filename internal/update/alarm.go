package update

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepkv93/shiftd/internal/delivery"
	"github.com/sandeepkv93/shiftd/internal/views"
)

func (m Model) applyDeliveryEvent(ev delivery.Event) Model {
	switch ev.Kind {
	case delivery.EventNotification:
		m.Notifications = append([]Notification{{TaskID: ev.TaskID, Title: ev.Title, At: ev.At}}, m.Notifications...)
		if len(m.Notifications) > maxNotifications {
			m.Notifications = m.Notifications[:maxNotifications]
		}
		m.Status = StatusBar{Text: "reminder: " + ev.Title}
	case delivery.EventAlarmStarted:
		m.Alarms = append(m.Alarms, AlarmPrompt{
			TaskID:        ev.TaskID,
			Title:         ev.Title,
			TargetPkgName: ev.TargetPkgName,
			SessionID:     ev.SessionID,
			At:            ev.At,
		})
		m.Status = StatusBar{Text: "alarm: " + ev.Title}
	case delivery.EventAlarmStopped:
		m = m.dropAlarms(func(a AlarmPrompt) bool { return a.SessionID == ev.SessionID })
	case delivery.EventCompleted:
		m = m.dropNotification(ev.TaskID)
		m = m.dropAlarms(func(a AlarmPrompt) bool { return a.TaskID == ev.TaskID })
		m.Status = StatusBar{Text: fmt.Sprintf("task #%d completed", ev.TaskID)}
		m = m.reload()
	}
	return m
}

func (m Model) handleAlarmKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		id := m.Alarms[0].TaskID
		m = m.dropAlarms(func(a AlarmPrompt) bool { return a.TaskID == id })
		m.Status = StatusBar{Text: fmt.Sprintf("acknowledging alarm #%d", id)}
		return m, taskActionCmd(m.ctx, m.backend, ActionAcknowledge, id, "")
	case "o":
		current := m.Alarms[0]
		m.Status = StatusBar{Text: "opening " + current.TargetPkgName}
		return m, taskActionCmd(m.ctx, m.backend, ActionOpen, current.TaskID, current.TargetPkgName)
	}
	return m, nil
}

func (m Model) dismissLatestNotification() (Model, tea.Cmd) {
	if len(m.Notifications) == 0 {
		m.Status = StatusBar{Text: "no notifications"}
		return m, nil
	}
	n := m.Notifications[0]
	m.Notifications = m.Notifications[1:]
	m.Status = StatusBar{Text: fmt.Sprintf("dismissing notification #%d", n.TaskID)}
	if m.backend == nil {
		return m, nil
	}
	return m, taskActionCmd(m.ctx, m.backend, ActionDismiss, n.TaskID, "")
}

func (m Model) applyTaskAction(msg TaskActionMsg) Model {
	if msg.Err != nil {
		return m.setError(msg.Err)
	}
	switch msg.Action {
	case ActionAcknowledge:
		m.Status = StatusBar{Text: fmt.Sprintf("task #%d completed", msg.TaskID)}
		return m.reload()
	case ActionDismiss:
		m.Status = StatusBar{Text: fmt.Sprintf("notification #%d dismissed", msg.TaskID)}
		return m.reload()
	case ActionOpen:
		m.Status = StatusBar{Text: "opened " + msg.Target}
	}
	return m
}

func (m Model) dropNotification(taskID int64) Model {
	kept := m.Notifications[:0:0]
	for _, n := range m.Notifications {
		if n.TaskID != taskID {
			kept = append(kept, n)
		}
	}
	m.Notifications = kept
	return m
}

func (m Model) dropAlarms(match func(AlarmPrompt) bool) Model {
	kept := m.Alarms[:0:0]
	for _, a := range m.Alarms {
		if !match(a) {
			kept = append(kept, a)
		}
	}
	m.Alarms = kept
	return m
}

func (m Model) alarmPromptData() views.AlarmPromptData {
	current := m.Alarms[0]
	return views.AlarmPromptData{
		TaskID: current.TaskID,
		Title:  current.Title,
		At:     current.At.In(m.loc).Format("15:04"),
		Target: current.TargetPkgName,
	}
}

func (m Model) notificationData() []views.NotificationData {
	out := make([]views.NotificationData, 0, len(m.Notifications))
	for _, n := range m.Notifications {
		out = append(out, views.NotificationData{
			TaskID: n.TaskID,
			At:     n.At.In(m.loc).Format("15:04"),
			Title:  n.Title,
		})
	}
	return out
}
