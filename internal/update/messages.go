package update

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandeepkv93/shiftd/internal/delivery"
	"github.com/sandeepkv93/shiftd/internal/holiday"
	"github.com/sandeepkv93/shiftd/internal/service"
)

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

type AppErrorMsg struct {
	Err error
}

type SwitchViewMsg struct {
	View View
}

// DeliveryEventMsg carries one event from the delivery handler.
type DeliveryEventMsg struct {
	Event delivery.Event
}

// DataChangedMsg fires when the service reports stored data changed.
type DataChangedMsg struct{}

type SyncFinishedMsg struct {
	Result holiday.Result
	Err    error
}

type RecoverFinishedMsg struct {
	Recovery service.Recovery
}

type MailFinishedMsg struct {
	Result service.ImportResult
}

// TaskAction names a delivery call made outside the update loop.
type TaskAction string

const (
	ActionAcknowledge TaskAction = "acknowledge"
	ActionDismiss     TaskAction = "dismiss"
	ActionOpen        TaskAction = "open"
)

type TaskActionMsg struct {
	Action TaskAction
	TaskID int64
	Target string
	Err    error
}

func waitForEventCmd(ch <-chan delivery.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return DeliveryEventMsg{Event: ev}
	}
}

func waitForChangesCmd(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return DataChangedMsg{}
	}
}

func syncHolidaysCmd(ctx context.Context, b Backend) tea.Cmd {
	return func() tea.Msg {
		res, err := b.SyncHolidays(ctx)
		return SyncFinishedMsg{Result: res, Err: err}
	}
}

func recoverCmd(ctx context.Context, b Backend, reason string) tea.Cmd {
	return func() tea.Msg {
		return RecoverFinishedMsg{Recovery: b.Recover(ctx, reason)}
	}
}

func importMailCmd(ctx context.Context, b Backend) tea.Cmd {
	return func() tea.Msg {
		return MailFinishedMsg{Result: b.ImportInterviews(ctx)}
	}
}

// taskActionCmd runs a delivery call off the update loop. Those calls write
// storage and may block on the event stream the loop itself drains.
func taskActionCmd(ctx context.Context, b Backend, action TaskAction, taskID int64, target string) tea.Cmd {
	if b == nil {
		return nil
	}
	return func() tea.Msg {
		var err error
		switch action {
		case ActionAcknowledge:
			err = b.Acknowledge(ctx, taskID)
		case ActionDismiss:
			err = b.DismissNotification(ctx, taskID)
		case ActionOpen:
			err = b.OpenTarget(ctx, taskID)
		}
		return TaskActionMsg{Action: action, TaskID: taskID, Target: target, Err: err}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return ClearStatusMsg{} })
}
