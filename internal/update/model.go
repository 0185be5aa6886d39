package update

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/sandeepkv93/shiftd/internal/delivery"
	"github.com/sandeepkv93/shiftd/internal/holiday"
	"github.com/sandeepkv93/shiftd/internal/model"
	"github.com/sandeepkv93/shiftd/internal/reconcile"
	"github.com/sandeepkv93/shiftd/internal/service"
)

type View string

const (
	ViewCalendar View = "Calendar"
	ViewRules    View = "Rules"
	ViewFeed     View = "Feed"
	ViewLogs     View = "Logs"
)

// Backend is the subset of the service the terminal UI drives.
type Backend interface {
	Location() *time.Location
	Changes() <-chan struct{}
	SyncStatus() service.SyncStatus

	TasksForDate(ctx context.Context, date string) []model.TaskRecord
	Markers(ctx context.Context, day time.Time) map[string]model.ReminderLevel
	Holidays(ctx context.Context, from, to string) []model.Holiday
	DeleteTask(ctx context.Context, id int64) error

	ShiftRules(ctx context.Context) ([]model.ShiftRule, error)
	SaveShiftRule(ctx context.Context, rule model.ShiftRule) (model.ShiftRule, reconcile.Report, error)
	DeleteShiftRule(ctx context.Context, id int64) error
	Anniversaries(ctx context.Context) ([]model.Anniversary, error)
	SaveAnniversary(ctx context.Context, ann model.Anniversary) (model.Anniversary, reconcile.Report, error)
	DeleteAnniversary(ctx context.Context, id int64) error

	Acknowledge(ctx context.Context, taskID int64) error
	DismissNotification(ctx context.Context, taskID int64) error
	OpenTarget(ctx context.Context, taskID int64) error

	Feed(ctx context.Context) []model.FeedItem
	CreatePost(ctx context.Context, content string, imagePaths []string, linkedTaskIDs []int64) (model.Post, error)
	DeletePost(ctx context.Context, id int64) error

	SyncHolidays(ctx context.Context) (holiday.Result, error)
	Recover(ctx context.Context, reason string) service.Recovery
	ImportInterviews(ctx context.Context) service.ImportResult
}

type StatusBar struct {
	Text    string
	IsError bool
}

type GlobalKeyMap struct {
	Calendar string
	Rules    string
	Feed     string
	Logs     string
	Sync     string
	Help     string
	Quit     string
}

type CalendarState struct {
	FocusDate time.Time
	Markers   map[string]model.ReminderLevel
	Holidays  map[string]model.Holiday
	Items     []model.TaskRecord
	Cursor    int
}

// RuleRef points at one row of the combined rules list.
type RuleRef struct {
	Source model.SourceType
	ID     int64
}

type RulesState struct {
	ShiftRules    []model.ShiftRule
	Anniversaries []model.Anniversary
	Cursor        int
}

type FeedState struct {
	Items  []model.FeedItem
	Cursor int
}

type LogsState struct {
	Path  string
	Lines []string
}

// AlarmPrompt is the full-screen prompt shown while an alarm rings. Alarms
// queue up; the oldest ringing one is shown.
type AlarmPrompt struct {
	TaskID        int64
	Title         string
	TargetPkgName string
	SessionID     string
	At            time.Time
}

type Notification struct {
	TaskID int64
	Title  string
	At     time.Time
}

type CommandPaletteState struct {
	Active bool
	Input  string
}

type Model struct {
	CurrentView   View
	Calendar      CalendarState
	Rules         RulesState
	Feed          FeedState
	Logs          LogsState
	Alarms        []AlarmPrompt
	Notifications []Notification
	Palette       CommandPaletteState
	HelpVisible   bool
	Syncing       bool
	Status        StatusBar
	Keys          GlobalKeyMap
	Quitting      bool
	LastError     error

	ctx     context.Context
	backend Backend
	events  <-chan delivery.Event
	now     func() time.Time
	loc     *time.Location

	commandInput textinput.Model
	syncSpinner  spinner.Model
	helpModel    help.Model
	feedViewport viewport.Model
	logViewport  viewport.Model
}

type Options struct {
	Context context.Context
	Backend Backend
	// Events is the delivery handler's event stream.
	Events  <-chan delivery.Event
	Now     func() time.Time
	LogPath string
}

const maxNotifications = 5

func NewModel(opts Options) Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	loc := time.Local
	if opts.Backend != nil && opts.Backend.Location() != nil {
		loc = opts.Backend.Location()
	}

	m := Model{
		CurrentView: ViewCalendar,
		Calendar: CalendarState{
			FocusDate: model.DateOf(opts.Now(), loc),
		},
		Logs: LogsState{Path: opts.LogPath},
		Keys: GlobalKeyMap{
			Calendar: "1",
			Rules:    "2",
			Feed:     "3",
			Logs:     "4",
			Sync:     "S",
			Help:     "?",
			Quit:     "q",
		},
		ctx:     opts.Context,
		backend: opts.Backend,
		events:  opts.Events,
		now:     opts.Now,
		loc:     loc,
	}

	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.Placeholder = "shift, anniv, note, sync, regen, ack, delete, goto, mail"
	m.commandInput.CharLimit = 512

	m.syncSpinner = spinner.New()
	m.syncSpinner.Spinner = spinner.Line

	m.helpModel = help.New()
	m.helpModel.ShowAll = true

	m.feedViewport = viewport.New(56, 14)
	m.logViewport = viewport.New(56, 16)

	if opts.Backend != nil {
		m.Syncing = opts.Backend.SyncStatus().State == service.SyncRunning
	}
	m = m.reload()
	return m
}
