package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/shiftd/internal/model"
)

type Type string

const (
	TypeShift  Type = "shift"
	TypeAnniv  Type = "anniv"
	TypeNote   Type = "note"
	TypeSync   Type = "sync"
	TypeRegen  Type = "regen"
	TypeAck    Type = "ack"
	TypeDelete Type = "delete"
	TypeGoto   Type = "goto"
	TypeMail   Type = "mail"
)

type ErrorCode string

const (
	ErrCodeEmptyInput      ErrorCode = "empty_input"
	ErrCodeUnknownCommand  ErrorCode = "unknown_command"
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeHandlerMissing  ErrorCode = "handler_missing"
)

type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(format string, args ...any) error {
	return &CommandError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// ShiftArgs describes a rotation:
//
//	/shift Night rotation start:2024-06-01 cycle:3 d0=08:00,20:00 d2=21:30!1 pkg:org.gnome.clocks skip-holiday
//
// dN= lists the slots of cycle day N; a trailing !L sets that day's level.
type ShiftArgs struct {
	Title       string
	StartDate   string
	CycleDays   int
	Days        []model.DayConfig
	SkipHoliday bool
	Level       model.ReminderLevel
}

func (a ShiftArgs) Rule(loc *time.Location) (model.ShiftRule, error) {
	start, err := model.ParseDate(a.StartDate, loc)
	if err != nil {
		return model.ShiftRule{}, invalid("start must be YYYY-MM-DD")
	}
	rule := model.ShiftRule{
		Title:                a.Title,
		StartDate:            start,
		CycleDays:            a.CycleDays,
		ShiftConfig:          a.Days,
		SkipHoliday:          a.SkipHoliday,
		DefaultReminderLevel: a.Level,
	}
	return rule, rule.Validate()
}

// AnnivArgs: /anniv Mom's birthday date:1960-06-15 at:08:30 level:2
type AnnivArgs struct {
	Title   string
	Date    string
	HasTime bool
	Hour    int
	Minute  int
	Level   model.ReminderLevel
}

func (a AnnivArgs) Anniversary(loc *time.Location) model.Anniversary {
	ann := model.Anniversary{Title: a.Title, TargetDate: a.Date, ReminderLevel: a.Level}
	if a.HasTime {
		ann.SetClock(a.Hour, a.Minute, loc)
	}
	return ann
}

type NoteArgs struct {
	Content string
}

type AckArgs struct {
	TaskID int64
}

type DeleteArgs struct {
	Kind string
	ID   int64
}

type GotoArgs struct {
	Date  string
	Today bool
}

type Command struct {
	Type   Type
	Raw    string
	Shift  *ShiftArgs
	Anniv  *AnnivArgs
	Note   *NoteArgs
	Ack    *AckArgs
	Delete *DeleteArgs
	Goto   *GotoArgs
}

func Parse(input string) (Command, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}
	if strings.HasPrefix(raw, "/") {
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "/"))
	}
	if raw == "" {
		return Command{}, &CommandError{Code: ErrCodeEmptyInput, Message: "command is empty"}
	}

	parts := strings.Fields(raw)
	head := strings.ToLower(parts[0])
	args := parts[1:]

	switch Type(head) {
	case TypeShift:
		return parseShift(input, args)
	case TypeAnniv:
		return parseAnniv(input, args)
	case TypeNote:
		content := strings.TrimSpace(strings.Join(args, " "))
		if content == "" {
			return Command{}, invalid("note requires text")
		}
		return Command{Type: TypeNote, Raw: input, Note: &NoteArgs{Content: content}}, nil
	case TypeSync, TypeRegen, TypeMail:
		return Command{Type: Type(head), Raw: input}, nil
	case TypeAck:
		return parseAck(input, args)
	case TypeDelete:
		return parseDelete(input, args)
	case TypeGoto:
		return parseGoto(input, args)
	default:
		return Command{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unsupported command: %s", head)}
	}
}

func parseShift(raw string, args []string) (Command, error) {
	out := ShiftArgs{Level: model.ReminderAlarm}
	title := make([]string, 0, len(args))
	pkg := ""
	explicit := make([]bool, 0, 4)
	for _, arg := range args {
		lower := strings.ToLower(arg)
		switch {
		case strings.HasPrefix(lower, "start:"):
			out.StartDate = arg[len("start:"):]
		case strings.HasPrefix(lower, "cycle:"):
			n, err := strconv.Atoi(arg[len("cycle:"):])
			if err != nil || n <= 0 {
				return Command{}, invalid("cycle must be a positive number of days")
			}
			out.CycleDays = n
		case strings.HasPrefix(lower, "level:"):
			lvl, err := parseLevel(arg[len("level:"):])
			if err != nil {
				return Command{}, err
			}
			out.Level = lvl
		case strings.HasPrefix(lower, "pkg:"):
			pkg = arg[len("pkg:"):]
		case lower == "skip-holiday" || lower == "skip:holiday":
			out.SkipHoliday = true
		case len(lower) > 2 && lower[0] == 'd' && strings.Contains(lower, "="):
			day, hasLevel, err := parseDay(arg)
			if err != nil {
				return Command{}, err
			}
			out.Days = append(out.Days, day)
			explicit = append(explicit, hasLevel)
		default:
			title = append(title, arg)
		}
	}
	out.Title = strings.TrimSpace(strings.Join(title, " "))
	switch {
	case out.Title == "":
		return Command{}, invalid("shift requires a title")
	case out.StartDate == "":
		return Command{}, invalid("shift requires start:YYYY-MM-DD")
	case out.CycleDays == 0:
		return Command{}, invalid("shift requires cycle:N")
	case len(out.Days) == 0:
		return Command{}, invalid("shift requires at least one dN=HH:mm slot")
	}
	for i := range out.Days {
		if !explicit[i] {
			out.Days[i].ReminderLevel = out.Level
		}
		if out.Days[i].DayIndex >= out.CycleDays {
			return Command{}, invalid("day %d is outside a %d-day cycle", out.Days[i].DayIndex, out.CycleDays)
		}
		if pkg != "" {
			for j := range out.Days[i].TimeSlots {
				out.Days[i].TimeSlots[j].TargetPkgName = pkg
			}
		}
	}
	return Command{Type: TypeShift, Raw: raw, Shift: &out}, nil
}

// parseDay reads "d0=08:00,20:00" or "d2=21:30!1". hasLevel reports an
// explicit !L suffix.
func parseDay(arg string) (day model.DayConfig, hasLevel bool, err error) {
	key, value, _ := strings.Cut(arg, "=")
	idx, err := strconv.Atoi(key[1:])
	if err != nil || idx < 0 {
		return model.DayConfig{}, false, invalid("bad day index in %q", arg)
	}
	day = model.DayConfig{DayIndex: idx}
	if times, lvl, ok := strings.Cut(value, "!"); ok {
		value = times
		if day.ReminderLevel, err = parseLevel(lvl); err != nil {
			return model.DayConfig{}, false, err
		}
		hasLevel = true
	}
	for _, t := range strings.Split(value, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, _, err := model.ParseClock(t); err != nil {
			return model.DayConfig{}, false, invalid("bad time %q for day %d", t, idx)
		}
		day.TimeSlots = append(day.TimeSlots, model.TimeSlot{Time: t})
	}
	if len(day.TimeSlots) == 0 {
		return model.DayConfig{}, false, invalid("day %d has no times", idx)
	}
	return day, hasLevel, nil
}

func parseLevel(raw string) (model.ReminderLevel, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	lvl := model.ReminderLevel(n)
	if err != nil || !lvl.IsValid() {
		return 0, invalid("level must be 0, 1 or 2")
	}
	return lvl, nil
}

func parseAnniv(raw string, args []string) (Command, error) {
	out := AnnivArgs{Level: model.ReminderSilent}
	title := make([]string, 0, len(args))
	for _, arg := range args {
		lower := strings.ToLower(arg)
		switch {
		case strings.HasPrefix(lower, "date:"):
			out.Date = arg[len("date:"):]
			if _, err := time.Parse(model.DateLayout, out.Date); err != nil {
				return Command{}, invalid("date must be YYYY-MM-DD")
			}
		case strings.HasPrefix(lower, "at:"):
			h, m, err := model.ParseClock(arg[len("at:"):])
			if err != nil {
				return Command{}, invalid("at must be HH:mm")
			}
			out.HasTime, out.Hour, out.Minute = true, h, m
		case strings.HasPrefix(lower, "level:"):
			lvl, err := parseLevel(arg[len("level:"):])
			if err != nil {
				return Command{}, err
			}
			out.Level = lvl
		default:
			title = append(title, arg)
		}
	}
	out.Title = strings.TrimSpace(strings.Join(title, " "))
	if out.Title == "" {
		return Command{}, invalid("anniv requires a title")
	}
	if out.Date == "" {
		return Command{}, invalid("anniv requires date:YYYY-MM-DD")
	}
	return Command{Type: TypeAnniv, Raw: raw, Anniv: &out}, nil
}

func parseAck(raw string, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, invalid("ack requires a task id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return Command{}, invalid("ack requires a numeric task id")
	}
	return Command{Type: TypeAck, Raw: raw, Ack: &AckArgs{TaskID: id}}, nil
}

func parseDelete(raw string, args []string) (Command, error) {
	if len(args) != 2 {
		return Command{}, invalid("delete requires a kind and an id")
	}
	kind := strings.ToLower(args[0])
	switch kind {
	case "shift", "anniv", "task", "note":
	default:
		return Command{}, invalid("delete kind must be shift, anniv, task or note")
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return Command{}, invalid("delete requires a numeric id")
	}
	return Command{Type: TypeDelete, Raw: raw, Delete: &DeleteArgs{Kind: kind, ID: id}}, nil
}

func parseGoto(raw string, args []string) (Command, error) {
	if len(args) != 1 {
		return Command{}, invalid("goto requires a date or today")
	}
	if strings.EqualFold(args[0], "today") {
		return Command{Type: TypeGoto, Raw: raw, Goto: &GotoArgs{Today: true}}, nil
	}
	if _, err := time.Parse(model.DateLayout, args[0]); err != nil {
		return Command{}, invalid("goto date must be YYYY-MM-DD")
	}
	return Command{Type: TypeGoto, Raw: raw, Goto: &GotoArgs{Date: args[0]}}, nil
}
