package commands

import "fmt"

type Result struct {
	Message string
}

type Handlers struct {
	Shift  func(ShiftArgs) (Result, error)
	Anniv  func(AnnivArgs) (Result, error)
	Note   func(NoteArgs) (Result, error)
	Sync   func() (Result, error)
	Regen  func() (Result, error)
	Ack    func(AckArgs) (Result, error)
	Delete func(DeleteArgs) (Result, error)
	Goto   func(GotoArgs) (Result, error)
	Mail   func() (Result, error)
}

func missing(name string) error {
	return &CommandError{Code: ErrCodeHandlerMissing, Message: name + " handler not configured"}
}

func Execute(cmd Command, handlers Handlers) (Result, error) {
	switch cmd.Type {
	case TypeShift:
		if handlers.Shift == nil {
			return Result{}, missing("shift")
		}
		return handlers.Shift(*cmd.Shift)
	case TypeAnniv:
		if handlers.Anniv == nil {
			return Result{}, missing("anniv")
		}
		return handlers.Anniv(*cmd.Anniv)
	case TypeNote:
		if handlers.Note == nil {
			return Result{}, missing("note")
		}
		return handlers.Note(*cmd.Note)
	case TypeSync:
		if handlers.Sync == nil {
			return Result{}, missing("sync")
		}
		return handlers.Sync()
	case TypeRegen:
		if handlers.Regen == nil {
			return Result{}, missing("regen")
		}
		return handlers.Regen()
	case TypeAck:
		if handlers.Ack == nil {
			return Result{}, missing("ack")
		}
		return handlers.Ack(*cmd.Ack)
	case TypeDelete:
		if handlers.Delete == nil {
			return Result{}, missing("delete")
		}
		return handlers.Delete(*cmd.Delete)
	case TypeGoto:
		if handlers.Goto == nil {
			return Result{}, missing("goto")
		}
		return handlers.Goto(*cmd.Goto)
	case TypeMail:
		if handlers.Mail == nil {
			return Result{}, missing("mail")
		}
		return handlers.Mail()
	default:
		return Result{}, &CommandError{Code: ErrCodeUnknownCommand, Message: fmt.Sprintf("unknown command type: %s", cmd.Type)}
	}
}
