package command

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandNotFound indicates no command is registered under the name.
	ErrCommandNotFound = errors.New("command not found")
	// ErrArgumentShape indicates arguments of the wrong representation.
	ErrArgumentShape = errors.New("argument shape does not match command")
	// ErrCommandDisabled indicates a disabled legacy command.
	ErrCommandDisabled = errors.New("command is disabled")
	// ErrDuplicateCommand indicates a name registered twice.
	ErrDuplicateCommand = errors.New("command already registered")
)

// UserError is a soft failure whose message is shown to the user.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

// UserErrorf builds a UserError.
func UserErrorf(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}
