package command

import (
	"errors"
	"fmt"
)

// ErrMalformedCommand is matched by every *MalformedCommandError through errors.Is.
var ErrMalformedCommand = errors.New("malformed command")

// MalformedCommandError reports a line that could not be parsed.
type MalformedCommandError struct {
	// Line is the original input line.
	Line string
	// Reason describes the first grammar violation found.
	Reason string
}

func (e *MalformedCommandError) Error() string {
	return fmt.Sprintf("malformed command %q: %s", e.Line, e.Reason)
}

// Is reports whether target is ErrMalformedCommand.
func (e *MalformedCommandError) Is(target error) bool {
	return target == ErrMalformedCommand
}

func malformed(line string, format string, args ...any) *MalformedCommandError {
	return &MalformedCommandError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
