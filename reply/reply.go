// Package reply builds the single status line the gateway sends back for each command.
//
// Every reply has the shape "<code> <message>", where code is StatusOK for success and
// StatusFail for failure.
package reply

import "fmt"

const (
	// StatusOK prefixes successful replies.
	StatusOK = "000"
	// StatusFail prefixes failed replies.
	StatusFail = "404"
	// MaxLength is the line length budget of the transport, in bytes, without the line terminator.
	MaxLength = 100
)

// Format builds a reply line. It never truncates msg.
func Format(ok bool, msg string) string {
	if ok {
		return StatusOK + " " + msg
	}

	return StatusFail + " " + msg
}

// OK builds a success reply from a format string.
func OK(format string, args ...any) string {
	return Format(true, fmt.Sprintf(format, args...))
}

// Fail builds a failure reply from a format string.
func Fail(format string, args ...any) string {
	return Format(false, fmt.Sprintf(format, args...))
}

// IsOK reports whether line is a success reply.
func IsOK(line string) bool {
	return len(line) >= len(StatusOK) && line[:len(StatusOK)] == StatusOK
}

// ExceedsBudget reports whether line does not fit the transport line budget.
func ExceedsBudget(line string) bool {
	return len(line) > MaxLength
}
