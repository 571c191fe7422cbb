package directive

import "fmt"

// ParseError describes a malformed directive command.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return "directive: " + e.Msg }

func errorf(format string, args ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}
