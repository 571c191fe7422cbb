// Package pipelineerr classifies failures of the dataset pipeline. Only
// configuration failures stop a run; every other kind is scoped to a single
// candidate and reported without halting sibling work.
package pipelineerr

import (
	"errors"
	"fmt"
)

// Kind identifies which stage of the pipeline produced an error.
type Kind int

const (
	Unknown Kind = iota
	// Configuration covers malformed directives, inconsistent toggles and
	// invalid run files. It is fatal for the whole run.
	Configuration
	// Extraction covers a failing or unparseable graph-extraction tool run.
	Extraction
	// Encoding covers categorical values missing from a vocabulary and
	// numeric attributes that cannot be scaled.
	Encoding
	// Persistence covers sample and ledger writes.
	Persistence
	// Source covers the candidate store.
	Source
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Extraction:
		return "extraction"
	case Encoding:
		return "encoding"
	case Persistence:
		return "persistence"
	case Source:
		return "source"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error from a format string.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches kind and op to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
