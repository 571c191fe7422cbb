package orchestrator

import (
	"errors"
	"sync"

	"go.uber.org/multierr"
)

// asyncErrors collects per-candidate failures from concurrent workers.
type asyncErrors struct {
	mu  sync.Mutex
	err error
}

func (e *asyncErrors) Append(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = multierr.Append(e.err, err)
}

func (e *asyncErrors) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Failures unpacks the failures combined in Summary.Failures.
func Failures(err error) []*Failure {
	var out []*Failure
	for _, e := range multierr.Errors(err) {
		var f *Failure
		if errors.As(e, &f) {
			out = append(out, f)
		}
	}
	return out
}
