package mapretry

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	// ErrDone is returned by Engine.Next once every source item has produced
	// its result. It plays the role io.EOF plays for readers.
	ErrDone = errors.New("mapretry: no more results")

	// ErrMissingDelay is returned when retries are requested but no minimum
	// delay was configured.
	ErrMissingDelay = errors.New("mapretry: retries configured without a minimum delay")

	// ErrQueueEmpty is returned by a blocking pop on an empty DelayQueue.
	ErrQueueEmpty = errors.New("mapretry: delay queue is empty")
)

// PanicError records a panic raised by a transformation function.
// The engine treats it like any other failed attempt.
type PanicError struct {
	Value any
	Name  Name
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: transformation panicked: %v", e.Name, e.Value)
}

// Failures combines the errors of every failed result into one error.
// It returns nil when all results succeeded. The combined error can be
// split again with multierr.Errors.
func Failures[In, Out any](results []Result[In, Out]) error {
	var err error
	for _, r := range results {
		if r.Err != nil {
			err = multierr.Append(err, fmt.Errorf("item %d after %d attempts: %w", r.Index, r.Attempts, r.Err))
		}
	}
	return err
}
