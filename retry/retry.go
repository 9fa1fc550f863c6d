// Package retry runs fallible operations a bounded number of times with a fixed delay.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/openetl/logger"
)

// Policy controls how often an operation is attempted.
// Tries must be at least 1. Delay is the fixed pause between attempts.
type Policy struct {
	Tries int
	Delay time.Duration
}

func (p Policy) validate() error {
	if p.Tries < 1 {
		return fmt.Errorf("retry tries must be >= 1, got %v", p.Tries)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry delay must be >= 0, got %v", p.Delay)
	}
	return nil
}

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %v attempt(s): %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Op is an operation that may be retried.
type Op func(ctx context.Context) error

// Do calls op until it succeeds or p.Tries attempts have failed.
// Each failure is logged at warn level. If ctx is cancelled while waiting, Do stops
// and returns an ExhaustedError holding the attempts made so far.
func Do(ctx context.Context, log logger.Logger, p Policy, op Op) error {
	if err := p.validate(); err != nil {
		return err
	}
	var last error
	for attempt := 1; attempt <= p.Tries; attempt++ {
		last = op(ctx)
		if last == nil {
			return nil
		}
		if log != nil {
			log.Warn(fmt.Sprintf("attempt %v of %v failed: %v", attempt, p.Tries, last))
		}
		if attempt == p.Tries {
			break
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return &ExhaustedError{Attempts: attempt, Last: errors.Wrap(err, last.Error())}
		}
	}
	return &ExhaustedError{Attempts: p.Tries, Last: last}
}

// Wrap returns op decorated with Do.
func Wrap(log logger.Logger, p Policy, op Op) Op {
	return func(ctx context.Context) error {
		return Do(ctx, log, p, op)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d == 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
