// Package retry runs an operation a bounded number of times.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	Attempts int           // total tries, at least one
	Backoff  time.Duration // pause between tries
}

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }
func (p *Permanent) Unwrap() error { return p.Err }

// Do calls op until it succeeds, returns a *Permanent error, the attempts
// are used up or ctx ends. It returns the last error from op.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := max(p.Attempts, 1)

	var err error
	for i := range attempts {
		if err = op(ctx); err == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		if i == attempts-1 {
			break
		}

		t := time.NewTimer(p.Backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
	}

	return err
}
