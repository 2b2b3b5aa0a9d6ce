// Package retry runs an operation with exponential backoff and jitter. The
// blacklist gate uses it to recompute a decision after a concurrent
// threshold change; the explorer client uses it for transient upstream
// failures.
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"time"
)

// MaxDelay caps a single backoff sleep.
const MaxDelay = 5 * time.Second

// cryptoInt64n returns a random int64 in [0, n) using crypto/rand.
func cryptoInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := binary.LittleEndian.Uint64(b[:]) >> 1
	return int64(v % uint64(n))
}

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Do calls fn up to maxAttempts times with exponential backoff and jitter.
// It stops early if:
//   - fn returns nil (success)
//   - fn returns a *PermanentError (returned unwrapped)
//   - ctx is cancelled
//
// baseDelay is doubled on each retry with +-25% jitter, capped at MaxDelay.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	_, err := DoValue(ctx, maxAttempts, baseDelay, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var (
		v     T
		err   error
		delay = baseDelay
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		v, err = fn()
		if err == nil {
			return v, nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return v, pe.Err
		}

		if attempt == maxAttempts-1 {
			break
		}

		jitter := delay / 4
		sleep := delay - jitter + time.Duration(cryptoInt64n(int64(2*jitter+1)))

		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-time.After(sleep):
		}

		delay = min(delay*2, MaxDelay)
	}

	return v, err
}
