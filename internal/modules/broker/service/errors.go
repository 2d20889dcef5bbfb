package service

import (
	"github.com/pkg/errors"
)

// ErrBrokerClosed is returned by Subscribe after Shutdown.
var ErrBrokerClosed = errors.New("broker is shut down")

func errPanic(p any) error {
	return errors.Errorf("handler panic: %v", p)
}

// permanentError marks a handler failure that must not be retried
// (validation failures, lock conflicts). The message goes straight to
// the failure path, bypassing the backoff budget.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the broker fails the message immediately
// instead of rescheduling it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
