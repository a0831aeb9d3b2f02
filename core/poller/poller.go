// Package poller wraps the platform readiness-notification primitive
// (epoll on Linux, kqueue on the BSDs and macOS) behind one interface.
//
// Registrations are edge-triggered read interest: a descriptor is reported
// once per readiness transition, so callers must drain it (accept/read until
// EAGAIN) before waiting again.
package poller

import (
	"errors"
	"fmt"
)

// Poller is the I/O readiness interface
type Poller interface {
	// Add registers fd for edge-triggered read readiness.
	Add(fd int) error
	// Wait blocks until at least one registered descriptor is ready, the
	// timeout (milliseconds, -1 = forever) expires, or the wait is
	// interrupted. It returns at most maxEvents descriptors.
	Wait(maxEvents, timeoutMs int) ([]int, error)
	Close() error
}

var (
	ErrCreate      = errors.New("poller: create failed")
	ErrRegister    = errors.New("poller: register failed")
	ErrWait        = errors.New("poller: wait failed")
	ErrTransient   = errors.New("poller: wait interrupted")
	ErrUnsupported = errors.New("poller: platform not supported")
	ErrClosed      = errors.New("poller: closed")
)

// IsTransient reports whether err is a recoverable wait failure the caller
// should log and retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func waitArgs(maxEvents int) error {
	if maxEvents <= 0 {
		return fmt.Errorf("%w: maxEvents must be positive, got %d", ErrWait, maxEvents)
	}
	return nil
}
