//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package poller

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// KqueuePoller is a kqueue-based readiness notifier
type KqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

// NewPoller creates a new Poller (BSD/macOS)
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("%w: kqueue: %w", ErrCreate, err)
	}
	unix.CloseOnExec(kqfd)

	return &KqueuePoller{kqfd: kqfd}, nil
}

// Add adds a file descriptor to the watch list
func (p *KqueuePoller) Add(fd int) error {
	if p.kqfd < 0 {
		return fmt.Errorf("%w: %w", ErrRegister, ErrClosed)
	}
	// EV_CLEAR makes the registration edge-triggered
	var ev unix.Kevent_t
	unix.SetKevent(&ev, fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE|unix.EV_CLEAR)

	if _, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil); err != nil {
		return fmt.Errorf("%w: kevent fd=%d: %w", ErrRegister, fd, err)
	}
	return nil
}

// Wait waits for readiness events
func (p *KqueuePoller) Wait(maxEvents, timeoutMs int) ([]int, error) {
	if err := waitArgs(maxEvents); err != nil {
		return nil, err
	}
	if cap(p.events) < maxEvents {
		p.events = make([]unix.Kevent_t, maxEvents)
	}
	events := p.events[:maxEvents]

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}

	n, err := unix.Kevent(p.kqfd, nil, events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return nil, fmt.Errorf("%w: kevent wait: %w", ErrWait, err)
	}

	fds := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fds = append(fds, int(events[i].Ident))
	}
	return fds, nil
}

// Close closes the Poller
func (p *KqueuePoller) Close() error {
	if p.kqfd < 0 {
		return nil
	}
	err := unix.Close(p.kqfd)
	p.kqfd = -1
	return err
}
