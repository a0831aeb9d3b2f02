//go:build linux

package poller

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// EpollPoller is an epoll-based readiness notifier
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// NewPoller creates a new Poller (Linux)
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: epoll_create1: %w", ErrCreate, err)
	}

	return &EpollPoller{epfd: epfd}, nil
}

// Add adds a file descriptor to the watch list
func (p *EpollPoller) Add(fd int) error {
	if p.epfd < 0 {
		return fmt.Errorf("%w: %w", ErrRegister, ErrClosed)
	}
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET,
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("%w: epoll_ctl fd=%d: %w", ErrRegister, fd, err)
	}
	return nil
}

// Wait waits for readiness events
func (p *EpollPoller) Wait(maxEvents, timeoutMs int) ([]int, error) {
	if err := waitArgs(maxEvents); err != nil {
		return nil, err
	}
	if cap(p.events) < maxEvents {
		p.events = make([]unix.EpollEvent, maxEvents)
	}
	events := p.events[:maxEvents]

	n, err := unix.EpollWait(p.epfd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, fmt.Errorf("%w: %w", ErrTransient, err)
		}
		return nil, fmt.Errorf("%w: epoll_wait: %w", ErrWait, err)
	}

	fds := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fds = append(fds, int(events[i].Fd))
	}
	return fds, nil
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	if p.epfd < 0 {
		return nil
	}
	err := unix.Close(p.epfd)
	p.epfd = -1
	return err
}
