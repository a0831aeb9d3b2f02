//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package poller

import "fmt"

// NewPoller reports ErrUnsupported on platforms without epoll or kqueue.
func NewPoller() (Poller, error) {
	return nil, fmt.Errorf("%w: %w", ErrCreate, ErrUnsupported)
}
