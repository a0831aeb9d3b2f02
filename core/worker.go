package core

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/searchktools/static-server/core/middleware"
	"github.com/searchktools/static-server/core/observability"
	"github.com/searchktools/static-server/core/poller"
	"github.com/searchktools/static-server/core/pools"
)

// Worker accepts connections from a shared listening socket and hands them
// to its own thread pool. Several workers, in one process or many, may
// share the same listener; the kernel decides which one gets a connection.
type Worker struct {
	id      int
	lfd     int
	poller  poller.Poller
	pool    *pools.ThreadPool
	metrics *observability.Metrics
	verbose bool

	wakeMu       sync.Mutex
	wakeR, wakeW int
	closeOnce    sync.Once

	acceptLog rate.Sometimes
	waitLog   rate.Sometimes
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	ID      int
	Threads int
	Handler *ConnHandler
	Metrics *observability.Metrics
	Verbose bool
}

// NewWorker prepares a worker on the non-blocking listening descriptor lfd:
// it creates the readiness notifier, registers the listener and a wake pipe,
// and starts the thread pool.
func NewWorker(lfd int, opts WorkerOptions) (*Worker, error) {
	p, err := poller.NewPoller()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotifierCreate, err)
	}

	var pipe [2]int
	if err := unix.Pipe(pipe[:]); err != nil {
		p.Close()
		return nil, fmt.Errorf("%w: wake pipe: %w", ErrNotifierCreate, err)
	}
	for _, fd := range pipe {
		unix.CloseOnExec(fd)
		unix.SetNonblock(fd, true)
	}

	for _, fd := range []int{lfd, pipe[0]} {
		if err := p.Add(fd); err != nil {
			p.Close()
			unix.Close(pipe[0])
			unix.Close(pipe[1])
			return nil, fmt.Errorf("%w: %w", ErrNotifierRegister, err)
		}
	}

	w := &Worker{
		id:        opts.ID,
		lfd:       lfd,
		poller:    p,
		metrics:   opts.Metrics,
		verbose:   opts.Verbose,
		wakeR:     pipe[0],
		wakeW:     pipe[1],
		acceptLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
		waitLog:   rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	w.pool = pools.NewThreadPool(opts.Threads, middleware.Chain(opts.Handler.Serve, middleware.Recovery(nil)))
	return w, nil
}

// Run waits for readiness and accepts until ctx is cancelled, then destroys
// the pool (queued connections are closed unserved) and releases the
// notifier.
func (w *Worker) Run(ctx context.Context) error {
	defer w.close()
	stop := context.AfterFunc(ctx, w.wake)
	defer stop()

	if w.verbose {
		log.Printf("Worker %d waiting for connections (%d threads)", w.id, w.pool.Stats().Threads)
	}

	for {
		fds, err := w.poller.Wait(MaxEvents, -1)
		if err != nil {
			err = w.classifyWait(err)
			if IsRetryable(err) {
				continue
			}
			w.metrics.PollerWaitError()
			w.waitLog.Do(func() { log.Printf("Worker %d: %v", w.id, err) })
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		for _, fd := range fds {
			switch fd {
			case w.wakeR:
				if ctx.Err() != nil {
					return nil
				}
			case w.lfd:
				w.drainAccept()
			}
		}
	}
}

func (w *Worker) classifyWait(err error) error {
	if poller.IsTransient(err) {
		return fmt.Errorf("%w: %w", ErrWaitInterrupted, err)
	}
	return err
}

// drainAccept accepts until the listener reports EAGAIN. Edge-triggered
// registration reports readiness once, so stopping early would strand
// pending connections.
func (w *Worker) drainAccept() {
	for {
		nfd, _, err := unix.Accept(w.lfd)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR, unix.ECONNABORTED:
				continue
			}
			w.metrics.AcceptError()
			w.acceptLog.Do(func() { log.Printf("Worker %d accept error: %v", w.id, err) })
			return
		}
		unix.CloseOnExec(nfd)

		conn, err := fdConn(nfd)
		if err != nil {
			w.acceptLog.Do(func() { log.Printf("Worker %d: %v", w.id, err) })
			continue
		}
		w.metrics.ConnAccepted()
		if w.verbose {
			log.Printf("Worker %d accepted %s", w.id, conn.RemoteAddr())
		}

		w.metrics.JobQueued()
		if err := w.pool.Enqueue(conn); err != nil {
			w.metrics.JobsDiscarded(1)
			conn.Close()
			return
		}
	}
}

// fdConn wraps an accepted descriptor in a net.Conn backed by the runtime
// netpoller. nfd is consumed.
func fdConn(nfd int) (net.Conn, error) {
	f := os.NewFile(uintptr(nfd), "")
	defer f.Close()
	conn, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("wrap fd %d: %w", nfd, err)
	}
	return conn, nil
}

func (w *Worker) wake() {
	w.wakeMu.Lock()
	defer w.wakeMu.Unlock()
	if w.wakeW >= 0 {
		unix.Write(w.wakeW, []byte{1})
	}
}

// Close releases a worker that is not running. Run closes the worker
// itself when it returns.
func (w *Worker) Close() {
	w.close()
}

func (w *Worker) close() {
	w.closeOnce.Do(w.release)
}

func (w *Worker) release() {
	discarded := w.pool.Destroy()
	w.metrics.JobsDiscarded(discarded)
	if w.verbose {
		log.Printf("Worker %d stopped, %d queued connections discarded", w.id, discarded)
		log.Print(w.StatsText())
	}
	w.poller.Close()

	w.wakeMu.Lock()
	unix.Close(w.wakeR)
	unix.Close(w.wakeW)
	w.wakeR, w.wakeW = -1, -1
	w.wakeMu.Unlock()
}
