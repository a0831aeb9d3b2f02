package core

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultShutdownTimeout bounds how long the supervisor waits for workers
// to exit after SIGTERM before killing them.
const DefaultShutdownTimeout = 10 * time.Second

// Listen creates the shared listening socket on every interface.
func Listen(port int) (*net.TCPListener, error) {
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListen, err)
	}
	return ln, nil
}

// ListenerFD returns a non-blocking descriptor for ln that workers in this
// process can register and accept on. The returned file owns the
// descriptor and must stay referenced while it is in use.
func ListenerFD(ln *net.TCPListener) (int, *os.File, error) {
	f, err := ln.File()
	if err != nil {
		return -1, nil, fmt.Errorf("%w: %w", ErrListen, err)
	}
	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		f.Close()
		return -1, nil, fmt.Errorf("%w: set nonblock: %w", ErrListen, err)
	}
	return fd, f, nil
}

// InheritedListener returns the listening socket passed by the supervisor
// as InheritedListenerFD, switched to non-blocking mode.
func InheritedListener() (int, error) {
	fd := InheritedListenerFD
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ACCEPTCONN)
	if err != nil {
		return -1, fmt.Errorf("%w: fd %d: %w", ErrListen, fd, err)
	}
	if v == 0 {
		return -1, fmt.Errorf("%w: fd %d is not listening", ErrListen, fd)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		return -1, fmt.Errorf("%w: set nonblock: %w", ErrListen, err)
	}
	return fd, nil
}

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	// Workers is the number of worker processes
	Workers int
	// Executable is re-executed for every worker (default: this binary)
	Executable string
	// Args are the worker's command-line arguments
	Args []string
	// Env is appended to the inherited environment
	Env []string

	ShutdownTimeout time.Duration
}

// Supervisor owns the listening socket and a set of worker processes that
// inherit it.
type Supervisor struct {
	ln   *net.TCPListener
	lf   *os.File
	opts SupervisorOptions
}

// NewSupervisor prepares ln for inheritance by worker processes.
func NewSupervisor(ln *net.TCPListener, opts SupervisorOptions) (*Supervisor, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		opts.Executable = exe
	}

	lf, err := ln.File()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListen, err)
	}

	return &Supervisor{ln: ln, lf: lf, opts: opts}, nil
}

// Addr returns the listening address.
func (s *Supervisor) Addr() net.Addr {
	return s.ln.Addr()
}

type exitStatus struct {
	id  int
	err error
}

// Run starts the workers and waits for them. When ctx is cancelled the
// workers get SIGTERM, and are killed if they outlive ShutdownTimeout. Run
// returns nil after a requested shutdown and ErrWorkersExited if every
// worker ended on its own.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.lf.Close()

	exits := make(chan exitStatus, s.opts.Workers)
	procs := make(map[int]*exec.Cmd, s.opts.Workers)

	for i := 0; i < s.opts.Workers; i++ {
		cmd, err := s.spawn(i)
		if err != nil {
			s.terminate(procs, exits)
			return err
		}
		procs[i] = cmd
		go func(id int) {
			exits <- exitStatus{id: id, err: cmd.Wait()}
		}(i)
		log.Printf("Started worker %d (pid %d)", i, cmd.Process.Pid)
	}

	var lastErr error
	for len(procs) > 0 {
		select {
		case <-ctx.Done():
			s.terminate(procs, exits)
			return nil
		case st := <-exits:
			delete(procs, st.id)
			lastErr = st.err
			log.Printf("Worker %d exited: %v", st.id, describeExit(st.err))
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%w: last: %v", ErrWorkersExited, describeExit(lastErr))
}

func (s *Supervisor) spawn(id int) (*exec.Cmd, error) {
	cmd := exec.Command(s.opts.Executable, s.opts.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{s.lf}
	cmd.Env = append(os.Environ(), s.opts.Env...)
	cmd.Env = append(cmd.Env, WorkerIDEnv+"="+strconv.Itoa(id))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %d: %w", id, err)
	}
	return cmd, nil
}

// terminate signals every running worker and reaps it.
func (s *Supervisor) terminate(procs map[int]*exec.Cmd, exits <-chan exitStatus) {
	for _, cmd := range procs {
		cmd.Process.Signal(syscall.SIGTERM)
	}

	timer := time.NewTimer(s.opts.ShutdownTimeout)
	defer timer.Stop()

	for len(procs) > 0 {
		select {
		case st := <-exits:
			delete(procs, st.id)
		case <-timer.C:
			for id, cmd := range procs {
				log.Printf("Worker %d did not stop, killing", id)
				cmd.Process.Kill()
			}
			timer.Reset(s.opts.ShutdownTimeout)
		}
	}
}

func describeExit(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}

// RunWorkers runs workers in this process until ctx is cancelled and
// returns the first error any of them reported.
func RunWorkers(ctx context.Context, workers []*Worker) error {
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)

	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				once.Do(func() { firstErr = fmt.Errorf("worker %d: %w", w.id, err) })
			}
		}(w)
	}

	wg.Wait()
	return firstErr
}
