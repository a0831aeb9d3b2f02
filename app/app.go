// Package app assembles the server from its configuration and runs it in
// one of its roles: supervisor (prefork or in-process) or worker.
package app

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/searchktools/static-server/config"
	"github.com/searchktools/static-server/core"
)

// App is one server process
type App struct {
	cfg *config.Config
}

// New creates an application instance
func New(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Run creates the listening socket and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := core.Listen(a.cfg.Port)
	if err != nil {
		return err
	}
	defer ln.Close()

	return a.Serve(ctx, ln)
}

// Serve runs the supervisor role on ln: either worker processes that
// inherit it, or in-process acceptor loops when cfg.InProcess is set.
func (a *App) Serve(ctx context.Context, ln *net.TCPListener) error {
	mode := "prefork"
	if a.cfg.InProcess {
		mode = "in-process"
	}
	log.Printf("Serving %s on %s (%s, %d workers x %d threads, zerocopy=%v)",
		a.cfg.Root, ln.Addr(), mode, a.cfg.Workers, a.cfg.Threads, a.cfg.ZeroCopy)

	if a.cfg.InProcess {
		return a.serveInProcess(ctx, ln)
	}

	sup, err := core.NewSupervisor(ln, core.SupervisorOptions{
		Workers: a.cfg.Workers,
		Args:    a.cfg.WorkerArgs(),
	})
	if err != nil {
		return err
	}
	err = sup.Run(ctx)
	log.Printf("Shut down")
	return err
}

func (a *App) serveInProcess(ctx context.Context, ln *net.TCPListener) error {
	lfd, lf, err := core.ListenerFD(ln)
	if err != nil {
		return err
	}
	defer lf.Close()

	p, err := newProcess(a.cfg, 0, a.cfg.MetricsAddr)
	if err != nil {
		return err
	}
	defer p.close()

	workers := make([]*core.Worker, 0, a.cfg.Workers)
	for i := 0; i < a.cfg.Workers; i++ {
		w, err := p.newWorker(lfd, i)
		if err != nil {
			for _, w := range workers {
				w.Close()
			}
			return fmt.Errorf("worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}

	err = core.RunWorkers(ctx, workers)
	log.Printf("Shut down")
	return err
}

// RunWorker runs the worker role of a re-executed process: it serves the
// inherited listener until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context, id int) error {
	log.SetPrefix(fmt.Sprintf("[worker %d] ", id))

	lfd, err := core.InheritedListener()
	if err != nil {
		return err
	}

	metricsAddr, err := a.cfg.MetricsAddrFor(id)
	if err != nil {
		return err
	}
	p, err := newProcess(a.cfg, id, metricsAddr)
	if err != nil {
		return err
	}
	defer p.close()

	w, err := p.newWorker(lfd, id)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
