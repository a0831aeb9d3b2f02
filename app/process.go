package app

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/searchktools/static-server/config"
	"github.com/searchktools/static-server/core"
	"github.com/searchktools/static-server/core/cache"
	"github.com/searchktools/static-server/core/observability"
	"github.com/searchktools/static-server/core/perflog"
	"github.com/searchktools/static-server/core/pools"
	"github.com/searchktools/static-server/core/static"
)

// process holds what the workers of one OS process share: the file cache,
// the perf log, the metrics and the connection handler.
type process struct {
	cfg     *config.Config
	perf    *perflog.Log
	metrics *observability.Metrics
	server  *observability.Server
	handler *core.ConnHandler
}

func newProcess(cfg *config.Config, id int, metricsAddr string) (*process, error) {
	if gc := cfg.GC(); gc.Enabled() {
		pools.ApplyGCConfig(gc)
		if cfg.Verbose {
			log.Printf("GC tuning applied: GOGC=%d memory limit=%d", gc.GOGC, gc.MemoryLimit)
		}
	}

	p := &process{cfg: cfg}

	if cfg.PerfLog != "" {
		perf, err := perflog.Open(cfg.PerfLog, perflog.Format(cfg.PerfLogFormat))
		if err != nil {
			return nil, err
		}
		p.perf = perf
	}

	reg := observability.NewRegistry()
	p.metrics = observability.NewMetrics(reg, strconv.Itoa(id))
	if metricsAddr != "" {
		srv, err := observability.StartServer(metricsAddr, reg)
		if err != nil {
			p.close()
			return nil, err
		}
		p.server = srv
	}

	responder := static.New(static.Options{
		Root:     cfg.Root,
		Index:    cfg.Index,
		ZeroCopy: cfg.ZeroCopy,
		Verbose:  cfg.Verbose,
		Cache:    cache.New(cfg.CacheSlots),
		PerfLog:  p.perf,
		Metrics:  p.metrics,
	})
	p.handler = core.NewConnHandler(responder, cfg.ReadTimeout, p.metrics, cfg.Verbose)
	return p, nil
}

func (p *process) newWorker(lfd, id int) (*core.Worker, error) {
	return core.NewWorker(lfd, core.WorkerOptions{
		ID:      id,
		Threads: p.cfg.Threads,
		Handler: p.handler,
		Metrics: p.metrics,
		Verbose: p.cfg.Verbose,
	})
}

func (p *process) close() {
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.server.Shutdown(ctx)
	}
	p.perf.Close()
}
