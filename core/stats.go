package core

import (
	"encoding/json"
	"fmt"

	"github.com/searchktools/static-server/core/pools"
)

// WorkerStats is a snapshot of one worker's pool and the process runtime
type WorkerStats struct {
	Worker int                   `json:"worker"`
	Pool   pools.ThreadPoolStats `json:"pool"`
	GC     pools.GCStats         `json:"gc"`
}

// Stats returns a snapshot of the worker's statistics
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Worker: w.id,
		Pool:   w.pool.Stats(),
		GC:     pools.GetGCStats(),
	}
}

// StatsJSON returns the statistics as a JSON string
func (w *Worker) StatsJSON() string {
	data, _ := json.MarshalIndent(w.Stats(), "", "  ")
	return string(data)
}

// StatsText returns the statistics as human-readable text
func (w *Worker) StatsText() string {
	s := w.Stats()
	return fmt.Sprintf(`Worker %d Statistics
====================

Thread Pool:
  Threads:   %d
  Queued:    %d
  Enqueued:  %d
  Completed: %d
  Discarded: %d

Runtime:
  Goroutines: %d
  GC cycles:  %d
  Heap alloc: %d bytes
`,
		s.Worker,
		s.Pool.Threads, s.Pool.Queued, s.Pool.Enqueued, s.Pool.Completed, s.Pool.Discarded,
		s.GC.NumGoroutine, s.GC.NumGC, s.GC.AllocBytes,
	)
}
