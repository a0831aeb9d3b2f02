package pools

import (
	"errors"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

var ErrPoolStopped = errors.New("thread pool stopped")

// ConnHandler serves one connection until it is closed.
type ConnHandler func(conn net.Conn)

// Job is one accepted connection waiting for a worker.
type Job struct {
	Conn     net.Conn
	Enqueued time.Time
}

// ThreadPool runs a fixed number of workers over an unbounded FIFO of jobs.
// Each worker runs the handler to completion before taking the next job.
type ThreadPool struct {
	handler ConnHandler
	threads int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   jobQueue
	stopped bool

	wg sync.WaitGroup

	stats struct {
		enqueued  atomic.Uint64
		dequeued  atomic.Uint64
		completed atomic.Uint64
		discarded atomic.Uint64
		active    atomic.Int64
	}
}

// NewThreadPool starts n workers (runtime.NumCPU() when n <= 0).
func NewThreadPool(n int, handler ConnHandler) *ThreadPool {
	if n <= 0 {
		n = runtime.NumCPU()
	}

	p := &ThreadPool{
		handler: handler,
		threads: n,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}

	return p
}

// Enqueue appends conn to the queue and wakes one worker. It never blocks.
func (p *ThreadPool) Enqueue(conn net.Conn) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	p.queue.push(&Job{Conn: conn, Enqueued: time.Now()})
	p.mu.Unlock()

	p.stats.enqueued.Add(1)
	p.cond.Signal()
	return nil
}

func (p *ThreadPool) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for p.queue.len() == 0 && !p.stopped {
			p.cond.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		job := p.queue.pop()
		p.mu.Unlock()

		p.stats.dequeued.Add(1)
		p.stats.active.Add(1)
		p.handler(job.Conn)
		p.stats.active.Add(-1)
		p.stats.completed.Add(1)
	}
}

// Destroy stops the pool, waits for every worker to finish its current
// connection and closes the connections still queued. It returns the number
// of discarded jobs. Calling it again returns 0.
func (p *ThreadPool) Destroy() int {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return 0
	}
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	residual := p.queue.drain()
	p.mu.Unlock()

	for _, job := range residual {
		job.Conn.Close()
	}
	p.stats.discarded.Add(uint64(len(residual)))
	return len(residual)
}

// QueueLen returns the number of jobs waiting for a worker.
func (p *ThreadPool) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.len()
}

// Stats returns pool statistics
func (p *ThreadPool) Stats() ThreadPoolStats {
	return ThreadPoolStats{
		Threads:   p.threads,
		Queued:    p.QueueLen(),
		Enqueued:  p.stats.enqueued.Load(),
		Dequeued:  p.stats.dequeued.Load(),
		Completed: p.stats.completed.Load(),
		Discarded: p.stats.discarded.Load(),
		Active:    int(p.stats.active.Load()),
	}
}

// ThreadPoolStats contains pool statistics
type ThreadPoolStats struct {
	Threads   int    `json:"threads"`
	Queued    int    `json:"queued"`
	Enqueued  uint64 `json:"enqueued"`
	Dequeued  uint64 `json:"dequeued"`
	Completed uint64 `json:"completed"`
	Discarded uint64 `json:"discarded"`
	Active    int    `json:"active"`
}

// jobQueue is a FIFO backed by a slice; the consumed prefix is reclaimed
// once it outgrows the live tail.
type jobQueue struct {
	jobs []*Job
	head int
}

func (q *jobQueue) len() int { return len(q.jobs) - q.head }

func (q *jobQueue) push(j *Job) {
	if q.head > 0 && q.head >= len(q.jobs)-q.head {
		n := copy(q.jobs, q.jobs[q.head:])
		clear(q.jobs[n:])
		q.jobs = q.jobs[:n]
		q.head = 0
	}
	q.jobs = append(q.jobs, j)
}

func (q *jobQueue) pop() *Job {
	j := q.jobs[q.head]
	q.jobs[q.head] = nil
	q.head++
	if q.head == len(q.jobs) {
		q.jobs = q.jobs[:0]
		q.head = 0
	}
	return j
}

func (q *jobQueue) drain() []*Job {
	rest := append([]*Job(nil), q.jobs[q.head:]...)
	clear(q.jobs)
	q.jobs = q.jobs[:0]
	q.head = 0
	return rest
}
