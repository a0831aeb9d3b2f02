// Package observability exposes server metrics to Prometheus.
package observability

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Serve sources
const (
	SourceCache = "cache"
	SourceDisk  = "disk"
)

// Cache events
const (
	CacheHit       = "hit"
	CacheMiss      = "miss"
	CacheStore     = "store"
	CacheFull      = "full"
	CacheShortRead = "short_read"
)

// Metrics holds the per-process server metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	ResponseBytes    prometheus.Counter
	ServeDuration    *prometheus.HistogramVec
	CacheEvents      *prometheus.CounterVec
	CacheEntries     prometheus.Gauge
	PoolQueueDepth   prometheus.Gauge
	PoolActive       prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	AcceptErrors     prometheus.Counter
	PollerWaitErrors prometheus.Counter
	KeepAliveReuses  prometheus.Counter
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewMetrics registers the server metrics on reg, labelling every series
// with the given worker id.
func NewMetrics(reg prometheus.Registerer, worker string) *Metrics {
	f := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"worker": worker}, reg))
	buckets := []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "static_requests_total",
				Help: "Requests answered, by method and status code",
			},
			[]string{"method", "status"},
		),
		ResponseBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "static_response_bytes_total",
			Help: "File body bytes written",
		}),
		ServeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "static_serve_duration_seconds",
				Help:    "Time spent serving a file, by source",
				Buckets: buckets,
			},
			[]string{"source"},
		),
		CacheEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "static_cache_events_total",
				Help: "File cache lookups and stores, by outcome",
			},
			[]string{"event"},
		),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "static_cache_entries",
			Help: "Occupied file cache slots",
		}),
		PoolQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "static_pool_queue_depth",
			Help: "Accepted connections waiting for a pool worker",
		}),
		PoolActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "static_pool_active",
			Help: "Connections currently being served",
		}),
		ConnectionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "static_connections_accepted_total",
			Help: "Connections accepted from the listener",
		}),
		AcceptErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "static_accept_errors_total",
			Help: "Accept failures other than EAGAIN",
		}),
		PollerWaitErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "static_poller_wait_errors_total",
			Help: "Readiness wait failures",
		}),
		KeepAliveReuses: f.NewCounter(prometheus.CounterOpts{
			Name: "static_keepalive_reuses_total",
			Help: "Requests served on an already used connection",
		}),
	}
}

// ObserveRequest counts one answered request.
func (m *Metrics) ObserveRequest(method string, status int, bodyBytes int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	if bodyBytes > 0 {
		m.ResponseBytes.Add(float64(bodyBytes))
	}
}

// ObserveServe records how long a file took to serve from source.
func (m *Metrics) ObserveServe(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.ServeDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) CacheEvent(event string) {
	if m == nil {
		return
	}
	m.CacheEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// JobQueued, JobStarted, JobDone and JobsDiscarded track the pool queue.
func (m *Metrics) JobQueued() {
	if m == nil {
		return
	}
	m.PoolQueueDepth.Inc()
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.PoolQueueDepth.Dec()
	m.PoolActive.Inc()
}

func (m *Metrics) JobDone() {
	if m == nil {
		return
	}
	m.PoolActive.Dec()
}

func (m *Metrics) JobsDiscarded(n int) {
	if m == nil || n == 0 {
		return
	}
	m.PoolQueueDepth.Sub(float64(n))
}

func (m *Metrics) ConnAccepted() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
}

func (m *Metrics) AcceptError() {
	if m == nil {
		return
	}
	m.AcceptErrors.Inc()
}

func (m *Metrics) PollerWaitError() {
	if m == nil {
		return
	}
	m.PollerWaitErrors.Inc()
}

func (m *Metrics) KeepAliveReuse() {
	if m == nil {
		return
	}
	m.KeepAliveReuses.Inc()
}

// Server serves /metrics for one gatherer.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// StartServer binds addr and serves the gatherer's metrics on /metrics in
// the background.
func StartServer(addr string, g prometheus.Gatherer) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}

	go func() {
		log.Printf("Starting metrics server on %s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
