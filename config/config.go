// Package config holds the server configuration and its command-line and
// environment bindings.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/searchktools/static-server/core/perflog"
	"github.com/searchktools/static-server/core/pools"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "STATIC_SERVER"

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all application configuration.
type Config struct {
	Port  int
	Root  string
	Index string

	Workers   int
	Threads   int
	InProcess bool

	ZeroCopy    bool
	Verbose     bool
	ReadTimeout time.Duration
	CacheSlots  int

	PerfLog       string
	PerfLogFormat string
	MetricsAddr   string

	GCPercent   int
	MemoryLimit int64
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:          8080,
		Root:          "docs",
		Index:         "index.html",
		Workers:       2,
		Threads:       4,
		ReadTimeout:   5 * time.Second,
		CacheSlots:    64,
		PerfLog:       "performance.log",
		PerfLogFormat: string(perflog.FormatText),
	}
}

// BindFlags registers a flag for every field, defaulting to the current
// values.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.Port, "port", c.Port, "TCP port to listen on (also accepted as the first argument)")
	fs.StringVar(&c.Root, "root", c.Root, "document root")
	fs.StringVar(&c.Index, "index", c.Index, "file served for /")
	fs.IntVar(&c.Workers, "workers", c.Workers, "number of worker processes")
	fs.IntVar(&c.Threads, "threads", c.Threads, "connection threads per worker")
	fs.BoolVar(&c.InProcess, "in-process", c.InProcess, "run the workers as acceptor loops inside one process")
	fs.BoolVarP(&c.ZeroCopy, "zerocopy", "z", c.ZeroCopy, "send file bodies with sendfile")
	fs.BoolVarP(&c.Verbose, "verbose", "v", c.Verbose, "log connection diagnostics")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "receive timeout per read on a connection")
	fs.IntVar(&c.CacheSlots, "cache-slots", c.CacheSlots, "file cache capacity per process")
	fs.StringVar(&c.PerfLog, "perf-log", c.PerfLog, "performance log path (empty disables)")
	fs.StringVar(&c.PerfLogFormat, "perf-log-format", c.PerfLogFormat, "performance log format: text or binary")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus listen address (empty disables)")
	fs.IntVar(&c.GCPercent, "gc-percent", c.GCPercent, "GOGC for worker processes (0 keeps the runtime default)")
	fs.Int64Var(&c.MemoryLimit, "memory-limit", c.MemoryLimit, "soft memory limit in bytes (0 keeps the runtime default)")
}

// ApplyArgs takes the optional positional port.
func (c *Config) ApplyArgs(args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 1:
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: port %q is not a number", ErrInvalidConfig, args[0])
		}
		c.Port = port
		return nil
	default:
		return fmt.Errorf("%w: unexpected arguments %q", ErrInvalidConfig, args[1:])
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Root == "" {
		errs = append(errs, errors.New("document root is empty"))
	}
	if c.Index == "" {
		errs = append(errs, errors.New("index document is empty"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Threads < 1 {
		errs = append(errs, fmt.Errorf("threads must be at least 1, got %d", c.Threads))
	}
	if c.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("negative read timeout %v", c.ReadTimeout))
	}
	if c.CacheSlots < 1 {
		errs = append(errs, fmt.Errorf("cache slots must be at least 1, got %d", c.CacheSlots))
	}
	if _, err := perflog.ParseFormat(c.PerfLogFormat); err != nil {
		errs = append(errs, err)
	}
	if c.MetricsAddr != "" {
		if _, _, err := splitPort(c.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("metrics address: %w", err))
		}
	}
	if c.GCPercent < 0 || c.MemoryLimit < 0 {
		errs = append(errs, errors.New("GC settings must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// WorkerArgs renders the command line of a re-executed worker.
func (c *Config) WorkerArgs() []string {
	return []string{
		"worker",
		"--port=" + strconv.Itoa(c.Port),
		"--root=" + c.Root,
		"--index=" + c.Index,
		"--workers=" + strconv.Itoa(c.Workers),
		"--threads=" + strconv.Itoa(c.Threads),
		"--zerocopy=" + strconv.FormatBool(c.ZeroCopy),
		"--verbose=" + strconv.FormatBool(c.Verbose),
		"--read-timeout=" + c.ReadTimeout.String(),
		"--cache-slots=" + strconv.Itoa(c.CacheSlots),
		"--perf-log=" + c.PerfLog,
		"--perf-log-format=" + c.PerfLogFormat,
		"--metrics-addr=" + c.MetricsAddr,
		"--gc-percent=" + strconv.Itoa(c.GCPercent),
		"--memory-limit=" + strconv.FormatInt(c.MemoryLimit, 10),
	}
}

// MetricsAddrFor returns the metrics address of worker id: the configured
// port plus id, so that prefork workers do not collide. Empty when metrics
// are disabled.
func (c *Config) MetricsAddrFor(id int) (string, error) {
	if c.MetricsAddr == "" {
		return "", nil
	}
	host, port, err := splitPort(c.MetricsAddr)
	if err != nil {
		return "", err
	}
	if port == 0 {
		return c.MetricsAddr, nil
	}
	return net.JoinHostPort(host, strconv.Itoa(port+id)), nil
}

// GC returns the GC tuning for worker processes.
func (c *Config) GC() pools.GCConfig {
	return pools.GCConfig{
		GOGC:        c.GCPercent,
		MemoryLimit: c.MemoryLimit,
	}
}

func splitPort(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("bad port %q", p)
	}
	return host, port, nil
}
