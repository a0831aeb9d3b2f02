// Package static answers GET requests with files from a document root,
// keeping recently served content in the process file cache.
package static

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/searchktools/static-server/core/cache"
	"github.com/searchktools/static-server/core/http"
	"github.com/searchktools/static-server/core/observability"
	"github.com/searchktools/static-server/core/perflog"
	"github.com/searchktools/static-server/core/pools"
	"github.com/searchktools/static-server/core/sendfile"
)

// ErrPartialResponse reports a body that failed after the headers went out.
// The connection can no longer be reused.
var ErrPartialResponse = errors.New("partial response")

// Options configures a Responder.
type Options struct {
	Root     string
	Index    string
	ZeroCopy bool
	Verbose  bool

	Cache   *cache.FileCache
	PerfLog *perflog.Log
	Metrics *observability.Metrics
}

// Responder serves files under a document root.
type Responder struct {
	root     string
	index    string
	zeroCopy bool
	verbose  bool

	cache   *cache.FileCache
	perf    *perflog.Log
	metrics *observability.Metrics
}

// New creates a responder. A nil cache gets a private one with the default
// slot count.
func New(opts Options) *Responder {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Index == "" {
		opts.Index = "index.html"
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.DefaultSlots)
	}

	return &Responder{
		root:     opts.Root,
		index:    opts.Index,
		zeroCopy: opts.ZeroCopy,
		verbose:  opts.Verbose,
		cache:    opts.Cache,
		perf:     opts.PerfLog,
		metrics:  opts.Metrics,
	}
}

// Resolve maps a request target to a file name under the root. The query
// and fragment are dropped, and "/" names the index document. Cleaning
// keeps the result inside the root.
func (r *Responder) Resolve(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	p := path.Clean("/" + target)
	if p == "/" {
		p = "/" + r.index
	}
	return filepath.Join(r.root, filepath.FromSlash(p))
}

// Serve writes exactly one response for a GET of target.
//
// Errors are write failures; the caller must close conn. Missing files and
// unreadable files are answered (404, 500) and are not errors.
func (r *Responder) Serve(conn net.Conn, target string) error {
	start := time.Now()
	name := r.Resolve(target)
	ctype := sendfile.ContentType(name)

	if e, ok := r.cache.Get(name); ok {
		r.metrics.CacheEvent(observability.CacheHit)
		if err := http.WriteResponse(conn, http.StatusOK, ctype, e.Content); err != nil {
			return fmt.Errorf("write cached %s: %w", name, err)
		}
		r.done(name, e.Size, observability.SourceCache, start)
		return nil
	}
	r.metrics.CacheEvent(observability.CacheMiss)

	f, err := os.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r.fail(conn, name, http.StatusNotFound, nil)
		}
		return r.fail(conn, name, http.StatusInternalServerError, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return r.fail(conn, name, http.StatusInternalServerError, err)
	}
	if !fi.Mode().IsRegular() {
		return r.fail(conn, name, http.StatusNotFound, nil)
	}
	size := fi.Size()

	if err := http.WriteHeader(conn, http.StatusOK, ctype, size); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}

	var sent int64
	if r.zeroCopy {
		sent, err = sendfile.SendFile(conn, f, size)
	} else {
		sent, err = copyChunked(conn, f, size)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: sent %d of %d bytes: %w", ErrPartialResponse, name, sent, size, err)
	}

	r.store(name, f, size, fi.ModTime())
	r.done(name, size, observability.SourceDisk, start)
	return nil
}

func (r *Responder) done(name string, size int64, source string, start time.Time) {
	elapsed := time.Since(start)
	r.perf.Record(name, size, elapsed)
	r.metrics.ObserveServe(source, elapsed)
	r.metrics.ObserveRequest("GET", http.StatusOK, size)
}

func (r *Responder) fail(conn net.Conn, name string, code int, cause error) error {
	if cause != nil {
		log.Printf("Serve %s: %v", name, cause)
	} else if r.verbose {
		log.Printf("Serve %s: %d %s", name, code, http.StatusText(code))
	}
	r.metrics.ObserveRequest("GET", code, 0)
	if err := http.WriteError(conn, code); err != nil {
		return fmt.Errorf("write %d: %w", code, err)
	}
	return nil
}

// store re-reads the whole file from offset 0 and publishes it to the cache.
// A short read or a full cache leaves the cache unchanged.
func (r *Responder) store(name string, f *os.File, size int64, mod time.Time) {
	content := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, size), content); err != nil {
		r.metrics.CacheEvent(observability.CacheShortRead)
		if r.verbose {
			log.Printf("Cache %s: short read: %v", name, err)
		}
		return
	}

	if !r.cache.Put(name, content, mod) {
		r.metrics.CacheEvent(observability.CacheFull)
		return
	}
	r.metrics.CacheEvent(observability.CacheStore)
	r.metrics.SetCacheEntries(r.cache.Len())
}

// copyChunked writes count bytes of f to w in pools.ChunkSize pieces.
func copyChunked(w io.Writer, f *os.File, count int64) (int64, error) {
	buf := pools.GetChunk()
	defer pools.PutChunk(buf)

	var sent int64
	for sent < count {
		want := int64(len(buf))
		if rest := count - sent; rest < want {
			want = rest
		}
		n, rerr := f.Read(buf[:want])
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return sent, err
			}
			sent += int64(n)
		}
		if rerr != nil {
			if rerr == io.EOF && sent < count {
				rerr = io.ErrUnexpectedEOF
			}
			if sent == count {
				return sent, nil
			}
			return sent, rerr
		}
	}
	return sent, nil
}
