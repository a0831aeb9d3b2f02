/*
Package staticserver provides a prefork static-file HTTP/1.x server.

A supervisor process binds one listening socket and re-executes itself as N
worker processes, each inheriting the socket. Every worker runs an
edge-triggered acceptor loop on epoll (Linux) or kqueue (BSD/macOS) and hands
accepted connections to a fixed pool of connection threads. Threads parse
GET requests, resolve them under the document root and answer from a small
per-process file cache, the kernel sendfile path, or chunked reads.

Features

  - Prefork workers sharing one listener (or in-process workers with --in-process)
  - Edge-triggered accept draining with a bounded event batch
  - Fixed thread pool with an unbounded FIFO of pending connections
  - HTTP/1.0 and HTTP/1.1 keep-alive with a per-read timeout
  - Fixed-capacity file cache (first come, never evicted)
  - Zero-copy bodies via sendfile with a buffered fallback
  - Per-response performance log in text or protowire binary format
  - Prometheus metrics per worker

Quick Start

	static-server 8080 --root ./public --workers 4 --threads 8 --zerocopy

Or embed it:

	cfg := config.Default()
	cfg.Root = "./public"
	cfg.InProcess = true
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	log.Fatal(app.New(cfg).Run(ctx))

Modules

  - app: process lifecycle for supervisor and worker roles
  - config: flags, environment and validation
  - cmd/static-server: command-line entry point
  - core: supervisor, worker acceptor loop and connection handler
  - core/http: request parsing, keep-alive rules and response headers
  - core/static: path resolution and response serving
  - core/cache: fixed-capacity file cache
  - core/sendfile: zero-copy transfer and content types
  - core/poller: epoll/kqueue readiness notification
  - core/pools: thread pool, byte buffers and GC tuning
  - core/middleware: connection handler wrappers
  - core/perflog: performance log writer and reader
  - core/observability: Prometheus metrics and the /metrics endpoint
*/
package staticserver
