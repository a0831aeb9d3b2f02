// Package middleware wraps connection handlers run by the thread pool.
package middleware

import (
	"log"
	"net"
	"runtime/debug"

	"github.com/searchktools/static-server/core/pools"
)

// Middleware decorates a connection handler
type Middleware func(next pools.ConnHandler) pools.ConnHandler

// Chain wraps h so that the first middleware runs outermost.
func Chain(h pools.ConnHandler, mws ...Middleware) pools.ConnHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recovery keeps a panicking handler from taking down the pool thread
// and its worker. The connection is closed and onPanic, if set, is called
// with the recovered value.
func Recovery(onPanic func(v any)) Middleware {
	return func(next pools.ConnHandler) pools.ConnHandler {
		return func(conn net.Conn) {
			defer func() {
				if v := recover(); v != nil {
					log.Printf("Panic recovered serving %s: %v\n%s", conn.RemoteAddr(), v, debug.Stack())
					conn.Close()
					if onPanic != nil {
						onPanic(v)
					}
				}
			}()
			next(conn)
		}
	}
}
