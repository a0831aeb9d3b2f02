package http

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// KeepAlive reports whether the connection that carried req should be
// reused for another request.
//
//	Connection: close         -> close
//	HTTP/1.0 without keep-alive -> close
//	anything else             -> keep-alive
func KeepAlive(req *Request) bool {
	conn, ok := req.Header(HeaderConnection)
	values := []string{conn}

	if ok && httpguts.HeaderValuesContainsToken(values, "close") {
		return false
	}

	if strings.HasPrefix(req.Proto, "HTTP/1.0") {
		return ok && httpguts.HeaderValuesContainsToken(values, "keep-alive")
	}

	return true
}
