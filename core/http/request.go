package http

import (
	"strings"
	"sync"
)

// Tokenizer limits. Longer values are rejected (method, path, version) or
// truncated (header names and values); headers beyond MaxHeaders are ignored.
const (
	MaxMethodLen      = 7
	MaxPathLen        = 1023
	MaxVersionLen     = 15
	MaxHeaders        = 50
	MaxHeaderNameLen  = 63
	MaxHeaderValueLen = 1023

	// RequestBufferSize bounds the request line plus headers.
	RequestBufferSize = 16 * 1024

	// MaxBodyLen bounds the Content-Length the tokenizer will honor.
	MaxBodyLen = 1 << 20
)

// HTTP header constants
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderConnection    = "Connection"
)

// Header is one request header in arrival order
type Header struct {
	Name  string
	Value string
}

// Request is the tokenized form of one HTTP request
type Request struct {
	Method string
	Path   string
	Proto  string

	Headers []Header

	// Request body, exactly Content-Length bytes unless the peer closed early
	Body []byte
}

var requestPool = sync.Pool{
	New: func() any {
		return &Request{
			Headers: make([]Header, 0, 16),
		}
	},
}

func AcquireRequest() *Request {
	return requestPool.Get().(*Request)
}

// Reset resets the request for reuse (memory not freed, just reset)
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.Proto = ""
	r.Headers = r.Headers[:0]
	r.Body = nil
}

func ReleaseRequest(req *Request) {
	req.Reset()
	requestPool.Put(req)
}

// Header returns the value of the first header whose name matches name
// case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}
