package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/searchktools/static-server/core/pools"
)

var (
	ErrInvalidRequest = errors.New("invalid HTTP request")
	ErrMethodTooLong  = errors.New("method too long")
	ErrPathTooLong    = errors.New("path too long")
	ErrVersionTooLong = errors.New("version too long")
	ErrBodyTooLarge   = errors.New("body too large")
)

var (
	crlf       = []byte("\r\n")
	headersEnd = []byte("\r\n\r\n")
)

var headerBufs = pools.NewBytePoolWithSizes([]int{RequestBufferSize})

// ReadRequest reads one request from r into req.
//
// It reads until the blank line ending the headers or until the header
// buffer is full, then reads exactly Content-Length body bytes, reusing any
// already buffered. On failure req.Method is left empty and the error says
// why: io.EOF (or the read error) when nothing arrived, ErrInvalidRequest
// and friends for malformed input.
func ReadRequest(r io.Reader, req *Request) error {
	req.Reset()

	buf := headerBufs.Get(RequestBufferSize)
	defer headerBufs.Put(buf)

	total := 0
	var readErr error
	for total < len(buf)-1 {
		n, err := r.Read(buf[total : len(buf)-1])
		total += n
		if bytes.Contains(buf[:total], headersEnd) {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		if n == 0 {
			readErr = io.ErrNoProgress
			break
		}
	}

	if total == 0 {
		if readErr == nil {
			readErr = io.EOF
		}
		return readErr
	}
	data := buf[:total]

	headerLen := total
	if idx := bytes.Index(data, headersEnd); idx >= 0 {
		headerLen = idx + len(headersEnd)
	}

	lineEnd := bytes.Index(data, crlf)
	if lineEnd < 0 {
		return fmt.Errorf("%w: unterminated request line", ErrInvalidRequest)
	}

	method, path, proto, err := parseRequestLine(data[:lineEnd])
	if err != nil {
		return err
	}

	parseHeaders(req, data[lineEnd+len(crlf):headerLen])

	contentLength := 0
	if v, ok := req.Header(HeaderContentLength); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			contentLength = n
		}
	}
	if contentLength > MaxBodyLen {
		req.Headers = req.Headers[:0]
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, contentLength)
	}

	if contentLength > 0 {
		body := make([]byte, contentLength)
		got := copy(body, data[headerLen:])
		for got < contentLength {
			n, err := r.Read(body[got:])
			got += n
			if err != nil || n == 0 {
				break
			}
		}
		req.Body = body[:got]
	}

	req.Method = method
	req.Path = path
	req.Proto = proto
	return nil
}

// parseRequestLine splits "<METHOD> <PATH> <VERSION>". Missing trailing
// fields are left empty.
func parseRequestLine(line []byte) (method, path, proto string, err error) {
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return "", "", "", fmt.Errorf("%w: empty request line", ErrInvalidRequest)
	}

	if len(fields[0]) > MaxMethodLen {
		return "", "", "", ErrMethodTooLong
	}
	method = string(fields[0])

	if len(fields) > 1 {
		if len(fields[1]) > MaxPathLen {
			return "", "", "", ErrPathTooLong
		}
		path = string(fields[1])
	}
	if len(fields) > 2 {
		if len(fields[2]) > MaxVersionLen {
			return "", "", "", ErrVersionTooLong
		}
		proto = string(fields[2])
	}
	return method, path, proto, nil
}

// parseHeaders parses "Name: value" lines until the blank line. Lines
// without a colon are skipped.
func parseHeaders(req *Request, data []byte) {
	for len(data) > 0 && len(req.Headers) < MaxHeaders {
		lineEnd := bytes.Index(data, crlf)
		if lineEnd <= 0 {
			// blank line or a partial last line
			break
		}
		line := data[:lineEnd]
		data = data[lineEnd+len(crlf):]

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := bytes.TrimSpace(line[:colon])
		value := bytes.TrimSpace(line[colon+1:])
		if len(name) > MaxHeaderNameLen {
			name = name[:MaxHeaderNameLen]
		}
		if len(value) > MaxHeaderValueLen {
			value = value[:MaxHeaderValueLen]
		}
		req.Headers = append(req.Headers, Header{
			Name:  string(name),
			Value: string(value),
		})
	}
}
