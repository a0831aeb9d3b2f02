package http

import (
	"io"
	"net"
	"strconv"
)

// Status codes the server emits
const (
	StatusOK                  = 200
	StatusNotFound            = 404
	StatusMethodNotAllowed    = 405
	StatusInternalServerError = 500
)

// StatusText returns the reason phrase for code.
func StatusText(code int) string {
	switch code {
	case StatusOK:
		return "OK"
	case StatusNotFound:
		return "Not Found"
	case StatusMethodNotAllowed:
		return "Method Not Allowed"
	case StatusInternalServerError:
		return "Internal Server Error"
	default:
		return "Unknown"
	}
}

// AppendHeader appends the status line, Content-Type, Content-Length and the
// blank line ending the header block.
func AppendHeader(b []byte, code int, contentType string, contentLength int64) []byte {
	b = append(b, "HTTP/1.1 "...)
	b = strconv.AppendInt(b, int64(code), 10)
	b = append(b, ' ')
	b = append(b, StatusText(code)...)
	b = append(b, "\r\n"...)
	b = append(b, HeaderContentType...)
	b = append(b, ": "...)
	b = append(b, contentType...)
	b = append(b, "\r\n"...)
	b = append(b, HeaderContentLength...)
	b = append(b, ": "...)
	b = strconv.AppendInt(b, contentLength, 10)
	b = append(b, "\r\n\r\n"...)
	return b
}

// WriteHeader writes a header block to w.
func WriteHeader(w io.Writer, code int, contentType string, contentLength int64) error {
	var scratch [128]byte
	_, err := w.Write(AppendHeader(scratch[:0], code, contentType, contentLength))
	return err
}

// WriteResponse writes a complete response with an in-memory body using a
// single vectored write when w supports it.
func WriteResponse(w io.Writer, code int, contentType string, body []byte) error {
	var scratch [128]byte
	bufs := net.Buffers{
		AppendHeader(scratch[:0], code, contentType, int64(len(body))),
		body,
	}
	_, err := bufs.WriteTo(w)
	return err
}

// WriteError writes a plain-text error response for code.
func WriteError(w io.Writer, code int) error {
	return WriteResponse(w, code, "text/plain", []byte(errorBody(code)))
}

func errorBody(code int) string {
	switch code {
	case StatusNotFound:
		return "File not found.\r\n"
	case StatusMethodNotAllowed:
		return "Method Not Allowed\r\n"
	default:
		return StatusText(code) + "\r\n"
	}
}
