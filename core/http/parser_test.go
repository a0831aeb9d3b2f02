package http

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkReader returns one chunk per Read call, then io.EOF.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestReadRequestBasic(t *testing.T) {
	raw := "GET /index.html HTTP/1.1\r\nHost: localhost\r\nUser-Agent:  curl/8.0  \r\n\r\n"
	req := AcquireRequest()
	defer ReleaseRequest(req)

	if err := ReadRequest(strings.NewReader(raw), req); err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}

	if req.Method != "GET" || req.Path != "/index.html" || req.Proto != "HTTP/1.1" {
		t.Errorf("Unexpected request line: %q %q %q", req.Method, req.Path, req.Proto)
	}
	if len(req.Headers) != 2 {
		t.Fatalf("Expected 2 headers, got %d", len(req.Headers))
	}
	if ua, _ := req.Header("user-agent"); ua != "curl/8.0" {
		t.Errorf("Expected trimmed User-Agent, got %q", ua)
	}
	if _, ok := req.Header("Accept"); ok {
		t.Error("Accept header should be absent")
	}
	if req.Body != nil {
		t.Errorf("Expected no body, got %q", req.Body)
	}
}

func TestReadRequestBodySplitAcrossReads(t *testing.T) {
	r := &chunkReader{chunks: []string{
		"POST /upload HTTP/1.1\r\nContent-Length: 5\r\n\r\nhe",
		"llo",
	}}
	req := AcquireRequest()
	defer ReleaseRequest(req)

	if err := ReadRequest(r, req); err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if string(req.Body) != "hello" {
		t.Errorf("Expected body %q, got %q", "hello", req.Body)
	}
}

func TestReadRequestBodyAfterHeaderRead(t *testing.T) {
	r := &chunkReader{chunks: []string{
		"POST / HTTP/1.1\r\ncontent-length: 5\r\n\r\n",
		"ab",
		"cde",
	}}
	req := AcquireRequest()
	defer ReleaseRequest(req)

	if err := ReadRequest(r, req); err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if string(req.Body) != "abcde" {
		t.Errorf("Expected body %q, got %q", "abcde", req.Body)
	}
}

func TestReadRequestShortBodyOnPeerClose(t *testing.T) {
	r := &chunkReader{chunks: []string{"POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\n1234"}}
	req := AcquireRequest()
	defer ReleaseRequest(req)

	if err := ReadRequest(r, req); err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Method != "POST" {
		t.Errorf("Request should still be dispatched, method=%q", req.Method)
	}
	if string(req.Body) != "1234" {
		t.Errorf("Expected partial body, got %q", req.Body)
	}
}

func TestReadRequestHeadersSplitAcrossReads(t *testing.T) {
	r := &chunkReader{chunks: []string{"GET /a.css HT", "TP/1.0\r\nConnec", "tion: keep-alive\r\n\r\n"}}
	req := AcquireRequest()
	defer ReleaseRequest(req)

	if err := ReadRequest(r, req); err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Proto != "HTTP/1.0" {
		t.Errorf("Expected HTTP/1.0, got %q", req.Proto)
	}
	if v, _ := req.Header("Connection"); v != "keep-alive" {
		t.Errorf("Expected keep-alive, got %q", v)
	}
}

func TestReadRequestFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", io.EOF},
		{"no line ending", "GET / HTTP/1.1", ErrInvalidRequest},
		{"blank request line", "\r\n\r\n", ErrInvalidRequest},
		{"long method", "LONGMETHOD / HTTP/1.1\r\n\r\n", ErrMethodTooLong},
		{"long path", "GET /" + strings.Repeat("a", MaxPathLen) + " HTTP/1.1\r\n\r\n", ErrPathTooLong},
		{"huge body", "POST / HTTP/1.1\r\nContent-Length: 999999999\r\n\r\n", ErrBodyTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := AcquireRequest()
			defer ReleaseRequest(req)

			err := ReadRequest(strings.NewReader(tt.raw), req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if req.Method != "" {
				t.Errorf("Method must stay empty on failure, got %q", req.Method)
			}
		})
	}
}

func TestReadRequestHeaderLimits(t *testing.T) {
	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	for i := 0; i < MaxHeaders+10; i++ {
		b.WriteString("X-H: v\r\n")
	}
	b.WriteString(strings.Repeat("N", 100) + ": " + strings.Repeat("v", 2000) + "\r\n")
	b.WriteString("\r\n")

	req := AcquireRequest()
	defer ReleaseRequest(req)
	if err := ReadRequest(strings.NewReader(b.String()), req); err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if len(req.Headers) != MaxHeaders {
		t.Errorf("Expected %d headers, got %d", MaxHeaders, len(req.Headers))
	}

	req2 := AcquireRequest()
	defer ReleaseRequest(req2)
	raw := "GET / HTTP/1.1\r\n" + strings.Repeat("N", 100) + ": " + strings.Repeat("v", 2000) + "\r\nbogus line\r\n\r\n"
	if err := ReadRequest(strings.NewReader(raw), req2); err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if len(req2.Headers) != 1 {
		t.Fatalf("Expected 1 header, got %d", len(req2.Headers))
	}
	if len(req2.Headers[0].Name) != MaxHeaderNameLen || len(req2.Headers[0].Value) != MaxHeaderValueLen {
		t.Errorf("Expected truncation to %d/%d, got %d/%d", MaxHeaderNameLen, MaxHeaderValueLen,
			len(req2.Headers[0].Name), len(req2.Headers[0].Value))
	}
}

func TestReadRequestMissingVersion(t *testing.T) {
	req := AcquireRequest()
	defer ReleaseRequest(req)

	if err := ReadRequest(strings.NewReader("GET /x\r\n\r\n"), req); err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if req.Method != "GET" || req.Path != "/x" || req.Proto != "" {
		t.Errorf("Unexpected request line: %q %q %q", req.Method, req.Path, req.Proto)
	}
}

func BenchmarkReadRequest(b *testing.B) {
	raw := "GET /index.html HTTP/1.1\r\nHost: localhost\r\nConnection: keep-alive\r\n\r\n"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		req := AcquireRequest()
		ReadRequest(strings.NewReader(raw), req)
		ReleaseRequest(req)
	}
}
