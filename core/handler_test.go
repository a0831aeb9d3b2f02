package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/searchktools/static-server/core/cache"
	"github.com/searchktools/static-server/core/static"
)

const testIndex = "<html>index</html>"

func newTestRoot(t testing.TB) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte(testIndex), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "site.css"), []byte("h1{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func newTestHandler(t *testing.T, timeout time.Duration) *ConnHandler {
	t.Helper()
	r := static.New(static.Options{Root: newTestRoot(t), Cache: cache.New(cache.DefaultSlots)})
	return NewConnHandler(r, timeout, nil, true)
}

// startHandler serves one side of a pipe and returns the other side.
func startHandler(t *testing.T, h *ConnHandler) (net.Conn, <-chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		h.Serve(server)
		close(done)
	}()
	t.Cleanup(func() { client.Close() })
	return client, done
}

// roundTrip writes one raw request and reads one response.
func roundTrip(t *testing.T, conn net.Conn, br *bufio.Reader, raw string) (*nethttp.Response, string) {
	t.Helper()
	resp, body, err := doRoundTrip(conn, br, raw)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func doRoundTrip(conn net.Conn, br *bufio.Reader, raw string) (*nethttp.Response, string, error) {
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(conn, raw); err != nil {
		return nil, "", fmt.Errorf("write request: %w", err)
	}
	resp, err := nethttp.ReadResponse(br, nil)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return resp, string(body), nil
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not close the connection")
	}
}

func TestConnHandlerKeepAlive(t *testing.T) {
	conn, done := startHandler(t, newTestHandler(t, time.Second))
	br := bufio.NewReader(conn)

	resp, body := roundTrip(t, conn, br, "GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n")
	if resp.StatusCode != 200 || body != testIndex {
		t.Fatalf("Unexpected first response: %d %q", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/html" {
		t.Errorf("Expected text/html, got %q", ct)
	}

	resp, body = roundTrip(t, conn, br, "GET /site.css HTTP/1.1\r\nHost: x\r\n\r\n")
	if resp.StatusCode != 200 || body != "h1{}" {
		t.Fatalf("Unexpected second response: %d %q", resp.StatusCode, body)
	}

	select {
	case <-done:
		t.Fatal("HTTP/1.1 connection closed after a response")
	default:
	}

	conn.Close()
	waitClosed(t, done)
}

func TestConnHandlerCloses(t *testing.T) {
	tests := []struct {
		name string
		req  string
	}{
		{"http/1.0 default", "GET / HTTP/1.0\r\n\r\n"},
		{"connection close", "GET / HTTP/1.1\r\nConnection: close\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, done := startHandler(t, newTestHandler(t, time.Second))
			br := bufio.NewReader(conn)

			resp, body := roundTrip(t, conn, br, tt.req)
			if resp.StatusCode != 200 || body != testIndex {
				t.Fatalf("Unexpected response: %d %q", resp.StatusCode, body)
			}
			waitClosed(t, done)
			if _, err := br.ReadByte(); !errors.Is(err, io.EOF) {
				t.Errorf("Expected EOF after the response, got %v", err)
			}
		})
	}
}

func TestConnHandlerHTTP10KeepAlive(t *testing.T) {
	conn, done := startHandler(t, newTestHandler(t, time.Second))
	br := bufio.NewReader(conn)

	for i := 0; i < 2; i++ {
		resp, _ := roundTrip(t, conn, br, "GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
		if resp.StatusCode != 200 {
			t.Fatalf("Request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	conn.Close()
	waitClosed(t, done)
}

func TestConnHandlerMethodNotAllowed(t *testing.T) {
	conn, done := startHandler(t, newTestHandler(t, time.Second))
	br := bufio.NewReader(conn)

	for _, raw := range []string{
		"POST /index.html HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello",
		"DELETE /missing HTTP/1.1\r\n\r\n",
		"HEAD / HTTP/1.1\r\n\r\n",
	} {
		resp, body := roundTrip(t, conn, br, raw)
		if resp.StatusCode != 405 {
			t.Errorf("%q: expected 405, got %d", raw, resp.StatusCode)
		}
		if body != "Method Not Allowed\r\n" {
			t.Errorf("%q: unexpected body %q", raw, body)
		}
	}

	resp, _ := roundTrip(t, conn, br, "GET / HTTP/1.1\r\n\r\n")
	if resp.StatusCode != 200 {
		t.Errorf("GET after 405 should still be served, got %d", resp.StatusCode)
	}
	conn.Close()
	waitClosed(t, done)
}

func TestConnHandlerReadTimeout(t *testing.T) {
	_, done := startHandler(t, newTestHandler(t, 50*time.Millisecond))
	waitClosed(t, done)
}

func TestConnHandlerMalformed(t *testing.T) {
	conn, done := startHandler(t, newTestHandler(t, time.Second))
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	io.WriteString(conn, "VERYLONGMETHOD / HTTP/1.1\r\n\r\n")
	waitClosed(t, done)

	if n, err := conn.Read(make([]byte, 1)); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("Malformed request should close without a response, got n=%d err=%v", n, err)
	}
}
