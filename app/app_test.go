package app

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	nethttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/searchktools/static-server/config"
	"github.com/searchktools/static-server/core"
)

func TestServeInProcess(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>hi</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	perfPath := filepath.Join(t.TempDir(), "performance.log")

	cfg := config.Default()
	cfg.Port = 0
	cfg.Root = root
	cfg.InProcess = true
	cfg.Workers = 2
	cfg.Threads = 2
	cfg.PerfLog = perfPath
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ln, err := core.Listen(0)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(cfg).Serve(ctx, ln) }()

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: ln.Addr().(*net.TCPAddr).Port}
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	io.WriteString(conn, "GET / HTTP/1.1\r\nConnection: close\r\n\r\n")
	resp, err := nethttp.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	conn.Close()

	if resp.StatusCode != 200 || string(body) != "<h1>hi</h1>" {
		t.Errorf("Unexpected response %d %q", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	data, err := os.ReadFile(perfPath)
	if err != nil {
		t.Fatalf("perf log: %v", err)
	}
	if !strings.HasPrefix(string(data), "FILE: "+filepath.Join(root, "index.html")+" SIZE: 11 TIME: ") {
		t.Errorf("Unexpected perf log %q", data)
	}
}

func TestRunListenFailure(t *testing.T) {
	ln, err := core.Listen(0)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := config.Default()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.InProcess = true
	cfg.PerfLog = ""

	err = New(cfg).Run(context.Background())
	if !errors.Is(err, core.ErrListen) || core.IsRetryable(err) {
		t.Errorf("Expected a fatal listen error, got %v", err)
	}
}
