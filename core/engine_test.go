package core

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/net/nettest"

	"github.com/searchktools/webby/core/http"
	"github.com/searchktools/webby/core/observability"
	"github.com/searchktools/webby/core/router"
	"github.com/searchktools/webby/core/static"
)

var quiet = log.New(io.Discard, "", 0)

// startEngine serves e on a loopback listener until the test ends.
func startEngine(t *testing.T, e *Engine) string {
	t.Helper()

	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Serve(ctx, ln.(*net.TCPListener))
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Serve returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("engine did not stop")
		}
		ln.Close()
	})

	return ln.Addr().String()
}

// roundTrip writes each part of raw in turn and reads until the server closes
// the connection. Any read error, a reset included, fails the test.
func roundTrip(t *testing.T, addr string, raw ...string) string {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	for _, part := range raw {
		if _, err := conn.Write([]byte(part)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestEngineRoute(t *testing.T) {
	e := NewEngine(WithLogger(quiet), WithWorkers(2))
	e.GET("/hello", func(req *http.Request, res *http.Response) {
		res.Set("Content-Type", "text/plain")
		res.SendString("hello " + req.Method)
	})
	addr := startEngine(t, e)

	got := roundTrip(t, addr, "GET /Hello/ HTTP/1.1\r\nHost: x\r\n\r\n")
	want := "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\nhello GET"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEngineRouteMiss(t *testing.T) {
	e := NewEngine(WithLogger(quiet))
	e.GET("/hello", func(req *http.Request, res *http.Response) { res.SendString("hello") })
	addr := startEngine(t, e)

	want := "HTTP/1.1 404 Not Found\r\nContent-Type: text/plain\r\n\r\nPage not found."
	for _, raw := range []string{
		"POST /hello HTTP/1.1\r\n\r\n",
		"GET /nope HTTP/1.1\r\n\r\n",
		"\r\n",
		"GARBAGE",
	} {
		if got := roundTrip(t, addr, raw); got != want {
			t.Errorf("%q: got %q, want %q", raw, got, want)
		}
	}
}

func TestEngineStaticMiddleware(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "public"), 0o755); err != nil {
		t.Fatal(err)
	}
	index := "<html>storks</html>"
	if err := os.WriteFile(filepath.Join(root, "public", "index.html"), []byte(index), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(WithLogger(quiet))
	e.Use(static.New(filepath.Join(root, "public")))
	e.GET("/gallery", func(req *http.Request, res *http.Response) { res.SendString("gallery") })
	addr := startEngine(t, e)

	tests := []struct {
		raw  string
		want string
	}{
		{"GET / HTTP/1.1\r\n\r\n", "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\n" + index},
		{"GET /gallery HTTP/1.1\r\n\r\n", "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\ngallery"},
		{"GET /missing.css HTTP/1.1\r\n\r\n", "HTTP/1.1 404 Not Found\r\nContent-Type: text/plain\r\n\r\nPage not found."},
	}
	for _, tt := range tests {
		if got := roundTrip(t, addr, tt.raw); got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestEngineMiddlewareSlotLastWins(t *testing.T) {
	e := NewEngine(WithLogger(quiet))
	e.Use(func(req *http.Request, res *http.Response, next http.HandlerFunc) { res.SendString("first") })
	e.Use(func(req *http.Request, res *http.Response, next http.HandlerFunc) { res.SendString("second") })
	addr := startEngine(t, e)

	got := roundTrip(t, addr, "GET / HTTP/1.1\r\n\r\n")
	if want := "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\nsecond"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEngineWithMiddlewareOption(t *testing.T) {
	e := NewEngine(WithMiddleware(func(req *http.Request, res *http.Response, next http.HandlerFunc) {
		res.Set("X-Seen", "yes")
		next(req, res)
	}))
	e.GET("/a", func(req *http.Request, res *http.Response) { res.SendString("a") })

	conn := &recordConn{}
	e.Handler()(&http.Request{Method: "GET", Path: "/a"}, http.NewResponse(conn))
	if want := "HTTP/1.1 200 OK\r\nX-Seen: yes\r\nContent-Type: text/html\r\n\r\na"; conn.String() != want {
		t.Errorf("got %q, want %q", conn.String(), want)
	}
}

type recordConn struct {
	strings.Builder
}

func (c *recordConn) Close() error { return nil }

func TestEngineLargeBody(t *testing.T) {
	body := make([]byte, 4<<20)
	for i := range body {
		body[i] = byte(i)
	}

	e := NewEngine(WithLogger(quiet))
	e.GET("/big", func(req *http.Request, res *http.Response) {
		res.Set("Content-Type", "image/png")
		res.Send(body)
	})
	addr := startEngine(t, e)

	got := roundTrip(t, addr, "GET /big HTTP/1.1\r\n\r\n")
	head := "HTTP/1.1 200 OK\r\nContent-Type: image/png\r\n\r\n"
	if len(got) != len(head)+len(body) || got[:len(head)] != head || got[len(head):] != string(body) {
		t.Errorf("large body mangled: got %d bytes", len(got))
	}
}

func TestEngineMonitor(t *testing.T) {
	m := observability.NewMonitor()
	e := NewEngine(WithLogger(quiet), WithMonitor(m))
	e.GET("/x", func(req *http.Request, res *http.Response) { res.SendString("x") })
	addr := startEngine(t, e)

	roundTrip(t, addr, "GET /x HTTP/1.1\r\n\r\n")
	const misses = 100
	for i := 0; i < misses; i++ {
		roundTrip(t, addr, fmt.Sprintf("GET /miss%d HTTP/1.1\r\n\r\n", i))
	}

	// The response is on the wire before the cycle is recorded.
	deadline := time.Now().Add(2 * time.Second)
	for m.Total() < misses+1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	snap := m.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 labels, got %d: %+v", len(snap), snap)
	}
	if snap[0].Route != router.MissKey || snap[0].ByClass["4xx"] != misses {
		t.Errorf("unexpected entry %+v", snap[0])
	}
	if snap[1].Route != "GET /x" || snap[1].ByClass["2xx"] != 1 {
		t.Errorf("unexpected entry %+v", snap[1])
	}
}

func TestEngineHandleLabels(t *testing.T) {
	e := NewEngine(WithMiddleware(func(req *http.Request, res *http.Response, next http.HandlerFunc) {
		if req.Path == "/style.css" {
			res.SendString("body{}")
			return
		}
		next(req, res)
	}))
	e.GET("/x", func(req *http.Request, res *http.Response) { res.SendString("x") })

	tests := []struct {
		method, path string
		want         string
	}{
		{"GET", "/style.css", MiddlewareKey},
		{"GET", "/X/", "GET /x"},
		{"GET", "/nope", router.MissKey},
		{"BREW", "/x", router.MissKey},
	}
	for _, tt := range tests {
		got := e.handle(&http.Request{Method: tt.method, Path: tt.path}, http.NewResponse(&recordConn{}))
		if got != tt.want {
			t.Errorf("handle(%s %q) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestEngineOneRequestPerConnection(t *testing.T) {
	var calls atomic.Int32
	e := NewEngine(WithLogger(quiet))
	e.GET("/x", func(req *http.Request, res *http.Response) {
		calls.Add(1)
		res.SendString("x")
	})
	addr := startEngine(t, e)

	cookie := "Cookie: " + strings.Repeat("a", 64<<10) + "\r\n"
	tests := []struct {
		name string
		raw  []string
	}{
		{"pipelined", []string{"GET /x HTTP/1.1\r\n\r\nGET /x HTTP/1.1\r\n\r\n"}},
		{"large header", []string{"GET /x HTTP/1.1\r\n" + cookie + "\r\n"}},
		{"two writes", []string{"GET /x HTTP/1.1\r\n", cookie + "\r\nGET /x HTTP/1.1\r\n\r\n"}},
	}

	want := "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\nx"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls.Store(0)
			if got := roundTrip(t, addr, tt.raw...); got != want {
				t.Errorf("got %q, want exactly one response %q", got, want)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("handler ran %d times, want 1", n)
			}
		})
	}
}

func TestEngineClientHangup(t *testing.T) {
	e := NewEngine(WithLogger(quiet))
	addr := startEngine(t, e)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for e.OpenConnections() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := e.OpenConnections(); n != 0 {
		t.Errorf("expected hung-up connection to be released, %d open", n)
	}
}

func TestEngineServeTwice(t *testing.T) {
	e := NewEngine(WithLogger(quiet))
	startEngine(t, e)

	// Wait for the first Serve to claim the engine.
	deadline := time.Now().Add(2 * time.Second)
	for e.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ln, err := nettest.NewLocalListener("tcp")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	if err := e.Serve(context.Background(), ln.(*net.TCPListener)); err != ErrEngineRunning {
		t.Errorf("expected ErrEngineRunning, got %v", err)
	}
}

func TestHandlerWithoutMiddleware(t *testing.T) {
	e := NewEngine()
	e.GET("/", func(req *http.Request, res *http.Response) { res.SendString("root") })

	conn := &recordConn{}
	e.Handler()(&http.Request{Method: "GET", Path: "/"}, http.NewResponse(conn))
	if want := "HTTP/1.1 200 OK\r\nContent-Type: text/html\r\n\r\nroot"; conn.String() != want {
		t.Errorf("got %q, want %q", conn.String(), want)
	}

	conn = &recordConn{}
	e.Handler()(&http.Request{Method: "GET", Path: "/nope"}, http.NewResponse(conn))
	if want := "HTTP/1.1 404 Not Found\r\nContent-Type: text/plain\r\n\r\nPage not found."; conn.String() != want {
		t.Errorf("got %q, want %q", conn.String(), want)
	}
}
