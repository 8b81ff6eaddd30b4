package core

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/searchktools/webby/core/http"
	"github.com/searchktools/webby/core/observability"
	"github.com/searchktools/webby/core/poller"
	"github.com/searchktools/webby/core/pools"
	"github.com/searchktools/webby/core/router"
)

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets how many goroutines run request/response cycles.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.numWorkers = n
	}
}

// WithLogger replaces the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithAccessLog logs one line per dispatched request.
func WithAccessLog(on bool) Option {
	return func(e *Engine) {
		e.accessLog = on
	}
}

// WithMonitor records every dispatched request in m.
func WithMonitor(m *observability.Monitor) Option {
	return func(e *Engine) {
		e.monitor = m
	}
}

// WithMiddleware fills the middleware slot, same as calling Use.
func WithMiddleware(mw http.Middleware) Option {
	return func(e *Engine) {
		e.middleware = mw
	}
}

// Engine accepts connections on a raw listening socket and serves one request
// per connection: read once, decode, run the middleware (if any) or the route
// table, write the response and close.
//
// Accepting and readiness polling happen on the goroutine that called Serve.
// Decoded requests are handed to a worker pool so a slow file read or handler
// never stalls other connections. Routes and the middleware must be set up
// before Serve is called.
type Engine struct {
	router     *router.Registry
	middleware http.Middleware

	poller      poller.Poller
	workers     *pools.WorkerPool
	bytePool    *pools.BytePool
	connections map[int]*Connection
	connMu      sync.Mutex

	numWorkers int
	logger     *log.Logger
	accessLog  bool
	monitor    *observability.Monitor

	running atomic.Bool
	addrMu  sync.RWMutex
	addr    net.Addr
}

// NewEngine creates a new engine instance
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		router:      router.NewRegistry(),
		bytePool:    pools.NewBytePool(),
		connections: make(map[int]*Connection, 1024),
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GET registers a GET route
func (e *Engine) GET(path string, handler http.HandlerFunc) {
	e.router.GET(path, handler)
}

// Handle registers a route for any method.
func (e *Engine) Handle(method, path string, handler http.HandlerFunc) {
	e.router.Add(method, path, handler)
}

// Use installs the single middleware. A later call replaces the earlier one.
func (e *Engine) Use(mw http.Middleware) {
	e.middleware = mw
}

// Router exposes the route registry.
func (e *Engine) Router() *router.Registry {
	return e.router
}

// Handler returns the dispatch entry point: the middleware with the route
// table as its next step, or the route table alone.
func (e *Engine) Handler() http.HandlerFunc {
	mw, next := e.middleware, e.router.Dispatch
	if mw == nil {
		return next
	}
	return func(req *http.Request, res *http.Response) {
		mw(req, res, next)
	}
}

// handle runs one request through the middleware slot and route table and
// returns the label it is recorded under: a registered route key,
// router.MissKey, or MiddlewareKey.
func (e *Engine) handle(req *http.Request, res *http.Response) string {
	if e.middleware == nil {
		return e.router.Route(req, res)
	}

	label := MiddlewareKey
	e.middleware(req, res, func(req *http.Request, res *http.Response) {
		label = e.router.Route(req, res)
	})
	return label
}

// Addr returns the bound address while serving.
func (e *Engine) Addr() net.Addr {
	e.addrMu.RLock()
	defer e.addrMu.RUnlock()
	return e.addr
}

// Run listens on addr and serves until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, addr string) error {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", addr, err)
	}

	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer ln.Close()

	return e.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled. The caller keeps
// ownership of ln.
func (e *Engine) Serve(ctx context.Context, ln *net.TCPListener) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	defer e.running.Store(false)

	lnFile, err := ln.File()
	if err != nil {
		return fmt.Errorf("listener fd: %w", err)
	}
	defer lnFile.Close()

	lfd := int(lnFile.Fd())
	if err := unix.SetNonblock(lfd, true); err != nil {
		return fmt.Errorf("listener nonblock: %w", err)
	}

	e.poller, err = poller.NewPoller()
	if err != nil {
		return fmt.Errorf("poller: %w", err)
	}
	defer e.poller.Close()

	if err := e.poller.Add(lfd); err != nil {
		return fmt.Errorf("poll listener: %w", err)
	}

	e.workers = pools.NewWorkerPool(e.numWorkers)

	e.addrMu.Lock()
	e.addr = ln.Addr()
	e.addrMu.Unlock()

	e.logger.Printf("🚀 Listening on %s (%d workers, %d routes)", ln.Addr(), e.workers.Stats().NumWorkers, e.router.Len())

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		default:
		}

		fds, err := e.poller.Wait(pollTimeoutMs)
		if err != nil {
			e.logger.Printf("Poller wait error: %v", err)
			continue
		}

		for _, fd := range fds {
			if fd == lfd {
				e.acceptConnections(lfd)
			} else {
				e.handleRead(fd)
			}
		}
	}
}

// acceptConnections accepts every pending connection
func (e *Engine) acceptConnections(lfd int) {
	for {
		nfd, _, err := unix.Accept(lfd)
		if err == unix.EAGAIN {
			return
		}
		if err == unix.EINTR || err == unix.ECONNABORTED {
			continue
		}
		if err != nil {
			e.logger.Printf("Accept error: %v", err)
			return
		}

		unix.CloseOnExec(nfd)
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}
		unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

		conn := newConnection(nfd)

		e.connMu.Lock()
		e.connections[nfd] = conn
		e.connMu.Unlock()

		if err := e.poller.Add(nfd); err != nil {
			e.logger.Printf("Poll add error [%s]: %v", conn.id, err)
			e.closeConnection(conn)
			continue
		}
		conn.state.Store(StateAwaitingData)
	}
}

// handleRead reads the connection's first delivery and hands it off.
// Whatever arrives after that is never decoded.
func (e *Engine) handleRead(fd int) {
	e.connMu.Lock()
	conn, ok := e.connections[fd]
	e.connMu.Unlock()

	if !ok || conn.state.Load() != StateAwaitingData {
		return
	}

	buf := e.bytePool.Get(readBufferSize)
	defer e.bytePool.Put(buf)

	n, err := unix.Read(fd, buf)
	if err == unix.EAGAIN || err == unix.EINTR {
		return
	}
	if err != nil || n <= 0 {
		e.closeConnection(conn)
		return
	}

	e.poller.Remove(fd)
	if err := unix.SetNonblock(fd, false); err != nil {
		e.closeConnection(conn)
		return
	}

	req := http.ParseRequest(buf[:n])
	conn.state.Store(StateDecoded)

	if !e.workers.Submit(func() { e.serve(conn, req) }) {
		e.closeConnection(conn)
	}
}

// serve runs one request/response cycle on a worker.
func (e *Engine) serve(conn *Connection, req *http.Request) {
	conn.state.Store(StateResponding)
	res := http.NewResponse(&fdConn{engine: e, conn: conn})

	start := time.Now()
	label := e.handle(req, res)
	elapsed := time.Since(start)

	if e.monitor != nil {
		e.monitor.RecordRequest(label, elapsed, res.StatusCode)
	}
	if e.accessLog {
		e.logger.Printf("[%s] %s %s -> %d (%v)", conn.id, req.Method, req.Path, res.StatusCode, elapsed)
	}
}

// closeConnection closes conn's socket once. It is a no-op if the descriptor
// has already been released, even if the number was reused since.
func (e *Engine) closeConnection(conn *Connection) error {
	e.connMu.Lock()
	if e.connections[conn.fd] != conn {
		e.connMu.Unlock()
		return ErrConnClosed
	}
	delete(e.connections, conn.fd)
	e.connMu.Unlock()

	if conn.state.Swap(StateClosed) == StateAwaitingData {
		e.poller.Remove(conn.fd)
	}
	return unix.Close(conn.fd)
}

// linger half-closes conn and discards what the peer still sends until it
// closes its side, lingerTimeout passes or lingerMaxBytes are read. Closing a
// socket with unread input makes the kernel reset the connection, and the
// peer may then lose the response.
func (e *Engine) linger(conn *Connection) {
	fd := conn.fd
	if err := unix.Shutdown(fd, unix.SHUT_WR); err != nil {
		return
	}

	tv := unix.NsecToTimeval(lingerTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return
	}

	buf := e.bytePool.Get(readBufferSize)
	defer e.bytePool.Put(buf)

	deadline := time.Now().Add(lingerTimeout)
	for drained := 0; drained < lingerMaxBytes && time.Now().Before(deadline); {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			return
		}
		drained += n
	}
}

// shutdown closes idle connections, lets in-flight cycles finish, then closes
// whatever their handlers left open.
func (e *Engine) shutdown() {
	e.closeWhere(func(c *Connection) bool {
		s := c.state.Load()
		return s == StateAccepted || s == StateAwaitingData
	})
	e.workers.Close()
	e.closeWhere(func(*Connection) bool { return true })

	e.logger.Printf("Server on %s stopped", e.Addr())
}

func (e *Engine) closeWhere(match func(*Connection) bool) {
	e.connMu.Lock()
	var conns []*Connection
	for _, c := range e.connections {
		if match(c) {
			conns = append(conns, c)
		}
	}
	e.connMu.Unlock()

	for _, c := range conns {
		e.closeConnection(c)
	}
}

// OpenConnections returns the number of sockets currently held open.
func (e *Engine) OpenConnections() int {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	return len(e.connections)
}
