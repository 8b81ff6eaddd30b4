package core

import (
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Connection is one accepted socket.
type Connection struct {
	fd    int
	id    string
	state atomic.Int32
}

func newConnection(fd int) *Connection {
	c := &Connection{fd: fd, id: uuid.New().String()}
	c.state.Store(StateAccepted)
	return c
}

// ID identifies the connection in diagnostics.
func (c *Connection) ID() string {
	return c.id
}

// State returns the connection's lifecycle state.
func (c *Connection) State() int32 {
	return c.state.Load()
}

// fdConn is the io.WriteCloser a Response owns. The socket is in blocking
// mode by the time a response is written.
type fdConn struct {
	engine *Engine
	conn   *Connection
	closed atomic.Bool
}

func (c *fdConn) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, ErrConnClosed
	}

	written := 0
	for written < len(p) {
		n, err := unix.Write(c.conn.fd, p[written:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (c *fdConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrConnClosed
	}
	c.engine.linger(c.conn)
	return c.engine.closeConnection(c.conn)
}
