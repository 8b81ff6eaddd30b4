package core

import (
	"errors"
	"time"
)

// Error definitions
var (
	ErrEngineRunning = errors.New("engine is already serving")
	ErrConnClosed    = errors.New("connection closed")
)

// MiddlewareKey labels requests the middleware answered without calling next.
const MiddlewareKey = "<middleware>"

// Connection states. A connection moves forward only; it serves exactly one
// request and is then closed.
const (
	StateAccepted int32 = iota
	StateAwaitingData
	StateDecoded
	StateResponding
	StateClosed
)

const (
	readBufferSize = 4096
	pollTimeoutMs  = 100

	lingerTimeout  = time.Second
	lingerMaxBytes = 1 << 20
)
