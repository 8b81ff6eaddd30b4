// Package poller reports which file descriptors are ready to read.
package poller

// Poller is the I/O multiplexing interface. Registrations are level-triggered:
// a descriptor with unread data is reported by every Wait until it is drained
// or removed.
type Poller interface {
	Add(fd int) error
	Remove(fd int) error
	// Wait blocks for at most timeout milliseconds and returns the ready descriptors.
	Wait(timeout int) ([]int, error)
	Close() error
}
