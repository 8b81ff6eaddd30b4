//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// KqueuePoller is a kqueue-based I/O multiplexer
type KqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

// NewPoller creates a new Poller (BSD, macOS)
func NewPoller() (Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}

	return &KqueuePoller{
		kqfd:   kqfd,
		events: make([]unix.Kevent_t, 256),
	}, nil
}

// Add watches fd for readability.
func (p *KqueuePoller) Add(fd int) error {
	return p.change(fd, unix.EV_ADD|unix.EV_ENABLE)
}

// Remove stops watching fd.
func (p *KqueuePoller) Remove(fd int) error {
	return p.change(fd, unix.EV_DELETE)
}

func (p *KqueuePoller) change(fd, flags int) error {
	var ev unix.Kevent_t
	unix.SetKevent(&ev, fd, unix.EVFILT_READ, flags)

	_, err := unix.Kevent(p.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

// Wait waits for I/O events
func (p *KqueuePoller) Wait(timeout int) ([]int, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec((time.Duration(timeout) * time.Millisecond).Nanoseconds())
		ts = &t
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil && err != unix.EINTR {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	fds := make([]int, n)
	for i := 0; i < n; i++ {
		fds[i] = int(p.events[i].Ident)
	}
	return fds, nil
}

// Close closes the kqueue.
func (p *KqueuePoller) Close() error {
	return unix.Close(p.kqfd)
}
