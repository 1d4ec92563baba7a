// Package event implements the poll-based event core shared by all three
// processes: fd registration with {read, write} interest sets, dispatch to
// handlers, and one-shot timers. Built on golang.org/x/sys/unix.Poll
// (poll(2)) for portability.
package event

import (
	"container/heap"
	"time"

	"golang.org/x/sys/unix"
)

// Interest is a bitmask of readiness a registration cares about.
type Interest uint8

const (
	Read Interest = 1 << iota
	Write
)

// Handler is invoked once per ready fd per RunOnce call.
type Handler func(fd int, readable, writable bool)

type registration struct {
	fd       int
	interest Interest
	handler  Handler
	detached bool // excluded from the next poll set, e.g. under fd exhaustion
}

// Loop is a single-threaded, cooperative event loop. Not safe for
// concurrent use from multiple goroutines; each process drives its own
// Loop from its single cooperative thread.
type Loop struct {
	regs   map[int]*registration
	timers timerQueue
	nextID int
}

// New returns an empty event loop.
func New() *Loop {
	return &Loop{regs: make(map[int]*registration)}
}

// Register adds fd with the given interest set and handler.
func (l *Loop) Register(fd int, interest Interest, h Handler) {
	l.regs[fd] = &registration{fd: fd, interest: interest, handler: h}
}

// Modify changes a registered fd's interest set.
func (l *Loop) Modify(fd int, interest Interest) {
	if r, ok := l.regs[fd]; ok {
		r.interest = interest
	}
}

// Unregister removes fd from the poll set entirely.
func (l *Loop) Unregister(fd int) {
	delete(l.regs, fd)
}

// Detach excludes fd from the poll set without forgetting its handler,
// used by the control endpoint's accept-backpressure mechanism: under fd
// exhaustion the listening fd is detached and a 1-second timer re-attaches
// it.
func (l *Loop) Detach(fd int) {
	if r, ok := l.regs[fd]; ok {
		r.detached = true
	}
}

// Attach re-includes a previously detached fd in the poll set.
func (l *Loop) Attach(fd int) {
	if r, ok := l.regs[fd]; ok {
		r.detached = false
	}
}

// AddTimer arms a one-shot timer that fires cb after d. Returns an id
// usable with CancelTimer.
func (l *Loop) AddTimer(d time.Duration, cb func()) int {
	l.nextID++
	heap.Push(&l.timers, &timerEntry{id: l.nextID, deadline: time.Now().Add(d), cb: cb})
	return l.nextID
}

// CancelTimer removes a pending timer by id, if still pending.
func (l *Loop) CancelTimer(id int) {
	for i, e := range l.timers {
		if e.id == id {
			heap.Remove(&l.timers, i)
			return
		}
	}
}

// RunOnce blocks for at most maxWait (or until the next timer deadline, if
// sooner) waiting for readiness, dispatches ready fds to their handlers,
// and then fires any timers whose deadline has passed. It performs at most
// one poll(2) call (none when nothing is registered and the wait is zero);
// callers loop on RunOnce themselves.
func (l *Loop) RunOnce(maxWait time.Duration) error {
	timeout := maxWait
	if len(l.timers) > 0 {
		until := time.Until(l.timers[0].deadline)
		if until < 0 {
			until = 0
		}
		if until < timeout {
			timeout = until
		}
	}

	pollFDs := make([]unix.PollFd, 0, len(l.regs))
	order := make([]*registration, 0, len(l.regs))
	for _, r := range l.regs {
		if r.detached {
			continue
		}
		var events int16
		if r.interest&Read != 0 {
			events |= unix.POLLIN
		}
		if r.interest&Write != 0 {
			events |= unix.POLLOUT
		}
		pollFDs = append(pollFDs, unix.PollFd{Fd: int32(r.fd), Events: events})
		order = append(order, r)
	}

	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	if len(pollFDs) > 0 || ms > 0 {
		_, err := unix.Poll(pollFDs, ms)
		if err != nil && err != unix.EINTR {
			return err
		}
	}

	for i, pfd := range pollFDs {
		if pfd.Revents == 0 {
			continue
		}
		r := order[i]
		readable := pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
		writable := pfd.Revents&unix.POLLOUT != 0
		if readable || writable {
			r.handler(r.fd, readable, writable)
		}
	}

	l.fireDueTimers()
	return nil
}

func (l *Loop) fireDueTimers() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
		e := heap.Pop(&l.timers).(*timerEntry)
		e.cb()
	}
}
