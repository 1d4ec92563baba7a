// Package controlendpoint implements the client-facing control socket:
// accept loop, per-connection framing, dispatch table, and broadcast
// fan-out. It is linked into the main process but is a self-contained
// component with its own connection table and dispatch table — it never
// reaches into orchestrator state directly; it only calls Handler.
package controlendpoint

import (
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ampd-project/ampd/internal/event"
	"github.com/ampd-project/ampd/internal/frame"
	"github.com/ampd-project/ampd/internal/logging"
)

// acceptPause is how long the listener is detached under fd exhaustion
// before the event core retries it.
const acceptPause = time.Second

// backlog is deliberately small: this is a local control socket, not an
// internet-facing listener.
const backlog = 5

// Endpoint owns the listening socket and the connection table.
type Endpoint struct {
	socketPath string
	listenFD   int
	loop       *event.Loop
	handler    Handler
	table      *table
	log        *log.Entry
}

// New constructs an Endpoint. Call Start to bind and begin accepting.
func New(loop *event.Loop, socketPath string, handler Handler, logger *log.Entry) *Endpoint {
	return &Endpoint{
		socketPath: socketPath,
		listenFD:   -1,
		loop:       loop,
		handler:    handler,
		table:      newTable(),
		log:        logger,
	}
}

// Start creates the filesystem socket — unlinking any stale entry, mode
// 0660, small backlog — and registers it for accepts.
func (e *Endpoint) Start() error {
	fd, err := bindListener(e.socketPath)
	if err != nil {
		return err
	}
	e.listenFD = fd
	e.loop.Register(fd, event.Read, e.onListenerReady)
	return nil
}

// Close shuts down every live connection and removes the socket file. Used
// on graceful shutdown.
func (e *Endpoint) Close() {
	e.table.each(func(c *Connection) {
		e.handler.ConnectionClosed(c.ID)
		_ = c.Conn.Close()
		e.loop.Unregister(c.Conn.FD())
	})
	if e.listenFD >= 0 {
		e.loop.Unregister(e.listenFD)
		_ = unix.Close(e.listenFD)
		e.listenFD = -1
	}
	_ = os.Remove(e.socketPath)
}

func bindListener(path string) (int, error) {
	_ = os.Remove(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("controlendpoint: socket: %w", err)
	}

	// User and group read/write only; restore the process umask immediately
	// after bind.
	oldMask := unix.Umask(0o117)
	bindErr := unix.Bind(fd, &unix.SockaddrUnix{Name: path})
	unix.Umask(oldMask)
	if bindErr != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("controlendpoint: bind %s: %w", path, bindErr)
	}

	if err := os.Chmod(path, 0o660); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("controlendpoint: chmod %s: %w", path, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("controlendpoint: listen: %w", err)
	}
	return fd, nil
}

func (e *Endpoint) onListenerReady(fd int, readable, writable bool) {
	if !readable {
		return
	}
	for {
		connFD, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return
			}
			if errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE) {
				e.pauseAccept()
				return
			}
			e.log.WithError(err).Warn("accept failed")
			return
		}
		e.acceptConn(connFD)
	}
}

// pauseAccept is the only fd-exhaustion backpressure mechanism: detach the
// listener from the poll set and re-attach it after acceptPause.
func (e *Endpoint) pauseAccept() {
	e.log.Warn("fd exhaustion on accept, pausing listener")
	e.loop.Detach(e.listenFD)
	e.loop.AddTimer(acceptPause, func() {
		e.loop.Attach(e.listenFD)
	})
}

func (e *Endpoint) acceptConn(fd int) {
	pid, uid := peerCredentials(fd)

	c := &Connection{Conn: frame.New(fd), Pid: pid, Uid: uid}
	id := e.table.insert(c)
	e.handler.ConnectionOpened(id, pid, uid)

	e.loop.Register(fd, event.Read, func(fd int, readable, writable bool) {
		e.onConnReady(id, readable, writable)
	})
	logging.Conn(e.log, id).Debug("accepted connection")
}

// peerCredentials captures SO_PEERCRED at accept time. Zero values are used
// if the platform or socket type doesn't support it.
func peerCredentials(fd int) (pid int32, uid uint32) {
	cred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, 0
	}
	return cred.Pid, cred.Uid
}
