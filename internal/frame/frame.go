// Package frame implements a length-delimited framing protocol: frames
// carry (type, peer-pid, peer-uid, optional file descriptor, payload-bytes)
// over a non-blocking stream socket, with fds re-accepted CLOEXEC on the
// receiving side.
//
// This talks directly to raw socket fds via golang.org/x/sys/unix rather
// than net.Conn so the event core (internal/event) can drive it with
// poll(2) readiness instead of a per-connection goroutine.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/ampd-project/ampd/internal/protocol"
)

// headerSize is len(Type)+len(Pid)+len(Uid)+len(HasFD)+len(PayloadLen).
const headerSize = 4 + 4 + 4 + 1 + 4

// maxPayload bounds a single frame's payload; anything larger is treated as
// corrupt and terminates the connection.
const maxPayload = 1 << 20

var nativeEndian = binary.NativeEndian

// ErrCorruptFrame is returned by ReadOne when a frame's header is malformed
// or its declared length exceeds maxPayload.
var ErrCorruptFrame = errors.New("frame: corrupt or over-long frame")

// Message is one fully decoded frame.
type Message struct {
	Type    protocol.Type
	Pid     int32
	Uid     uint32
	FD      int // -1 if no fd was attached
	Payload []byte
}

// HasFD reports whether the message carries a passed file descriptor.
func (m Message) HasFD() bool {
	return m.FD >= 0
}

// pendingOut is one composed-but-not-yet-flushed outbound frame.
type pendingOut struct {
	header []byte
	fd     int // -1 if none
	sent   int // bytes of header+payload already written
	body   []byte
}

// Progress reports the outcome of one Flush call.
type Progress struct {
	Written    int
	WouldBlock bool
	Closed     bool
}

// Conn wraps one connection's raw fd with per-connection input/output
// framing buffers.
type Conn struct {
	fd     int
	in     bytes.Buffer
	inFDs  []int
	out    []*pendingOut
	closed bool
}

// New wraps fd, which the caller has already made non-blocking. The Conn
// takes ownership of fd; Close() closes it.
func New(fd int) *Conn {
	return &Conn{fd: fd}
}

// FD returns the underlying file descriptor, for event-core registration.
func (c *Conn) FD() int {
	return c.fd
}

// Compose enqueues one frame on the output buffer. fd is -1 for none; a
// passed fd is only ever attached to the first unwritten byte of its frame
// (see Flush), so ownership transits to the peer precisely at the moment
// the frame crosses the wire.
func (c *Conn) Compose(msgType protocol.Type, pid int32, fd int, payload []byte) {
	c.ComposeWithUID(msgType, pid, 0, fd, payload)
}

// ComposeWithUID is Compose plus an explicit uid field (used by the control
// endpoint, which stamps peer credentials captured at accept time).
func (c *Conn) ComposeWithUID(msgType protocol.Type, pid int32, uid uint32, fd int, payload []byte) {
	header := make([]byte, headerSize)
	nativeEndian.PutUint32(header[0:4], uint32(msgType))
	nativeEndian.PutUint32(header[4:8], uint32(pid))
	nativeEndian.PutUint32(header[8:12], uid)
	var hasFD byte
	if fd >= 0 {
		hasFD = 1
	}
	header[12] = hasFD
	nativeEndian.PutUint32(header[13:17], uint32(len(payload)))

	body := make([]byte, 0, len(header)+len(payload))
	body = append(body, header...)
	body = append(body, payload...)

	c.out = append(c.out, &pendingOut{header: header, fd: fd, body: body})
}

// PendingOut reports whether Flush has work to do.
func (c *Conn) PendingOut() bool {
	return len(c.out) > 0
}

// Flush writes as much of the queued output as the socket accepts without
// blocking. Frames are written whole-message-at-a-time from the receiver's
// point of view but Flush tolerates partial writes on a single frame by
// resuming from pendingOut.sent on the next call, preserving FIFO order
// per connection.
func (c *Conn) Flush() Progress {
	var total int
	for len(c.out) > 0 {
		p := c.out[0]
		n, err := c.writeOne(p)
		total += n
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return Progress{Written: total, WouldBlock: true}
			}
			c.closed = true
			return Progress{Written: total, Closed: true}
		}
		if p.sent >= len(p.body) {
			c.out = c.out[1:]
			continue
		}
		// Partial write; socket buffer is full for now.
		return Progress{Written: total, WouldBlock: true}
	}
	return Progress{Written: total}
}

func (c *Conn) writeOne(p *pendingOut) (int, error) {
	remaining := p.body[p.sent:]
	var n int
	var err error
	if p.fd >= 0 && p.sent == 0 {
		rights := unix.UnixRights(p.fd)
		n, err = unix.SendmsgN(c.fd, remaining, rights, nil, unix.MSG_DONTWAIT)
		if err == nil {
			// The fd has now crossed the connection boundary; the sender's
			// copy is no longer ours to keep open.
			_ = unix.Close(p.fd)
			p.fd = -1
		}
	} else {
		n, err = unix.Write(c.fd, remaining)
	}
	if n > 0 {
		p.sent += n
	}
	return n, err
}

// FillInput performs one non-blocking read of raw bytes (and any attached
// fd) into the input buffer. Returns io.EOF on orderly close, or an error
// on a hard failure; unix.EAGAIN is folded into a (0, nil) no-op so callers
// can treat "nothing to read right now" uniformly.
func (c *Conn) FillInput() (int, error) {
	buf := make([]byte, 65536)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := unix.Recvmsg(c.fd, buf, oob, unix.MSG_DONTWAIT)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	c.in.Write(buf[:n])

	if oobn > 0 {
		cmsgs, perr := unix.ParseSocketControlMessage(oob[:oobn])
		if perr == nil {
			for _, cmsg := range cmsgs {
				fds, ferr := unix.ParseUnixRights(&cmsg)
				if ferr != nil {
					continue
				}
				for _, fd := range fds {
					_ = unix.SetNonblock(fd, true)
					unix.CloseOnExec(fd)
					c.inFDs = append(c.inFDs, fd)
				}
			}
		}
	}
	return n, nil
}

// ReadOne non-destructively pulls one complete frame from the input
// buffer, or (Message{}, false) if a full frame isn't buffered yet. A
// declared payload length beyond maxPayload is reported as ErrCorruptFrame,
// and the caller must close the connection.
func (c *Conn) ReadOne() (Message, bool, error) {
	raw := c.in.Bytes()
	if len(raw) < headerSize {
		return Message{}, false, nil
	}
	msgType := protocol.Type(nativeEndian.Uint32(raw[0:4]))
	pid := int32(nativeEndian.Uint32(raw[4:8]))
	uid := nativeEndian.Uint32(raw[8:12])
	hasFD := raw[12] != 0
	length := nativeEndian.Uint32(raw[13:17])
	if length > maxPayload {
		return Message{}, false, ErrCorruptFrame
	}
	total := headerSize + int(length)
	if len(raw) < total {
		return Message{}, false, nil
	}

	payload := make([]byte, length)
	copy(payload, raw[headerSize:total])
	c.in.Next(total)

	fd := -1
	if hasFD {
		if len(c.inFDs) == 0 {
			return Message{}, false, fmt.Errorf("%w: has-fd set but none received", ErrCorruptFrame)
		}
		fd = c.inFDs[0]
		c.inFDs = c.inFDs[1:]
	}

	return Message{Type: msgType, Pid: pid, Uid: uid, FD: fd, Payload: payload}, true, nil
}

// Close closes the underlying fd. Safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	for _, fd := range c.inFDs {
		_ = unix.Close(fd)
	}
	c.inFDs = nil
	return unix.Close(c.fd)
}
