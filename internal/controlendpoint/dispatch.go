package controlendpoint

import (
	"errors"
	"io"

	"github.com/ampd-project/ampd/internal/event"
	"github.com/ampd-project/ampd/internal/frame"
	"github.com/ampd-project/ampd/internal/logging"
	"github.com/ampd-project/ampd/internal/playstate"
	"github.com/ampd-project/ampd/internal/protocol"
)

// onConnReady is the per-connection turn of the event loop: it reads all
// currently available messages from a connection, dispatches each, and
// returns, in a single atomic turn.
func (e *Endpoint) onConnReady(id int, readable, writable bool) {
	c, ok := e.table.get(id)
	if !ok {
		return
	}

	if writable {
		if e.flushConn(c) {
			return
		}
	}
	if readable {
		if e.readConn(c) {
			return
		}
	}
	e.syncInterest(c)
}

func (e *Endpoint) readConn(c *Connection) (closed bool) {
	if _, err := c.Conn.FillInput(); err != nil {
		e.closeConn(c, err)
		return true
	}

	for {
		msg, ok, err := c.Conn.ReadOne()
		if err != nil {
			e.closeConn(c, err)
			return true
		}
		if !ok {
			return false
		}
		e.dispatch(c, msg)
	}
}

func (e *Endpoint) flushConn(c *Connection) (closed bool) {
	progress := c.Conn.Flush()
	if progress.Closed {
		e.closeConn(c, errors.New("controlendpoint: write failed"))
		return true
	}
	return false
}

func (e *Endpoint) syncInterest(c *Connection) {
	interest := event.Read
	if c.Conn.PendingOut() {
		interest |= event.Write
	}
	e.loop.Modify(c.Conn.FD(), interest)
}

func (e *Endpoint) closeConn(c *Connection, err error) {
	entry := logging.Conn(e.log, c.ID)
	if err != nil && !errors.Is(err, io.EOF) {
		entry.WithError(err).Debug("connection closed")
	} else {
		entry.Debug("connection closed")
	}
	e.loop.Unregister(c.Conn.FD())
	_ = c.Conn.Close()
	e.table.remove(c.ID)
	e.handler.ConnectionClosed(c.ID)
}

// dispatch decodes one frame's payload and calls the matching Handler
// method. Malformed payloads close the connection.
func (e *Endpoint) dispatch(c *Connection, msg frame.Message) {
	h := e.handler
	switch msg.Type {
	case protocol.TypePlay:
		h.Play(e, c.ID)
	case protocol.TypeTogglePlay:
		h.TogglePlay(e, c.ID)
	case protocol.TypePause:
		h.Pause(e, c.ID)
	case protocol.TypeStop:
		h.Stop(e, c.ID)
	case protocol.TypeNext:
		h.Next(e, c.ID)
	case protocol.TypePrev:
		h.Prev(e, c.ID)
	case protocol.TypeJump:
		p, err := protocol.DecodeJump(msg.Payload)
		if err != nil {
			e.protocolError(c, err)
			return
		}
		h.Jump(e, c.ID, p.Target)
	case protocol.TypeSeek:
		p, err := protocol.DecodeSeek(msg.Payload)
		if err != nil {
			e.protocolError(c, err)
			return
		}
		h.Seek(e, c.ID, p)
	case protocol.TypeMode:
		p, err := protocol.DecodeMode(msg.Payload)
		if err != nil {
			e.protocolError(c, err)
			return
		}
		h.Mode(e, c.ID, modeUpdateFromPayload(p))
	case protocol.TypeFlush:
		h.Flush(e, c.ID)
	case protocol.TypeShow:
		h.Show(e, c.ID)
	case protocol.TypeStatus:
		h.Status(e, c.ID)
	case protocol.TypeMonitor:
		c.Monitor = true
	case protocol.TypeBegin:
		h.Begin(e, c.ID)
	case protocol.TypeAdd:
		p, err := protocol.DecodePath(msg.Payload)
		if err != nil {
			e.protocolError(c, err)
			return
		}
		h.Add(e, c.ID, p.Path)
	case protocol.TypeCommit:
		p, err := protocol.DecodeCommit(msg.Payload)
		if err != nil {
			e.protocolError(c, err)
			return
		}
		h.Commit(e, c.ID, p.Offset)
	default:
		e.protocolError(c, protocol.ErrWrongSize)
	}
}

func (e *Endpoint) protocolError(c *Connection, err error) {
	logging.Conn(e.log, c.ID).WithError(err).Debug("protocol error, closing connection")
	e.closeConn(c, err)
}

func modeUpdateFromPayload(p protocol.ModePayload) playstate.ModeUpdate {
	return playstate.ModeUpdate{
		RepeatOne: playstate.ModeRequest(p.RepeatOne),
		RepeatAll: playstate.ModeRequest(p.RepeatAll),
		Consume:   playstate.ModeRequest(p.Consume),
	}
}

// --- Replier implementation ---

// Reply enqueues a reply frame on the originating connection only, tagged
// with that connection's own peer pid: SO_PEERCRED is captured once at
// accept time in internal/controlendpoint's acceptConn and carried on
// Connection.Pid from then on.
func (e *Endpoint) Reply(connID int, msgType protocol.Type, payload []byte) {
	c, ok := e.table.get(connID)
	if !ok {
		return
	}
	c.Conn.ComposeWithUID(msgType, c.Pid, c.Uid, -1, payload)
	e.syncInterest(c)
}

// ReplyError sends an Error frame to the originating connection, for
// transactional or protocol errors that don't warrant closing the
// connection outright.
func (e *Endpoint) ReplyError(connID int, message string) {
	e.Reply(connID, protocol.TypeError, protocol.ErrorPayload{Message: message}.Encode())
}

// Broadcast composes one MonitorEvent frame per monitor-subscribed
// connection, iterating the table rather than materializing a shared
// buffer.
func (e *Endpoint) Broadcast(ev protocol.Type, position, duration int64, modes playstate.Modes) {
	payload := protocol.MonitorEventPayload{
		Event:     byte(ev),
		Position:  position,
		Duration:  duration,
		RepeatOne: modes.RepeatOne,
		RepeatAll: modes.RepeatAll,
		Consume:   modes.Consume,
	}.Encode()

	e.table.each(func(c *Connection) {
		if !c.Monitor {
			return
		}
		c.Conn.ComposeWithUID(protocol.TypeMonitorEvent, c.Pid, c.Uid, -1, payload)
		e.syncInterest(c)
	})
}

// StreamEntries replies to a Show command: one PlaylistEntry frame per
// path, terminated by an empty-payload frame.
func (e *Endpoint) StreamEntries(connID int, entries []string) {
	c, ok := e.table.get(connID)
	if !ok {
		return
	}
	for _, path := range entries {
		c.Conn.ComposeWithUID(protocol.TypePlaylistEntry, c.Pid, c.Uid, -1, protocol.PathPayload{Path: path}.Encode())
	}
	c.Conn.ComposeWithUID(protocol.TypePlaylistEntry, c.Pid, c.Uid, -1, nil)
	e.syncInterest(c)
}
