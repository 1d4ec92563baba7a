// Package playerlink implements the main process's side of the privileged
// main<->player socket: it composes WorkerPlay/Resume/Pause/Stop/Seek frames
// and decodes the player's WorkerEvent stream back into orchestrator calls.
package playerlink

import (
	log "github.com/sirupsen/logrus"

	"github.com/ampd-project/ampd/internal/controlendpoint"
	"github.com/ampd-project/ampd/internal/event"
	"github.com/ampd-project/ampd/internal/frame"
	"github.com/ampd-project/ampd/internal/orchestrator"
	"github.com/ampd-project/ampd/internal/protocol"
)

// EventSink receives decoded player events. orchestrator.Orchestrator
// satisfies this directly.
type EventSink interface {
	HandleWorkerEvent(r controlendpoint.Replier, ev protocol.WorkerEventPayload)
}

// Link wraps the main process's end of the socketpair connected to the
// player worker.
type Link struct {
	conn    *frame.Conn
	loop    *event.Loop
	sink    EventSink
	replier controlendpoint.Replier
	onDeath func()
	log     *log.Entry
	dead    bool
}

var _ orchestrator.PlayerLink = (*Link)(nil)

// New wraps fd (the main-side end of a socketpair created before forking
// the worker) and registers it with loop. replier is the same Replier the
// control endpoint hands to command dispatch, so worker-triggered broadcasts
// (track end, errors) reach monitor clients identically to client-triggered
// ones. onDeath is called once, at most, if the worker socket closes or a
// write to it fails — the caller is expected to respawn the worker.
func New(loop *event.Loop, fd int, sink EventSink, replier controlendpoint.Replier, onDeath func(), logger *log.Entry) *Link {
	l := &Link{conn: frame.New(fd), loop: loop, sink: sink, replier: replier, onDeath: onDeath, log: logger}
	loop.Register(fd, event.Read, l.onReady)
	return l
}

// Close closes the underlying socket.
func (l *Link) Close() error {
	l.loop.Unregister(l.conn.FD())
	return l.conn.Close()
}

func (l *Link) onReady(fd int, readable, writable bool) {
	if writable {
		if progress := l.conn.Flush(); progress.Closed {
			l.die("write failed, worker socket closed")
			return
		}
	}
	if readable {
		if _, err := l.conn.FillInput(); err != nil {
			l.die("closed: " + err.Error())
			return
		}
		for {
			msg, ok, err := l.conn.ReadOne()
			if err != nil {
				l.die("framing error: " + err.Error())
				return
			}
			if !ok {
				break
			}
			if msg.Type != protocol.TypeWorkerEvent {
				continue
			}
			ev, err := protocol.DecodeWorkerEvent(msg.Payload)
			if err != nil {
				l.log.WithError(err).Warn("malformed worker event")
				continue
			}
			l.sink.HandleWorkerEvent(l.replier, ev)
		}
	}
	l.syncInterest()
}

// die tears down the link once the worker socket is unusable and notifies
// onDeath so the caller can decide whether to respawn the worker.
func (l *Link) die(reason string) {
	if l.dead {
		return
	}
	l.dead = true
	l.log.Warn("player link " + reason)
	l.loop.Unregister(l.conn.FD())
	_ = l.conn.Close()
	if l.onDeath != nil {
		l.onDeath()
	}
}

func (l *Link) syncInterest() {
	interest := event.Read
	if l.conn.PendingOut() {
		interest |= event.Write
	}
	l.loop.Modify(l.conn.FD(), interest)
}

// Play hands fd to the worker inside a WorkerPlay frame. The orchestrator
// has already taken care of opening the file CLOEXEC; this link's own
// Compose/Flush machinery closes the sender's copy once the fd has actually
// crossed the socket (internal/frame's Flush behavior).
func (l *Link) Play(fd int) error {
	l.conn.Compose(protocol.TypeWorkerPlay, 0, fd, nil)
	l.syncInterest()
	return nil
}

func (l *Link) Resume() error {
	l.conn.Compose(protocol.TypeWorkerResume, 0, -1, nil)
	l.syncInterest()
	return nil
}

func (l *Link) Pause() error {
	l.conn.Compose(protocol.TypeWorkerPause, 0, -1, nil)
	l.syncInterest()
	return nil
}

func (l *Link) Stop() error {
	l.conn.Compose(protocol.TypeWorkerStop, 0, -1, nil)
	l.syncInterest()
	return nil
}

func (l *Link) Seek(p protocol.SeekPayload) error {
	l.conn.Compose(protocol.TypeWorkerSeek, 0, -1, p.Encode())
	l.syncInterest()
	return nil
}

// SetVolume and SetMute are off the critical path of the client command
// set: nothing in the control protocol routes to them, but internal/
// presence's MPRIS adapter does, through
// orchestrator.Orchestrator.SetVolume/SetMute.
func (l *Link) SetVolume(level float64) error {
	l.conn.Compose(protocol.TypeWorkerVolume, 0, -1, protocol.VolumePayload{Level: level}.Encode())
	l.syncInterest()
	return nil
}

func (l *Link) SetMute(muted bool) error {
	l.conn.Compose(protocol.TypeWorkerMute, 0, -1, protocol.MutePayload{Muted: muted}.Encode())
	l.syncInterest()
	return nil
}
