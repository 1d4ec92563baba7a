// Package orchestrator implements the main process's canonical state and
// command dispatch: the playlist, the play-state machine, the playback
// modes, and the transaction. It implements controlendpoint.Handler so the
// control endpoint can dispatch into it without either package importing
// the other's internals.
package orchestrator

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ampd-project/ampd/internal/controlendpoint"
	"github.com/ampd-project/ampd/internal/logging"
	"github.com/ampd-project/ampd/internal/playlist"
	"github.com/ampd-project/ampd/internal/playstate"
	"github.com/ampd-project/ampd/internal/protocol"
	"github.com/ampd-project/ampd/internal/transaction"
)

// PlayerLink is the main process's view of the privileged socket to the
// player worker. The concrete implementation is internal/playerlink's Link,
// which owns the fd-passing frame.Conn; cmd/ampd wires it in.
type PlayerLink interface {
	Play(fd int) error
	Resume() error
	Pause() error
	Stop() error
	Seek(p protocol.SeekPayload) error
	SetVolume(level float64) error
	SetMute(muted bool) error
}

// Orchestrator owns every piece of per-process mutable state the control
// endpoint dispatches into: a single context value passed to handlers,
// never a true global.
type Orchestrator struct {
	pl    *playlist.Playlist
	state playstate.State
	modes playstate.Modes
	txn   *transaction.Transaction

	position int64
	duration int64

	player PlayerLink
	log    *log.Entry
}

// New constructs an Orchestrator with an empty playlist, Stopped, and the
// given initial playback modes (seeded from configuration).
func New(player PlayerLink, initialModes playstate.Modes, logger *log.Entry) *Orchestrator {
	return &Orchestrator{
		pl:     playlist.New(),
		modes:  initialModes,
		txn:    transaction.New(),
		player: player,
		log:    logger,
	}
}

// Playlist exposes the live playlist for snapshot save/restore at startup
// and shutdown.
func (o *Orchestrator) Playlist() *playlist.Playlist {
	return o.pl
}

// RestorePlaylist replaces the live playlist wholesale, used once at
// startup before the event loop begins accepting connections.
func (o *Orchestrator) RestorePlaylist(restored *playlist.Playlist) {
	o.pl = restored
}

// State, CurrentTrack, Position, Duration, Modes, HasNext, HasPrev and
// PlaylistEmpty are read-only accessors for presentation surfaces that
// don't go through the control endpoint's command dispatch, namely
// internal/presence's MPRIS adapter.
func (o *Orchestrator) State() playstate.State { return o.state }

func (o *Orchestrator) CurrentTrack() (string, bool) { return o.pl.Current() }

func (o *Orchestrator) Position() int64 { return o.position }

func (o *Orchestrator) Duration() int64 { return o.duration }

func (o *Orchestrator) Modes() playstate.Modes { return o.modes }

func (o *Orchestrator) HasNext() bool {
	return o.pl.Cursor() != playlist.NoCursor && o.pl.Cursor() < o.pl.Len()-1
}

func (o *Orchestrator) HasPrev() bool {
	return o.pl.Cursor() > 0
}

// SetVolume and SetMute forward to the player link's worker-bound volume
// messages. Like the accessors above, these are off the client command
// set dispatched by controlendpoint; their only caller is internal/
// presence's MPRIS adapter, whose Volume property is the one surface this
// daemon exposes for them.
func (o *Orchestrator) SetVolume(level float64) error {
	return o.player.SetVolume(level)
}

func (o *Orchestrator) SetMute(muted bool) error {
	return o.player.SetMute(muted)
}

func (o *Orchestrator) PlaylistEmpty() bool { return o.pl.Len() == 0 }

var _ controlendpoint.Handler = (*Orchestrator)(nil)

func (o *Orchestrator) Play(r controlendpoint.Replier, connID int) {
	next, needResume, ev := playstate.Play(o.state)
	if ev == playstate.EventNone {
		return
	}
	if needResume {
		if err := o.player.Resume(); err != nil {
			o.log.WithError(err).Warn("resume failed")
			return
		}
		o.state = next
		o.broadcast(r, protocol.TypePlay)
		return
	}
	if o.pl.Cursor() == playlist.NoCursor {
		if o.pl.Len() == 0 {
			return
		}
		_ = o.pl.SetCursor(0)
	}
	if !o.startCurrentTrack(r) {
		return
	}
	o.state = next
	o.broadcast(r, protocol.TypePlay)
}

func (o *Orchestrator) TogglePlay(r controlendpoint.Replier, connID int) {
	next, needResume, ev := playstate.TogglePlay(o.state)
	switch {
	case ev == playstate.EventPause:
		if err := o.player.Pause(); err != nil {
			o.log.WithError(err).Warn("pause failed")
			return
		}
		o.state = next
		o.broadcast(r, protocol.TypePause)
	case needResume:
		if err := o.player.Resume(); err != nil {
			o.log.WithError(err).Warn("resume failed")
			return
		}
		o.state = next
		o.broadcast(r, protocol.TypePlay)
	default: // cold start from Stopped
		if o.pl.Cursor() == playlist.NoCursor {
			if o.pl.Len() == 0 {
				return
			}
			_ = o.pl.SetCursor(0)
		}
		if !o.startCurrentTrack(r) {
			return
		}
		o.state = next
		o.broadcast(r, protocol.TypePlay)
	}
}

func (o *Orchestrator) Pause(r controlendpoint.Replier, connID int) {
	next, ok := playstate.Pause(o.state)
	if !ok {
		return
	}
	if err := o.player.Pause(); err != nil {
		o.log.WithError(err).Warn("pause failed")
		return
	}
	o.state = next
	o.broadcast(r, protocol.TypePause)
}

func (o *Orchestrator) Stop(r controlendpoint.Replier, connID int) {
	next, ok := playstate.Stop(o.state)
	if !ok {
		return
	}
	if err := o.player.Stop(); err != nil {
		o.log.WithError(err).Warn("stop failed")
	}
	o.state = next
	o.broadcast(r, protocol.TypeStop)
}

func (o *Orchestrator) Next(r controlendpoint.Replier, connID int) {
	_ = o.player.Stop()
	o.pl.Advance()
	o.wrapIfRepeatAll()
	o.startOrStop(r, protocol.TypeNext)
}

func (o *Orchestrator) Prev(r controlendpoint.Replier, connID int) {
	_ = o.player.Stop()
	o.pl.Retreat()
	o.startOrStop(r, protocol.TypePrev)
}

func (o *Orchestrator) Jump(r controlendpoint.Replier, connID int, target string) {
	idx := o.pl.IndexOf(target)
	if idx < 0 {
		r.ReplyError(connID, fmt.Sprintf("jump: no such entry %q", target))
		return
	}
	_ = o.player.Stop()
	_ = o.pl.SetCursor(idx)
	if !o.startCurrentTrack(r) {
		return
	}
	o.state = playstate.Playing
	o.broadcast(r, protocol.TypeJump)
}

func (o *Orchestrator) Seek(r controlendpoint.Replier, connID int, p protocol.SeekPayload) {
	if err := o.player.Seek(p); err != nil {
		r.ReplyError(connID, err.Error())
	}
}

func (o *Orchestrator) Mode(r controlendpoint.Replier, connID int, update playstate.ModeUpdate) {
	o.modes.Merge(update)
	o.broadcast(r, protocol.TypeMode)
}

func (o *Orchestrator) Flush(r controlendpoint.Replier, connID int) {
	o.pl.TruncateAfter(o.pl.Cursor())
	if o.state != playstate.Stopped {
		_ = o.player.Stop()
	}
	o.state = playstate.Stopped
	o.broadcast(r, protocol.TypeCommit)
}

func (o *Orchestrator) Show(r controlendpoint.Replier, connID int) {
	r.StreamEntries(connID, o.pl.Entries())
}

func (o *Orchestrator) Status(r controlendpoint.Replier, connID int) {
	track, _ := o.pl.Current()
	payload := protocol.StatusReplyPayload{
		Track:     track,
		Position:  o.position,
		Duration:  o.duration,
		State:     uint8(o.state),
		RepeatOne: o.modes.RepeatOne,
		RepeatAll: o.modes.RepeatAll,
		Consume:   o.modes.Consume,
	}.Encode()
	r.Reply(connID, protocol.TypeStatusReply, payload)
}

func (o *Orchestrator) Begin(r controlendpoint.Replier, connID int) {
	if err := o.txn.Begin(connID); err != nil {
		r.ReplyError(connID, err.Error())
		return
	}
	r.Reply(connID, protocol.TypeBegin, nil)
}

func (o *Orchestrator) Add(r controlendpoint.Replier, connID int, path string) {
	if o.txn.IsOpen() {
		if err := o.txn.Add(connID, path); err != nil {
			r.ReplyError(connID, err.Error())
		}
		return
	}
	o.pl.Append(path)
	o.broadcast(r, protocol.TypeAdd)
}

func (o *Orchestrator) Commit(r controlendpoint.Replier, connID int, offset int32) {
	entries, err := o.txn.Commit(connID)
	if err != nil {
		r.ReplyError(connID, err.Error())
		return
	}
	o.pl.ReplaceFrom(int(offset), entries)
	o.broadcast(r, protocol.TypeCommit)
}

// ConnectionOpened just logs the peer identity captured by the control
// endpoint at accept time (internal/controlendpoint's SO_PEERCRED capture);
// the endpoint's own Connection.Pid/Uid, not a copy here, is what tags every
// outbound frame on that connection.
func (o *Orchestrator) ConnectionOpened(connID int, pid int32, uid uint32) {
	logging.Conn(o.log, connID).WithFields(log.Fields{"pid": pid, "uid": uid}).Debug("client connected")
}

func (o *Orchestrator) ConnectionClosed(connID int) {
	o.txn.AbortIfOwner(connID)
}

// HandleWorkerEvent processes one TypeWorkerEvent frame from the player.
// It is called by the privileged-socket reader, not by the control
// endpoint, but shares the same Replier so the resulting broadcasts reach
// monitor-subscribed clients exactly like a client-triggered transition.
func (o *Orchestrator) HandleWorkerEvent(r controlendpoint.Replier, ev protocol.WorkerEventPayload) {
	switch ev.Outcome {
	case protocol.OutcomePosition:
		o.position = ev.Position
		if ev.Duration > 0 {
			o.duration = ev.Duration
		}
	case protocol.OutcomeStopped:
		// We requested this stop ourselves (Stop/Next/Prev); state was
		// already updated by the handler that issued it.
	case protocol.OutcomeError:
		logging.Track(o.log, o.currentTrack()).WithField("err", ev.Message).Warn("codec error")
		r.Broadcast(protocol.TypeError, o.position, o.duration, o.modes)
		o.advanceAfterTrackEnd(r)
	case protocol.OutcomeFinished:
		o.advanceAfterTrackEnd(r)
	}
}

func (o *Orchestrator) currentTrack() string {
	track, _ := o.pl.Current()
	return track
}

// advanceAfterTrackEnd implements the playlist advancement rule: consume
// drops the finished entry in place, repeat-one replays it, otherwise the
// cursor moves on (wrapping under repeat-all, else stopping at the end).
func (o *Orchestrator) advanceAfterTrackEnd(r controlendpoint.Replier) {
	switch {
	case o.modes.Consume:
		o.pl.RemoveCurrent()
	case o.modes.RepeatOne:
		if !o.startCurrentTrack(r) {
			return
		}
		o.broadcast(r, protocol.TypeNext)
		return
	default:
		o.pl.Advance()
	}
	o.wrapIfRepeatAll()
	o.startOrStop(r, protocol.TypeNext)
}

// HandleWorkerDied is called once a new player worker process has replaced
// one that exited (a fatal audio-device error). The crashed track is not
// retried: playback resumes from the next track regardless of repeat-one,
// since replaying the same entry against a freshly restarted worker is not
// what "resume from the next track" means here.
func (o *Orchestrator) HandleWorkerDied(r controlendpoint.Replier) {
	r.Broadcast(protocol.TypeError, o.position, o.duration, o.modes)
	o.pl.Advance()
	o.wrapIfRepeatAll()
	o.startOrStop(r, protocol.TypeNext)
}

func (o *Orchestrator) wrapIfRepeatAll() {
	if o.pl.AtEnd() && o.modes.RepeatAll && o.pl.Len() > 0 {
		_ = o.pl.SetCursor(0)
	}
}

func (o *Orchestrator) startOrStop(r controlendpoint.Replier, ev protocol.Type) {
	if o.pl.Len() == 0 || o.pl.AtEnd() {
		_ = o.pl.SetCursor(playlist.NoCursor)
		o.state = playstate.Stopped
		o.position = 0
		o.broadcast(r, protocol.TypeStop)
		return
	}
	if !o.startCurrentTrack(r) {
		return
	}
	o.state = playstate.Playing
	o.broadcast(r, ev)
}

// startCurrentTrack opens the playlist's current entry and hands its fd to
// the player. A failed open skips the track (non-fatal) and retries
// starting from the next one.
func (o *Orchestrator) startCurrentTrack(r controlendpoint.Replier) bool {
	path, ok := o.pl.Current()
	if !ok {
		_ = o.pl.SetCursor(playlist.NoCursor)
		o.state = playstate.Stopped
		return false
	}

	fd, err := openTrack(path)
	if err != nil {
		logging.Track(o.log, path).WithError(err).Warn("track open failed, skipping")
		r.Broadcast(protocol.TypeError, o.position, o.duration, o.modes)
		return o.skipAndRetry(r)
	}
	o.position = 0
	if err := o.player.Play(fd); err != nil {
		_ = unix.Close(fd)
		o.log.WithError(err).Warn("player play failed")
		return false
	}
	return true
}

// skipAndRetry advances past tracks that fail to open, bounded by one full
// pass over the playlist so a wholly-unreadable playlist still terminates
// in Stopped rather than looping forever.
func (o *Orchestrator) skipAndRetry(r controlendpoint.Replier) bool {
	for attempts := 0; attempts < o.pl.Len(); attempts++ {
		o.pl.Advance()
		o.wrapIfRepeatAll()
		if o.pl.AtEnd() {
			_ = o.pl.SetCursor(playlist.NoCursor)
			o.state = playstate.Stopped
			o.broadcast(r, protocol.TypeStop)
			return false
		}
		path, ok := o.pl.Current()
		if !ok {
			break
		}
		fd, err := openTrack(path)
		if err != nil {
			logging.Track(o.log, path).WithError(err).Warn("track open failed, skipping")
			r.Broadcast(protocol.TypeError, o.position, o.duration, o.modes)
			continue
		}
		o.position = 0
		if err := o.player.Play(fd); err != nil {
			_ = unix.Close(fd)
			continue
		}
		return true
	}
	_ = o.pl.SetCursor(playlist.NoCursor)
	o.state = playstate.Stopped
	o.broadcast(r, protocol.TypeStop)
	return false
}

func (o *Orchestrator) broadcast(r controlendpoint.Replier, ev protocol.Type) {
	r.Broadcast(ev, o.position, o.duration, o.modes)
}

// openTrack opens path read-only with CLOEXEC so the fd can be handed to
// the player worker in a Play message without leaking across an exec.
func openTrack(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("orchestrator: open %s: %w", path, err)
	}
	return fd, nil
}
