// Package presence exposes the orchestrator's playback state over MPRIS,
// a desktop-integration surface alongside the control socket's own client
// protocol. It talks to the orchestrator through the same
// controlendpoint.Handler interface the control endpoint dispatches
// through, plus a handful of read-only accessors, so this package never
// needs orchestrator internals.
package presence

import (
	"github.com/ampd-project/ampd/internal/controlendpoint"
	"github.com/ampd-project/ampd/internal/playstate"
	"github.com/ampd-project/ampd/internal/protocol"
)

// Source is what internal/presence needs from the main process's
// orchestrator: command dispatch plus read-only status.
type Source interface {
	controlendpoint.Handler
	State() playstate.State
	CurrentTrack() (string, bool)
	Position() int64
	Duration() int64
	Modes() playstate.Modes
	HasNext() bool
	HasPrev() bool
	PlaylistEmpty() bool
	SetVolume(level float64) error
	SetMute(muted bool) error
}

// presenceConnID identifies the MPRIS adapter's own synthetic connection to
// Handler's transaction/peer bookkeeping, distinct from any real
// controlendpoint connection id (which start at 1) and from
// transaction.NoOwner (-1).
const presenceConnID = -100

// noopReplier discards every reply: MPRIS calls are synchronous Go method
// calls, not framed responses, so nothing needs to be sent anywhere.
type noopReplier struct{}

func (noopReplier) Reply(int, protocol.Type, []byte)                       {}
func (noopReplier) ReplyError(int, string)                                 {}
func (noopReplier) Broadcast(protocol.Type, int64, int64, playstate.Modes) {}
func (noopReplier) StreamEntries(int, []string)                            {}

var _ controlendpoint.Replier = noopReplier{}
