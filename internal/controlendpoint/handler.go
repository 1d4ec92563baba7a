package controlendpoint

import (
	"github.com/ampd-project/ampd/internal/playstate"
	"github.com/ampd-project/ampd/internal/protocol"
)

// Handler is implemented by the main orchestrator. The endpoint dispatches
// each decoded command to the matching method; the orchestrator replies and
// broadcasts through the Replier passed to it, so this package never
// imports the orchestrator.
type Handler interface {
	Play(r Replier, connID int)
	TogglePlay(r Replier, connID int)
	Pause(r Replier, connID int)
	Stop(r Replier, connID int)
	Next(r Replier, connID int)
	Prev(r Replier, connID int)
	Jump(r Replier, connID int, target string)
	Seek(r Replier, connID int, p protocol.SeekPayload)
	Mode(r Replier, connID int, m playstate.ModeUpdate)
	Flush(r Replier, connID int)
	Show(r Replier, connID int)
	Status(r Replier, connID int)
	Begin(r Replier, connID int)
	Add(r Replier, connID int, path string)
	Commit(r Replier, connID int, offset int32)

	// ConnectionOpened/Closed let the orchestrator track peer credentials
	// and roll back a transaction the closing connection owned.
	ConnectionOpened(connID int, pid int32, uid uint32)
	ConnectionClosed(connID int)
}

// Replier is the endpoint-side callback surface passed to every Handler
// method: reply on the originating connection, or broadcast to every
// monitor-subscribed connection.
type Replier interface {
	Reply(connID int, msgType protocol.Type, payload []byte)
	ReplyError(connID int, message string)
	Broadcast(event protocol.Type, position, duration int64, modes playstate.Modes)
	StreamEntries(connID int, entries []string)
}
