package controlendpoint

import "github.com/ampd-project/ampd/internal/frame"

// Connection is one accepted client's record: the framed-message conn, a
// monitor flag, and the peer's credentials captured at accept time.
type Connection struct {
	ID      int
	Conn    *frame.Conn
	Monitor bool
	Pid     int32
	Uid     uint32
}

// table is the control endpoint's own keyed collection of live connections.
// IDs are generation-tagged: nextID only increases, so a stale ID from a
// closed connection is never handed to a live one. Connections are referred
// to by this index, never by an owning handle.
type table struct {
	conns  map[int]*Connection
	nextID int
}

func newTable() *table {
	return &table{conns: make(map[int]*Connection)}
}

func (t *table) insert(c *Connection) int {
	t.nextID++
	c.ID = t.nextID
	t.conns[c.ID] = c
	return c.ID
}

func (t *table) get(id int) (*Connection, bool) {
	c, ok := t.conns[id]
	return c, ok
}

func (t *table) remove(id int) {
	delete(t.conns, id)
}

func (t *table) each(fn func(*Connection)) {
	for _, c := range t.conns {
		fn(c)
	}
}
