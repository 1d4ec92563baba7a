// Package playlist implements the daemon's ordered track list and cursor.
package playlist

import "errors"

// ErrIndexOutOfRange is returned by operations given an invalid index.
var ErrIndexOutOfRange = errors.New("playlist: index out of range")

// NoCursor is the cursor value meaning "before first" / "nothing selected".
const NoCursor = -1

// Playlist is an ordered sequence of file paths with a current-index cursor.
//
// Invariants (enforced by every mutator here):
//   - Cursor is either NoCursor or in [0, Len()).
//   - Append never invalidates the cursor.
//   - Truncating to Len() <= cursor resets the cursor to NoCursor.
//
// Not safe for concurrent use; callers (the orchestrator) serialize access.
type Playlist struct {
	entries []string
	cursor  int
}

// New returns an empty playlist with the cursor unset.
func New() *Playlist {
	return &Playlist{cursor: NoCursor}
}

// Len returns the number of entries.
func (p *Playlist) Len() int {
	return len(p.entries)
}

// Cursor returns the current cursor, NoCursor if unset.
func (p *Playlist) Cursor() int {
	return p.cursor
}

// Entries returns a copy of the playlist's paths.
func (p *Playlist) Entries() []string {
	out := make([]string, len(p.entries))
	copy(out, p.entries)
	return out
}

// At returns the entry at index, or "" and false if out of range.
func (p *Playlist) At(index int) (string, bool) {
	if index < 0 || index >= len(p.entries) {
		return "", false
	}
	return p.entries[index], true
}

// Current returns the entry at the cursor, or "" and false if the cursor is
// unset or past the end.
func (p *Playlist) Current() (string, bool) {
	return p.At(p.cursor)
}

// Append adds paths to the end of the playlist. The cursor is unaffected.
func (p *Playlist) Append(paths ...string) {
	p.entries = append(p.entries, paths...)
}

// SetCursor moves the cursor. index must be NoCursor or in [0, Len());
// otherwise ErrIndexOutOfRange is returned and the cursor is unchanged.
func (p *Playlist) SetCursor(index int) error {
	if index != NoCursor && (index < 0 || index >= len(p.entries)) {
		return ErrIndexOutOfRange
	}
	p.cursor = index
	return nil
}

// Advance moves the cursor forward by one. It does not wrap; callers
// implementing repeat_all wrap explicitly via SetCursor(0).
func (p *Playlist) Advance() {
	p.cursor++
}

// Retreat moves the cursor back by one, clamped at 0. It never goes negative
// and never wraps, even with repeat-all set.
func (p *Playlist) Retreat() {
	if p.cursor > 0 {
		p.cursor--
	} else {
		p.cursor = 0
	}
}

// AtEnd reports whether the cursor has advanced past the last entry.
func (p *Playlist) AtEnd() bool {
	return p.cursor >= len(p.entries)
}

// RemoveCurrent deletes the entry the cursor points to (used by consume
// mode). The cursor value is left unchanged, so it now refers to what was
// the next entry. Returns false if the cursor is unset or out of range.
func (p *Playlist) RemoveCurrent() bool {
	if p.cursor < 0 || p.cursor >= len(p.entries) {
		return false
	}
	p.entries = append(p.entries[:p.cursor], p.entries[p.cursor+1:]...)
	return true
}

// TruncateAfter drops every entry with index > cursor (the argument). If
// the playlist's own cursor is then >= Len() it is reset to NoCursor;
// otherwise it is kept. A negative argument empties the playlist. Returns
// the resulting length; this is the primitive behind the Flush command.
func (p *Playlist) TruncateAfter(cursor int) int {
	if cursor < 0 {
		p.entries = p.entries[:0]
		p.cursor = NoCursor
		return 0
	}
	if cursor+1 < len(p.entries) {
		p.entries = p.entries[:cursor+1]
	}
	if p.cursor >= len(p.entries) {
		p.cursor = NoCursor
	}
	return len(p.entries)
}

// ReplaceFrom truncates the playlist to length index (dropping entries at
// index and beyond) and appends paths. index < 0 means append-only. This is
// the splice primitive behind transaction Commit.
func (p *Playlist) ReplaceFrom(index int, paths []string) {
	switch {
	case index < 0:
		// append
	case index >= len(p.entries):
		// nothing to truncate
	default:
		p.entries = p.entries[:index]
	}
	p.entries = append(p.entries, paths...)
	if p.cursor >= len(p.entries) {
		p.cursor = NoCursor
	}
}

// IndexOf returns the index of the first entry matching path, or -1.
func (p *Playlist) IndexOf(path string) int {
	for i, e := range p.entries {
		if e == path {
			return i
		}
	}
	return -1
}

// Clear empties the playlist and resets the cursor.
func (p *Playlist) Clear() {
	p.entries = p.entries[:0]
	p.cursor = NoCursor
}
