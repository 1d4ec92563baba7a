// Package snapshot persists and restores the playlist across a clean
// shutdown/startup cycle: a `# cursor N` header line followed by one path
// per line.
package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ampd-project/ampd/internal/playlist"
)

const cursorHeaderPrefix = "# cursor "

// Save writes pl's entries and cursor to path, one path per line, with a
// header line "# cursor N" where N is the cursor (NoCursor serialized as
// -1, matching playlist.NoCursor's int value).
func Save(path string, pl *playlist.Playlist) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(w, "%s%d\n", cursorHeaderPrefix, pl.Cursor()); err != nil {
		return err
	}
	for _, entry := range pl.Entries() {
		if _, err := fmt.Fprintln(w, entry); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Load reads a snapshot written by Save and returns a new Playlist
// restored to the saved cursor. A missing file returns the os.Open error
// unchanged, so callers can check os.IsNotExist to distinguish "nothing to
// restore" from a real failure.
func Load(path string) (*playlist.Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pl := playlist.New()
	cursor := playlist.NoCursor
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			if strings.HasPrefix(line, cursorHeaderPrefix) {
				n, err := strconv.Atoi(strings.TrimPrefix(line, cursorHeaderPrefix))
				if err == nil {
					cursor = n
				}
				continue
			}
		}
		if line == "" {
			continue
		}
		pl.Append(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}

	if cursor != playlist.NoCursor && (cursor < 0 || cursor >= pl.Len()) {
		cursor = playlist.NoCursor
	}
	if err := pl.SetCursor(cursor); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return pl, nil
}
