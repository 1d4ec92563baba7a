package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampd-project/ampd/internal/playlist"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	pl := playlist.New()
	pl.Append("/a.ogg", "/b.ogg", "/c.ogg")
	require.NoError(t, pl.SetCursor(1))

	path := filepath.Join(t.TempDir(), "playlist")
	require.NoError(t, Save(path, pl))

	restored, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, pl.Entries(), restored.Entries())
	assert.Equal(t, pl.Cursor(), restored.Cursor())
}

func TestLoadClampsOutOfRangeCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlist")
	require.NoError(t, os.WriteFile(path, []byte("# cursor 99\n/a.ogg\n"), 0o644))

	pl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, playlist.NoCursor, pl.Cursor())
}

func TestLoadMissingFileReturnsNotExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, os.IsNotExist(err))
}
