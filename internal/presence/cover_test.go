//go:build linux

package presence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAlbumArtFound(t *testing.T) {
	dir := t.TempDir()
	coverPath := filepath.Join(dir, "cover.jpg")
	require.NoError(t, os.WriteFile(coverPath, []byte("fake"), 0o600))

	assert.Equal(t, coverPath, FindAlbumArt(filepath.Join(dir, "track.mp3")))
}

func TestFindAlbumArtNotFound(t *testing.T) {
	dir := t.TempDir()
	assert.Empty(t, FindAlbumArt(filepath.Join(dir, "track.mp3")))
}

func TestFindAlbumArtPrefersEarlierName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "folder.jpg"), []byte("fake"), 0o600))
	coverPath := filepath.Join(dir, "cover.jpg")
	require.NoError(t, os.WriteFile(coverPath, []byte("fake"), 0o600))

	assert.Equal(t, coverPath, FindAlbumArt(filepath.Join(dir, "track.mp3")))
}
