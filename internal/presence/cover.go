//go:build linux

package presence

import (
	"os"
	"path/filepath"
)

var coverNames = []string{
	"cover.jpg", "cover.png", "cover.jpeg",
	"folder.jpg", "folder.png", "folder.jpeg",
}

// FindAlbumArt looks for album art in the same directory as trackPath,
// returning "" if none of the conventional names are present.
func FindAlbumArt(trackPath string) string {
	dir := filepath.Dir(trackPath)
	for _, name := range coverNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
