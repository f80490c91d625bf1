// Package media stores uploaded binary assets on the local filesystem and
// hands back the URL path they are served under.
package media

import (
	"errors"
	"os"
	"path"
	"path/filepath"
)

var errBadFilename = errors.New("media: invalid filename")

type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// SaveThumbnail writes an avatar under <dir>/thumbnails/<username>/<filename>
// and returns the public /media/... path. The filename is reduced to its base
// name so a client cannot escape the media directory.
func (s *Store) SaveThumbnail(username, filename string, data []byte) (string, error) {
	base := filepath.Base(filename)
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "", errBadFilename
	}

	dir := filepath.Join(s.dir, "thumbnails", username)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, base), data, 0o644); err != nil {
		return "", err
	}

	return path.Join("/media", "thumbnails", username, base), nil
}
