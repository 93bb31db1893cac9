package platform

import (
	"errors"
	"os"
	"path/filepath"
)

// Root markers, checked in order in every directory.
var rootMarkers = []string{".notesync", "notesync.yaml"}

// ErrRootNotFound is returned when no directory up to the filesystem root
// carries a marker.
var ErrRootNotFound = errors.New("root not found")

// FindRoot looks upwards from startDir for a directory holding a .notesync
// store or a notesync.yaml file and returns its absolute path.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		for _, marker := range rootMarkers {
			if hasFile(dir, marker) {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrRootNotFound
		}
		dir = parent
	}
}

func hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
