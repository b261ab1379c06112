// Package artifact stores synthesized audio files on disk. Names are keyed
// by user and attempt number so successive runs never overwrite each other.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store writes pipeline output audio under a single directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating audio directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Write persists one synthesized audio payload and returns the artifact
// name recorded in history. attempt is the 1-based attempt number the
// audio belongs to.
func (s *Store) Write(userID int64, attempt int, data []byte) (string, error) {
	name := fmt.Sprintf("tts_%d_%d.wav", userID, attempt)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("writing audio artifact %s: %w", name, err)
	}
	return name, nil
}

// Path returns the absolute path of a previously written artifact name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}
