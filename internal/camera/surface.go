package camera

import (
	"fmt"
	"os"
	"path/filepath"
)

// SnapshotSurface mirrors the most recent frame to a JPEG file so an external
// viewer can show what the camera sees. The file is removed on Detach.
type SnapshotSurface struct {
	Dir  string
	Name string // defaults to "live.jpg"
}

func (s *SnapshotSurface) path() string {
	name := s.Name
	if name == "" {
		name = "live.jpg"
	}
	return filepath.Join(s.Dir, name)
}

func (s *SnapshotSurface) Attach() error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	return nil
}

// Show writes the frame to a temp file and renames it into place so readers
// never see a partial image.
func (s *SnapshotSurface) Show(frame []byte) error {
	tmp, err := os.CreateTemp(s.Dir, ".frame-*.jpg")
	if err != nil {
		return fmt.Errorf("creating temp frame: %w", err)
	}
	if _, err := tmp.Write(frame); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing frame: %w", err)
	}
	return os.Rename(tmp.Name(), s.path())
}

func (s *SnapshotSurface) Detach() error {
	if err := os.Remove(s.path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing snapshot: %w", err)
	}
	return nil
}
