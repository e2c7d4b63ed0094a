package content

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Scratch materializes inline document text to a file so loaders that only
// accept paths can display it. The handle is explicitly owned by its caller:
// the files live in a private directory that exists until Release, instead
// of accumulating for the life of the process.
type Scratch struct {
	mu       sync.Mutex
	dir      string
	released bool
	seq      int
}

// NewScratch creates a scratch directory under parent. An empty parent uses
// the system temp directory.
func NewScratch(parent string) (*Scratch, error) {
	dir, err := os.MkdirTemp(parent, "hostbridge-scratch-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// WriteInline writes text to a fresh file inside the scratch directory and
// returns its path. Each call gets its own file so a later write never
// clobbers content a loader may still be reading.
func (s *Scratch) WriteInline(text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return "", fmt.Errorf("scratch already released")
	}
	s.seq++
	path := filepath.Join(s.dir, fmt.Sprintf("document-%d.html", s.seq))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write inline document: %w", err)
	}
	return path, nil
}

// Release removes the scratch directory and everything in it. Safe to call
// more than once.
func (s *Scratch) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	return os.RemoveAll(s.dir)
}
