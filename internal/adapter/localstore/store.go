package localstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store persists processed images to a local directory and hands back their
// public URL under the configured base.
type Store struct {
	dir     string
	baseURL string
}

func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store writes the image under a unique name derived from the hint. The write
// goes through a temp file and a rename so a failed store never leaves a
// partial artifact behind.
func (s *Store) Store(data []byte, hint string) (string, error) {
	filename := fmt.Sprintf("%s_%s.jpg", strings.ReplaceAll(hint, " ", "_"), uuid.New().String())
	path := filepath.Join(s.dir, filename)

	tmp, err := os.CreateTemp(s.dir, filename+".tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename temp file: %w", err)
	}

	return s.baseURL + "/" + filename, nil
}
