package indexstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searchindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// FileStore keeps a single build as a searchindex.js file.
type FileStore struct {
	path    string
	project string
}

func NewFileStore(path, project string) *FileStore {
	return &FileStore{path: path, project: project}
}

func (s *FileStore) String() string {
	return "file:" + s.path
}

// Load decodes the file. Its modification time stands in for the build
// time.
func (s *FileStore) Load(ctx context.Context) (*Build, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: search index %s", apperrors.ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("opening search index: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat search index: %w", err)
	}
	idx, err := searchindex.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	b := NewBuild(s.project, idx, info.ModTime())
	b.Location = s.String()
	return b, nil
}

// Save writes the build next to the target and renames it into place, so
// readers see the old file or the new one.
func (s *FileStore) Save(ctx context.Context, b *Build) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := searchindex.Encode(tmp, b.Index); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("renaming into %s: %w", s.path, err)
	}
	b.Location = s.String()
	return nil
}
