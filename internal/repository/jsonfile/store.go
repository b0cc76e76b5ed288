package jsonfile

import (
	"bufio"
	"context"
	"os"
	"path/filepath"

	"github.com/sakif/lendpal/internal/apperror"
	"github.com/sakif/lendpal/internal/model"
	"github.com/sakif/lendpal/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store keeps the registry in one JSON file.
type Store struct {
	path string
}

// New returns a store backed by path. Nothing is read or created until the
// first Load or Save.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Location() string { return s.path }

// Save writes the document to a temporary file next to the target and
// renames it into place, so readers see either the old or the new snapshot.
func (s *Store) Save(ctx context.Context, r *model.Registry) error {
	if err := ctx.Err(); err != nil {
		return apperror.IOFailed("save", s.path, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperror.IOFailed("save", s.path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return apperror.IOFailed("save", s.path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := Encode(w, r); err != nil {
		return apperror.IOFailed("save", s.path, err)
	}
	if err := w.Flush(); err != nil {
		return apperror.IOFailed("save", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		return apperror.IOFailed("save", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return apperror.IOFailed("save", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return apperror.IOFailed("save", s.path, err)
	}
	committed = true
	return nil
}

// Load reads and decodes the file. A missing file is reported as an
// apperror.ErrIO that also matches fs.ErrNotExist.
func (s *Store) Load(ctx context.Context, opts ...model.RegistryOption) (*model.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.IOFailed("load", s.path, err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, apperror.IOFailed("load", s.path, err)
	}
	defer f.Close()

	return Decode(bufio.NewReader(f), opts...)
}
