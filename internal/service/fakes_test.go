package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/lendpal/internal/apperror"
	"github.com/sakif/lendpal/internal/model"
	"github.com/sakif/lendpal/internal/repository"
	"github.com/sakif/lendpal/internal/repository/jsonfile"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore keeps the last saved snapshot as an encoded JSON document, so
// Load goes through the same decode path as the real file store.
type fakeStore struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	saveErr error
	loadErr error
}

var _ repository.Store = (*fakeStore)(nil)

func (f *fakeStore) Save(ctx context.Context, r *model.Registry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return apperror.IOFailed("save", "fake", f.saveErr)
	}
	var buf bytes.Buffer
	if err := jsonfile.Encode(&buf, r); err != nil {
		return err
	}
	f.data = buf.Bytes()
	f.saves++
	return nil
}

func (f *fakeStore) Load(ctx context.Context, opts ...model.RegistryOption) (*model.Registry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.data == nil {
		return nil, apperror.IOFailed("load", "fake", fmt.Errorf("empty: %w", fs.ErrNotExist))
	}
	return jsonfile.Decode(bytes.NewReader(f.data), opts...)
}

func (f *fakeStore) Location() string { return "fake" }

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

var testNow = time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, store *fakeStore, opts ...Option) *LendingService {
	t.Helper()
	registry := model.NewRegistry(model.WithClock(func() time.Time { return testNow }))
	return NewLendingService(registry, store, discardLogger(), opts...)
}
