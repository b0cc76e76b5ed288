// Package repository defines how a Registry is persisted.
//
// A Store works on whole snapshots: Save writes everything the registry
// holds and Load rebuilds a registry whose users, items and loans are
// indistinguishable from the saved one. There is no per-entity access.
package repository

import (
	"context"

	"github.com/sakif/lendpal/internal/model"
)

type Store interface {
	// Save persists r atomically. A failed save leaves the previous
	// snapshot in place. Failures wrap apperror.ErrIO.
	Save(ctx context.Context, r *model.Registry) error

	// Load rebuilds the last saved registry. A store that has never been
	// written returns an error matching fs.ErrNotExist; corrupt data
	// returns apperror.ErrParse.
	Load(ctx context.Context, opts ...model.RegistryOption) (*model.Registry, error)

	// Location names where the snapshot lives, for logs.
	Location() string
}
