package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/sakif/lendpal/internal/apperror"
	"github.com/sakif/lendpal/internal/model"
	"github.com/sakif/lendpal/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// Save replaces the stored snapshot with r. The old rows are deleted and
// the new ones inserted in one transaction, so a failure rolls back to the
// previous snapshot.
func (db *DB) Save(ctx context.Context, r *model.Registry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperror.IOFailed("save", db.path, fmt.Errorf("beginning transaction: %w", err))
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback()

	if err := replaceSnapshot(ctx, tx, r); err != nil {
		return apperror.IOFailed("save", db.path, err)
	}

	if err := tx.Commit(); err != nil {
		return apperror.IOFailed("save", db.path, fmt.Errorf("committing: %w", err))
	}
	return nil
}

func replaceSnapshot(ctx context.Context, tx *sql.Tx, r *model.Registry) error {
	// children first, the foreign keys are enforced
	for _, table := range []string{"loans", "users", "items", "snapshot"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	for id, item := range r.AllItems() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, name, description, default_lend_time)
			 VALUES (?, ?, ?, ?)`,
			id, item.Name, item.Description, item.DefaultLendTime.String(),
		)
		if err != nil {
			return fmt.Errorf("inserting item %s: %w", id, err)
		}
	}

	loans := 0
	for pos, u := range r.Users() {
		s := u.State()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, position, first_name, last_name, email, password_hash, salt, privilege)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, pos, s.FirstName, s.LastName, s.Email, s.PasswordHash, s.Salt, s.Privilege.String(),
		)
		if err != nil {
			return fmt.Errorf("inserting user %s: %w", s.ID, err)
		}

		for itemID, due := range s.LentItems {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO loans (item_id, user_id, due_at) VALUES (?, ?, ?)`,
				itemID, s.ID, due.Format(time.RFC3339Nano),
			)
			if err != nil {
				return fmt.Errorf("inserting loan of %s to %s: %w", itemID, s.ID, err)
			}
			loans++
		}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot (id, saved_at, users, items, loans) VALUES (1, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), r.UserCount(), r.ItemCount(), loans,
	)
	if err != nil {
		return fmt.Errorf("recording snapshot: %w", err)
	}
	return nil
}

// Load rebuilds the registry from the stored snapshot. A database that has
// never been saved to returns an error matching fs.ErrNotExist.
func (db *DB) Load(ctx context.Context, opts ...model.RegistryOption) (*model.Registry, error) {
	var savedAt string
	err := db.conn.QueryRowContext(ctx, `SELECT saved_at FROM snapshot WHERE id = 1`).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.IOFailed("load", db.path, fmt.Errorf("no snapshot saved: %w", fs.ErrNotExist))
	}
	if err != nil {
		return nil, apperror.IOFailed("load", db.path, err)
	}

	items, err := db.loadItems(ctx)
	if err != nil {
		return nil, err
	}
	loans, err := db.loadLoans(ctx)
	if err != nil {
		return nil, err
	}
	users, err := db.loadUsers(ctx, loans)
	if err != nil {
		return nil, err
	}

	r, err := model.RestoreRegistry(users, items, opts...)
	if err != nil {
		return nil, apperror.ParseFailed(db.path, err)
	}
	return r, nil
}

func (db *DB) loadItems(ctx context.Context) ([]*model.Item, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, description, default_lend_time FROM items ORDER BY id`)
	if err != nil {
		return nil, apperror.IOFailed("load", db.path, fmt.Errorf("listing items: %w", err))
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		var (
			item   model.Item
			period string
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &period); err != nil {
			return nil, apperror.IOFailed("load", db.path, fmt.Errorf("scanning item row: %w", err))
		}
		item.DefaultLendTime, err = model.ParseLendPeriod(period)
		if err != nil {
			return nil, apperror.ParseFailed("item "+item.ID, err)
		}
		if !item.DefaultLendTime.Positive() {
			return nil, apperror.ParseFailed("item "+item.ID, fmt.Errorf("lend period %s is not positive", period))
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.IOFailed("load", db.path, fmt.Errorf("iterating items: %w", err))
	}
	return items, nil
}

// loadLoans returns user ID → item ID → due instant.
func (db *DB) loadLoans(ctx context.Context) (map[string]map[string]time.Time, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT item_id, user_id, due_at FROM loans`)
	if err != nil {
		return nil, apperror.IOFailed("load", db.path, fmt.Errorf("listing loans: %w", err))
	}
	defer rows.Close()

	loans := make(map[string]map[string]time.Time)
	for rows.Next() {
		var itemID, userID, dueText string
		if err := rows.Scan(&itemID, &userID, &dueText); err != nil {
			return nil, apperror.IOFailed("load", db.path, fmt.Errorf("scanning loan row: %w", err))
		}
		due, err := time.Parse(time.RFC3339Nano, dueText)
		if err != nil {
			return nil, apperror.ParseFailed("loan of item "+itemID, err)
		}
		if loans[userID] == nil {
			loans[userID] = make(map[string]time.Time)
		}
		loans[userID][itemID] = due
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.IOFailed("load", db.path, fmt.Errorf("iterating loans: %w", err))
	}
	return loans, nil
}

func (db *DB) loadUsers(ctx context.Context, loans map[string]map[string]time.Time) ([]*model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, first_name, last_name, email, password_hash, salt, privilege
		 FROM users ORDER BY position`)
	if err != nil {
		return nil, apperror.IOFailed("load", db.path, fmt.Errorf("listing users: %w", err))
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		var (
			s         model.UserState
			privilege string
		)
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.PasswordHash, &s.Salt, &privilege); err != nil {
			return nil, apperror.IOFailed("load", db.path, fmt.Errorf("scanning user row: %w", err))
		}
		if s.Privilege, err = model.ParsePrivilege(privilege); err != nil {
			return nil, apperror.ParseFailed("user "+s.ID, err)
		}
		s.LentItems = loans[s.ID]

		u, err := model.RestoreUser(s)
		if err != nil {
			return nil, apperror.ParseFailed("user "+s.ID, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.IOFailed("load", db.path, fmt.Errorf("iterating users: %w", err))
	}
	return users, nil
}
