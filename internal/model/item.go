package model

import (
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/lendpal/internal/apperror"
)

// Item is a lendable thing in the catalog. The item itself does not know
// who holds it; Registry.ItemHolder derives that from the users' loan maps.
type Item struct {
	ID              string
	Name            string
	Description     string // free-text description or condition note
	DefaultLendTime LendPeriod
}

// NewItem creates an item with a fresh ID. A zero period means
// DefaultLendPeriod.
func NewItem(name, description string, period LendPeriod) (*Item, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "item name is required")
	}
	if period.IsZero() {
		period = DefaultLendPeriod
	}
	if !period.Positive() {
		return nil, apperror.ValidationFailed("defaultLendTime", "lend period must be positive")
	}

	return &Item{
		ID:              xid.New().String(),
		Name:            name,
		Description:     strings.TrimSpace(description),
		DefaultLendTime: period,
	}, nil
}
