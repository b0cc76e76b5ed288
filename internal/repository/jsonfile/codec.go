// Package jsonfile stores a Registry as a single indented JSON document.
//
// The document is meant to be readable and diffable by hand: users appear
// in registry order, items sorted by ID, and every loan map is keyed by
// item ID. Salts are base64, password hashes hex, due dates RFC 3339 and
// lend periods ISO 8601 ("P14D").
package jsonfile

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/sakif/lendpal/internal/apperror"
	"github.com/sakif/lendpal/internal/model"
)

// FormatVersion is written into every document. Decode rejects any other.
const FormatVersion = 1

type document struct {
	Version int       `json:"version"`
	Users   []userDoc `json:"users"`
	Items   []itemDoc `json:"items"`
}

type userDoc struct {
	ID           string               `json:"id"`
	FirstName    string               `json:"firstName"`
	LastName     string               `json:"lastName"`
	Email        string               `json:"email"`
	PasswordHash string               `json:"passwordHash"`
	Salt         []byte               `json:"salt"`
	Privilege    model.Privilege      `json:"privilege"`
	LentItems    map[string]time.Time `json:"lentItems"`
}

type itemDoc struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	DefaultLendTime model.LendPeriod `json:"defaultLendTime"`
}

// Encode writes r to w as a JSON document.
func Encode(w io.Writer, r *model.Registry) error {
	doc := document{
		Version: FormatVersion,
		Users:   make([]userDoc, 0, r.UserCount()),
		Items:   make([]itemDoc, 0, r.ItemCount()),
	}

	for _, u := range r.Users() {
		s := u.State()
		doc.Users = append(doc.Users, userDoc{
			ID:           s.ID,
			FirstName:    s.FirstName,
			LastName:     s.LastName,
			Email:        s.Email,
			PasswordHash: s.PasswordHash,
			Salt:         s.Salt,
			Privilege:    s.Privilege,
			LentItems:    s.LentItems,
		})
	}

	for _, item := range r.AllItems() {
		doc.Items = append(doc.Items, itemDoc{
			ID:              item.ID,
			Name:            item.Name,
			Description:     item.Description,
			DefaultLendTime: item.DefaultLendTime,
		})
	}
	slices.SortFunc(doc.Items, func(a, b itemDoc) int { return strings.Compare(a.ID, b.ID) })

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("jsonfile: encoding registry: %w", err)
	}
	return nil
}

// Decode reads a document written by Encode and rebuilds the registry.
// Malformed JSON, an unknown version, an invalid user or item, and any
// broken registry invariant all fail with apperror.ErrParse.
func Decode(rd io.Reader, opts ...model.RegistryOption) (*model.Registry, error) {
	var doc document
	if err := json.NewDecoder(rd).Decode(&doc); err != nil {
		return nil, apperror.ParseFailed("registry document", err)
	}
	if doc.Version != FormatVersion {
		return nil, apperror.ParseFailed("registry document", fmt.Errorf("unsupported version %d", doc.Version))
	}

	users := make([]*model.User, 0, len(doc.Users))
	for i, d := range doc.Users {
		u, err := model.RestoreUser(model.UserState{
			ID:           d.ID,
			FirstName:    d.FirstName,
			LastName:     d.LastName,
			Email:        d.Email,
			PasswordHash: d.PasswordHash,
			Salt:         d.Salt,
			Privilege:    d.Privilege,
			LentItems:    d.LentItems,
		})
		if err != nil {
			return nil, apperror.ParseFailed(fmt.Sprintf("users[%d]", i), err)
		}
		users = append(users, u)
	}

	items := make([]*model.Item, 0, len(doc.Items))
	for i, d := range doc.Items {
		if d.ID == "" || strings.TrimSpace(d.Name) == "" {
			return nil, apperror.ParseFailed(fmt.Sprintf("items[%d]", i), fmt.Errorf("item needs an id and a name"))
		}
		if !d.DefaultLendTime.Positive() {
			return nil, apperror.ParseFailed(fmt.Sprintf("items[%d]", i),
				fmt.Errorf("lend period %s is not positive", d.DefaultLendTime))
		}
		items = append(items, &model.Item{
			ID:              d.ID,
			Name:            d.Name,
			Description:     d.Description,
			DefaultLendTime: d.DefaultLendTime,
		})
	}

	r, err := model.RestoreRegistry(users, items, opts...)
	if err != nil {
		return nil, apperror.ParseFailed("registry document", err)
	}
	return r, nil
}
