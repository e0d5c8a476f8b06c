package authstore

import (
	"context"
	"sort"
)

// Provenance says where an allowlist entry came from.
type Provenance string

const (
	FromAdmin Provenance = "admin"
	FromEnv   Provenance = "env"
	FromStore Provenance = "store"
)

// Entry is one allowed user with its source.
type Entry struct {
	UserID int64
	Via    Provenance
}

// Authorizer answers "may this user drive the bot". The admin is always
// allowed and cannot be removed; env-pinned users cannot be removed either.
type Authorizer struct {
	admin int64
	env   Source
	store Store
}

func NewAuthorizer(admin int64, env Source, store Store) *Authorizer {
	return &Authorizer{admin: admin, env: env, store: store}
}

func (a *Authorizer) IsAdmin(userID int64) bool {
	return a.admin != 0 && userID == a.admin
}

func (a *Authorizer) IsAllowed(ctx context.Context, userID int64) (bool, error) {
	if a.IsAdmin(userID) {
		return true, nil
	}
	if a.env.Contains(userID) {
		return true, nil
	}
	return a.store.IsAllowed(ctx, userID)
}

// Add grants access through the mutable store.
func (a *Authorizer) Add(ctx context.Context, userID int64) error {
	return a.store.Add(ctx, userID)
}

// Remove revokes store-granted access. Admin and env-pinned users are left
// untouched; the caller decides how to report that.
func (a *Authorizer) Remove(ctx context.Context, userID int64) error {
	return a.store.Remove(ctx, userID)
}

// Removable reports whether access for userID can actually be revoked.
func (a *Authorizer) Removable(userID int64) bool {
	return !a.IsAdmin(userID) && !a.env.Contains(userID)
}

// List returns every allowed user with provenance, sorted by ID. A user
// granted through several sources appears once under the strongest one
// (admin, then env, then store).
func (a *Authorizer) List(ctx context.Context) ([]Entry, error) {
	seen := make(map[int64]Provenance)
	if a.admin != 0 {
		seen[a.admin] = FromAdmin
	}
	for _, id := range a.env.IDs() {
		if _, ok := seen[id]; !ok {
			seen[id] = FromEnv
		}
	}
	stored, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range stored {
		if _, ok := seen[id]; !ok {
			seen[id] = FromStore
		}
	}

	out := make([]Entry, 0, len(seen))
	for id, via := range seen {
		out = append(out, Entry{UserID: id, Via: via})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
