// Package authstore decides which Telegram users may drive the bot. The
// allowlist combines three sources: the admin, IDs pinned through the
// environment, and a mutable store (JSON file or Postgres).
package authstore

import "context"

// Store persists the mutable part of the allowlist.
type Store interface {
	IsAllowed(ctx context.Context, userID int64) (bool, error)
	Add(ctx context.Context, userID int64) error
	Remove(ctx context.Context, userID int64) error
	List(ctx context.Context) ([]int64, error)
}
