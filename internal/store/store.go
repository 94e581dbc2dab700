// Package store defines the resource store the sync protocol works against and its in-memory
// implementation. The Postgres implementation lives in package repo.
package store

import (
	"context"

	"cpo/internal/models"
)

// MutateFunc computes the replacement for the current value of an identity. Returning an
// error leaves the stored value untouched.
type MutateFunc[T any] func(cur T, exists bool) (T, error)

// Store is a collection of resources keyed by composite identity. Every method is atomic
// with respect to the single identity it targets.
type Store[T models.Resource] interface {
	Get(ctx context.Context, id models.Identity) (T, bool, error)
	List(ctx context.Context) ([]T, error)
	// Mutate reads and replaces the value of id in one step. created reports whether no
	// value existed before.
	Mutate(ctx context.Context, id models.Identity, fn MutateFunc[T]) (next T, created bool, err error)
	Delete(ctx context.Context, id models.Identity) error
	// DeleteOwnedBy removes every resource whose owner matches and returns how many went.
	DeleteOwnedBy(ctx context.Context, owner models.PartyIdentity) (int, error)
}
