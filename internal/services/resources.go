package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cpo/internal/models"
	"cpo/internal/pagination"
	"cpo/internal/store"
)

// Versioned is a resource together with the ETag of its current payload.
type Versioned[T any] struct {
	Item T
	ETag string
}

// WriteOptions carries per-request overrides of the service defaults.
type WriteOptions struct {
	AllowDowngrade bool
}

// ResourceService applies the replace/patch/delete rules of one resource kind on top of a store.
type ResourceService[T models.Syncable[T]] struct {
	Kind            models.Kind
	Store           store.Store[T]
	Match           pagination.MatchFunc[T]
	AllowDowngrades bool
	Log             *zap.Logger
	Now             func() time.Time
}

func NewResourceService[T models.Syncable[T]](kind models.Kind, st store.Store[T], match pagination.MatchFunc[T], allowDowngrades bool, log *zap.Logger) *ResourceService[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &ResourceService[T]{
		Kind:            kind,
		Store:           st,
		Match:           match,
		AllowDowngrades: allowDowngrades,
		Log:             log.With(zap.String("kind", string(kind))),
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *ResourceService[T]) Get(ctx context.Context, id models.Identity) (Versioned[T], error) {
	item, ok, err := s.Store.Get(ctx, id)
	if err != nil {
		return Versioned[T]{}, fmt.Errorf("get %s %s: %w", s.Kind, id.Key(), err)
	}
	if !ok {
		return Versioned[T]{}, fmt.Errorf("%s %s: %w", s.Kind, id.Key(), models.ErrNotFound)
	}
	return versioned(item)
}

// List returns one page of the store snapshot.
func (s *ResourceService[T]) List(ctx context.Context, f pagination.Filter) (pagination.Page[T], error) {
	items, err := s.Store.List(ctx)
	if err != nil {
		return pagination.Page[T]{}, fmt.Errorf("list %s: %w", s.Kind, err)
	}
	return pagination.Apply(items, f, s.Match), nil
}

// Put replaces the resource at id. created reports whether it did not exist before.
func (s *ResourceService[T]) Put(ctx context.Context, id models.Identity, item T, opts WriteOptions) (Versioned[T], bool, error) {
	item, err := item.WithIdentity(id)
	if err != nil {
		return Versioned[T]{}, false, err
	}
	if item.Updated().IsZero() {
		item = item.Stamp(s.Now())
	}
	if err := item.Validate(); err != nil {
		return Versioned[T]{}, false, err
	}
	allow := s.AllowDowngrades || opts.AllowDowngrade

	next, created, err := s.Store.Mutate(ctx, id, func(cur T, exists bool) (T, error) {
		if exists && !allow && item.Updated().Before(cur.Updated()) {
			return cur, &models.DowngradeError{Existing: cur.Updated(), Incoming: item.Updated()}
		}
		return item, nil
	})
	if err != nil {
		return Versioned[T]{}, false, err
	}
	s.Log.Debug("resource replaced", zap.String("id", id.Key()), zap.Bool("created", created),
		zap.Time("last_updated", next.Updated()))
	v, err := versioned(next)
	return v, created, err
}

// Patch overwrites the fields present in raw. Fields absent from raw keep their values.
func (s *ResourceService[T]) Patch(ctx context.Context, id models.Identity, raw []byte, opts WriteOptions) (Versioned[T], error) {
	allow := s.AllowDowngrades || opts.AllowDowngrade

	next, _, err := s.Store.Mutate(ctx, id, func(cur T, exists bool) (T, error) {
		if !exists {
			return cur, fmt.Errorf("%s %s: %w", s.Kind, id.Key(), models.ErrNotFound)
		}
		// a zero stamp tells whether the patch carried its own last_updated
		patched, err := cur.Stamp(time.Time{}).Patch(raw)
		if err != nil {
			return cur, err
		}
		ts := patched.Updated()
		if ts.IsZero() {
			ts = s.Now()
		}
		if !allow && ts.Before(cur.Updated()) {
			return cur, &models.DowngradeError{Existing: cur.Updated(), Incoming: ts}
		}
		patched = patched.Stamp(ts)
		if err := patched.Validate(); err != nil {
			return cur, err
		}
		return patched, nil
	})
	if err != nil {
		return Versioned[T]{}, err
	}
	s.Log.Debug("resource patched", zap.String("id", id.Key()), zap.Time("last_updated", next.Updated()))
	return versioned(next)
}

// Delete is idempotent: deleting a missing resource succeeds.
func (s *ResourceService[T]) Delete(ctx context.Context, id models.Identity) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", s.Kind, id.Key(), err)
	}
	return nil
}

func (s *ResourceService[T]) DeleteOwnedBy(ctx context.Context, owner models.PartyIdentity) (int, error) {
	n, err := s.Store.DeleteOwnedBy(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("delete %s of %s: %w", s.Kind, owner.Key(), err)
	}
	s.Log.Info("resources removed", zap.String("owner", owner.Key()), zap.Int("count", n))
	return n, nil
}

func versioned[T any](item T) (Versioned[T], error) {
	etag, err := models.ETag(item)
	if err != nil {
		return Versioned[T]{}, err
	}
	return Versioned[T]{Item: item, ETag: etag}, nil
}
