package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cpo/internal/models"
	"cpo/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ResourcesRepo stores one resource kind as JSON documents in ocpi_resources.
type ResourcesRepo[T models.Resource] struct {
	db   *pgxpool.Pool
	kind models.Kind
}

var _ store.Store[models.Location] = (*ResourcesRepo[models.Location])(nil)

func NewResourcesRepo[T models.Resource](db *pgxpool.Pool, kind models.Kind) *ResourcesRepo[T] {
	return &ResourcesRepo[T]{db: db, kind: kind}
}

func (r *ResourcesRepo[T]) Get(ctx context.Context, id models.Identity) (T, bool, error) {
	var zero T
	row := r.db.QueryRow(ctx, `
		select payload from ocpi_resources where kind=$1 and resource_key=$2
	`, string(r.kind), id.Key())
	item, err := scanPayload[T](row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return item, true, nil
}

func (r *ResourcesRepo[T]) List(ctx context.Context) ([]T, error) {
	rows, err := r.db.Query(ctx, `
		select payload from ocpi_resources where kind=$1 order by resource_key asc
	`, string(r.kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		item, err := scanPayload[T](rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Mutate serializes writers of one identity with a transaction-scoped advisory lock, so the
// read-modify-write is atomic even when no row exists yet.
func (r *ResourcesRepo[T]) Mutate(ctx context.Context, id models.Identity, fn store.MutateFunc[T]) (T, bool, error) {
	var zero T
	key := id.Key()
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return zero, false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock(hashtext($1))`, string(r.kind)+"|"+key); err != nil {
		return zero, false, err
	}
	row := tx.QueryRow(ctx, `
		select payload from ocpi_resources where kind=$1 and resource_key=$2 for update
	`, string(r.kind), key)
	cur, err := scanPayload[T](row)
	exists := true
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return zero, false, err
		}
		exists = false
	}

	next, err := fn(cur, exists)
	if err != nil {
		return zero, false, err
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return zero, false, fmt.Errorf("encode %s %s: %w", r.kind, key, err)
	}
	etag, err := models.ETag(next)
	if err != nil {
		return zero, false, err
	}
	nid := next.Identity()
	_, err = tx.Exec(ctx, `
		insert into ocpi_resources (kind, resource_key, country_code, party_id, resource_id, last_updated, etag, payload)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict (kind, resource_key) do update set
		  last_updated=excluded.last_updated,
		  etag=excluded.etag,
		  payload=excluded.payload
	`, string(r.kind), key, nid.CountryCode, nid.PartyID, nid.ID, next.Updated(), etag, string(payload))
	if err != nil {
		return zero, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return zero, false, err
	}
	return next, !exists, nil
}

func (r *ResourcesRepo[T]) Delete(ctx context.Context, id models.Identity) error {
	_, err := r.db.Exec(ctx, `delete from ocpi_resources where kind=$1 and resource_key=$2`, string(r.kind), id.Key())
	return err
}

func (r *ResourcesRepo[T]) DeleteOwnedBy(ctx context.Context, owner models.PartyIdentity) (int, error) {
	tag, err := r.db.Exec(ctx, `
		delete from ocpi_resources where kind=$1 and upper(country_code)=$2 and upper(party_id)=$3
	`, string(r.kind), strings.ToUpper(owner.CountryCode), strings.ToUpper(owner.PartyID))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanPayload[T any](row pgx.Row) (T, error) {
	var (
		item T
		raw  []byte
	)
	if err := row.Scan(&raw); err != nil {
		return item, err
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return item, fmt.Errorf("decode payload: %w", err)
	}
	return item, nil
}
