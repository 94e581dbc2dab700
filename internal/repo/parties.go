package repo

import (
	"context"
	"encoding/json"
	"errors"

	"cpo/internal/models"
	"cpo/internal/security"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PartiesRepo struct{ db *pgxpool.Pool }

func NewPartiesRepo(db *pgxpool.Pool) *PartiesRepo { return &PartiesRepo{db: db} }

func (r *PartiesRepo) FindByTokenHash(ctx context.Context, hash string) (*models.RemoteParty, error) {
	row := r.db.QueryRow(ctx, `
		select p.payload
		from party_tokens t join remote_parties p on p.party_key = t.party_key
		where t.token_hash=$1
	`, hash)
	return scanParty(row)
}

func (r *PartiesRepo) Get(ctx context.Context, id models.PartyIdentity) (*models.RemoteParty, error) {
	row := r.db.QueryRow(ctx, `select payload from remote_parties where party_key=$1`, id.Key())
	return scanParty(row)
}

func (r *PartiesRepo) Upsert(ctx context.Context, p models.RemoteParty) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	key := p.ID.Key()
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		insert into remote_parties (party_key, country_code, party_id, role, status, payload, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (party_key) do update set
		  role=excluded.role,
		  status=excluded.status,
		  payload=excluded.payload,
		  updated_at=excluded.updated_at
	`, key, p.ID.CountryCode, p.ID.PartyID, string(p.ID.Role), string(p.Status), string(payload), p.LastUpdated)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `delete from party_tokens where party_key=$1`, key); err != nil {
		return err
	}
	for _, c := range p.Incoming {
		_, err := tx.Exec(ctx, `
			insert into party_tokens (token_hash, party_key) values ($1,$2)
			on conflict (token_hash) do update set party_key=excluded.party_key
		`, security.SealedHash(c.Token), key)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PartiesRepo) Remove(ctx context.Context, id models.PartyIdentity) error {
	_, err := r.db.Exec(ctx, `delete from remote_parties where party_key=$1`, id.Key())
	return err
}

func (r *PartiesRepo) List(ctx context.Context) ([]models.RemoteParty, error) {
	rows, err := r.db.Query(ctx, `select payload from remote_parties order by party_key asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RemoteParty
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanParty(row pgx.Row) (*models.RemoteParty, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var p models.RemoteParty
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
