// Package registry holds the remote parties this CPO exchanges data with: the credentials
// they call us with, the credentials we call them with and the endpoints they advertise.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cpo/internal/models"
	"cpo/internal/security"
)

var ErrPartyNotFound = errors.New("remote party not found")

// PartyStore persists remote parties. Lookups return (nil, nil) when nothing matches.
// Incoming credential tokens reach the store sealed (see security.SealToken).
type PartyStore interface {
	FindByTokenHash(ctx context.Context, hash string) (*models.RemoteParty, error)
	Get(ctx context.Context, id models.PartyIdentity) (*models.RemoteParty, error)
	Upsert(ctx context.Context, p models.RemoteParty) error
	Remove(ctx context.Context, id models.PartyIdentity) error
	List(ctx context.Context) ([]models.RemoteParty, error)
}

type Registry struct {
	store PartyStore
	log   *zap.Logger
	now   func() time.Time
}

func New(store PartyStore, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, log: log, now: time.Now}
}

// Authorize resolves the credential an inbound token was issued as, together with the party
// holding it. Unknown tokens, blocked credentials and store failures all yield (nil, nil).
func (r *Registry) Authorize(ctx context.Context, token string) (*models.AccessCredential, *models.RemoteParty) {
	for _, candidate := range security.TokenCandidates(token) {
		hash := security.HashToken(candidate)
		party, err := r.store.FindByTokenHash(ctx, hash)
		if err != nil {
			r.log.Error("credential lookup failed", zap.Error(err))
			return nil, nil
		}
		if party == nil {
			continue
		}
		for _, c := range party.Incoming {
			if !security.MatchSealed(c.Token, candidate) {
				continue
			}
			if !c.Allowed() {
				return nil, nil
			}
			cred := c
			cred.Token = candidate
			p := party.Clone()
			return &cred, &p
		}
	}
	return nil, nil
}

// ResolveClient returns the stored configuration of a party. It never touches the network.
func (r *Registry) ResolveClient(ctx context.Context, id models.PartyIdentity) (*models.RemoteParty, error) {
	p, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve party %s: %w", id, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	return p, nil
}

// Upsert stores p, sealing its incoming tokens.
func (r *Registry) Upsert(ctx context.Context, p models.RemoteParty) error {
	p = p.Clone()
	p.Normalize()
	for i := range p.Incoming {
		p.Incoming[i].Token = security.SealToken(p.Incoming[i].Token)
	}
	if p.LastUpdated.IsZero() {
		p.LastUpdated = r.now().UTC()
	}
	if err := r.store.Upsert(ctx, p); err != nil {
		return fmt.Errorf("upsert party %s: %w", p.ID, err)
	}
	r.log.Info("remote party stored", zap.Stringer("party", p.ID), zap.Int("incoming", len(p.Incoming)),
		zap.Int("outgoing", len(p.Outgoing)))
	return nil
}

func (r *Registry) Remove(ctx context.Context, id models.PartyIdentity) error {
	if err := r.store.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove party %s: %w", id, err)
	}
	return nil
}

func (r *Registry) List(ctx context.Context) ([]models.RemoteParty, error) {
	return r.store.List(ctx)
}

// SetVersions records the endpoints a party advertises and, when selected is non-empty, the
// version we talk to it in.
func (r *Registry) SetVersions(ctx context.Context, id models.PartyIdentity, versions []models.VersionEndpoints, selected string) error {
	p, err := r.ResolveClient(ctx, id)
	if err != nil {
		return err
	}
	p.Versions = versions
	if selected != "" {
		for i := range p.Outgoing {
			p.Outgoing[i].SelectedVersion = selected
		}
	}
	p.LastUpdated = r.now().UTC()
	return r.Upsert(ctx, *p)
}

// Authorized reports whether cred may use an endpoint serving the given counterparty role.
func Authorized(cred *models.AccessCredential, role models.Role) bool {
	return cred != nil && cred.Allowed() && cred.Role == role
}

// KnownParty reports whether cred resolved to an allowed remote party. Roles are not checked.
func KnownParty(cred *models.AccessCredential, party *models.RemoteParty) bool {
	return cred != nil && cred.Allowed() && party != nil && party.Allowed()
}
