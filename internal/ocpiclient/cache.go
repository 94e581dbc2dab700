package ocpiclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"cpo/internal/models"
	"cpo/internal/registry"
)

// Resolver is the part of the party registry the cache needs.
type Resolver interface {
	ResolveClient(ctx context.Context, id models.PartyIdentity) (*models.RemoteParty, error)
}

// Cache holds at most one client per remote party.
type Cache struct {
	resolver Resolver
	opts     Options
	log      *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	group   singleflight.Group
}

func NewCache(resolver Resolver, opts Options) *Cache {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		resolver: resolver,
		opts:     opts,
		log:      log,
		clients:  make(map[string]*Client),
	}
}

// GetOrCreateClient returns the cached client of id when allowCached is set, or builds one from
// the registry. Parties that are unknown or have no usable outgoing credential yield false.
func (c *Cache) GetOrCreateClient(ctx context.Context, id models.PartyIdentity, allowCached bool) (*Client, bool) {
	key := id.Key()
	if allowCached {
		c.mu.RLock()
		cl, ok := c.clients[key]
		c.mu.RUnlock()
		if ok {
			return cl, true
		}
	}

	flight := key
	if !allowCached {
		flight += "|fresh"
	}
	// the flight is shared, so one caller going away must not fail the others
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(flight, func() (any, error) {
		if allowCached {
			c.mu.RLock()
			cl, ok := c.clients[key]
			c.mu.RUnlock()
			if ok {
				return cl, nil
			}
		}
		party, err := c.resolver.ResolveClient(flightCtx, id)
		if err != nil {
			return nil, err
		}
		cl, err := New(*party, c.opts)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.clients[key]; ok && allowCached {
			return existing, nil
		}
		c.clients[key] = cl
		return cl, nil
	})
	if err != nil {
		if !errors.Is(err, registry.ErrPartyNotFound) && !errors.Is(err, ErrNoCredential) {
			c.log.Warn("client creation failed", zap.Stringer("party", id), zap.Error(err))
		}
		return nil, false
	}
	return v.(*Client), true
}

// Remove drops the cached client of id so the next lookup rebuilds it.
func (c *Cache) Remove(id models.PartyIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, id.Key())
}

// Len is the number of cached clients.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}

// VersionStore persists discovered endpoints.
type VersionStore interface {
	SetVersions(ctx context.Context, id models.PartyIdentity, versions []models.VersionEndpoints, selected string) error
}

// RefreshEndpoints rediscovers the endpoints of a party, stores them and replaces the cached
// client.
func (c *Cache) RefreshEndpoints(ctx context.Context, id models.PartyIdentity, store VersionStore) (models.VersionEndpoints, error) {
	cl, ok := c.GetOrCreateClient(ctx, id, true)
	if !ok {
		return models.VersionEndpoints{}, fmt.Errorf("%w: %s", ErrNoCredential, id)
	}
	ve, err := cl.RefreshEndpoints(ctx)
	if err != nil {
		return models.VersionEndpoints{}, err
	}
	if err := store.SetVersions(ctx, id, []models.VersionEndpoints{ve}, ve.Version); err != nil {
		return models.VersionEndpoints{}, err
	}
	c.Remove(id)
	return ve, nil
}
