package registry

import (
	"context"
	"sort"
	"sync"

	"cpo/internal/models"
	"cpo/internal/security"
)

type MemoryStore struct {
	mu      sync.RWMutex
	parties map[string]models.RemoteParty
	tokens  map[string]string // token hash -> party key
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		parties: make(map[string]models.RemoteParty),
		tokens:  make(map[string]string),
	}
}

func (s *MemoryStore) FindByTokenHash(_ context.Context, hash string) (*models.RemoteParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.tokens[hash]
	if !ok {
		return nil, nil
	}
	p, ok := s.parties[key]
	if !ok {
		return nil, nil
	}
	p = p.Clone()
	return &p, nil
}

func (s *MemoryStore) Get(_ context.Context, id models.PartyIdentity) (*models.RemoteParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parties[id.Key()]
	if !ok {
		return nil, nil
	}
	p = p.Clone()
	return &p, nil
}

func (s *MemoryStore) Upsert(_ context.Context, p models.RemoteParty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := p.ID.Key()
	s.dropTokensLocked(key)
	s.parties[key] = p.Clone()
	for _, c := range p.Incoming {
		s.tokens[security.SealedHash(c.Token)] = key
	}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, id models.PartyIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := id.Key()
	s.dropTokensLocked(key)
	delete(s.parties, key)
	return nil
}

func (s *MemoryStore) dropTokensLocked(key string) {
	old, ok := s.parties[key]
	if !ok {
		return
	}
	for _, c := range old.Incoming {
		hash := security.SealedHash(c.Token)
		if s.tokens[hash] == key {
			delete(s.tokens, hash)
		}
	}
}

func (s *MemoryStore) List(_ context.Context) ([]models.RemoteParty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RemoteParty, 0, len(s.parties))
	for _, p := range s.parties {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Key() < out[j].ID.Key() })
	return out, nil
}
