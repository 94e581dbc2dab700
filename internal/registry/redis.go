package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"cpo/internal/models"
	"cpo/internal/security"
)

const (
	redisPartyPrefix = "cpo:party:"
	redisTokenPrefix = "cpo:token:"
	redisPartySet    = "cpo:parties"
)

func ConnectRedis(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisStore keeps one JSON document per party plus a token-hash index pointing at it.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) FindByTokenHash(ctx context.Context, hash string) (*models.RemoteParty, error) {
	key, err := s.client.Get(ctx, redisTokenPrefix+hash).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.load(ctx, key)
}

func (s *RedisStore) Get(ctx context.Context, id models.PartyIdentity) (*models.RemoteParty, error) {
	return s.load(ctx, id.Key())
}

func (s *RedisStore) load(ctx context.Context, key string) (*models.RemoteParty, error) {
	raw, err := s.client.Get(ctx, redisPartyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p models.RemoteParty
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode party %s: %w", key, err)
	}
	return &p, nil
}

func (s *RedisStore) Upsert(ctx context.Context, p models.RemoteParty) error {
	key := p.ID.Key()
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	old, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old != nil {
			for _, c := range old.Incoming {
				pipe.Del(ctx, redisTokenPrefix+security.SealedHash(c.Token))
			}
		}
		pipe.Set(ctx, redisPartyPrefix+key, raw, 0)
		pipe.SAdd(ctx, redisPartySet, key)
		for _, c := range p.Incoming {
			pipe.Set(ctx, redisTokenPrefix+security.SealedHash(c.Token), key, 0)
		}
		return nil
	})
	return err
}

func (s *RedisStore) Remove(ctx context.Context, id models.PartyIdentity) error {
	key := id.Key()
	old, err := s.load(ctx, key)
	if err != nil || old == nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range old.Incoming {
			pipe.Del(ctx, redisTokenPrefix+security.SealedHash(c.Token))
		}
		pipe.Del(ctx, redisPartyPrefix+key)
		pipe.SRem(ctx, redisPartySet, key)
		return nil
	})
	return err
}

func (s *RedisStore) List(ctx context.Context) ([]models.RemoteParty, error) {
	keys, err := s.client.SMembers(ctx, redisPartySet).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.RemoteParty, 0, len(keys))
	for _, key := range keys {
		p, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Key() < out[j].ID.Key() })
	return out, nil
}
