package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gabmerlin/saas-sub001/internal/domain"
)

// Store is the locally persisted mirror of the session record, the fallback
// read on startup before any foreign update arrives.
type Store interface {
	Load(ctx context.Context) (*domain.SessionRecord, error)
	Save(ctx context.Context, rec *domain.SessionRecord) error
	Delete(ctx context.Context) error
}

// RedisStore persists the record under a per-context key.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore constructs a redis-backed mirror for one browser context.
func NewRedisStore(client redis.UniversalClient, contextID string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, key: "session:mirror:" + contextID, ttl: ttl}
}

// Load reads the persisted record. Corrupted values come back as nil.
func (s *RedisStore) Load(ctx context.Context) (*domain.SessionRecord, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var rec domain.SessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Discard rather than retry against the same corrupt value.
		_ = s.client.Del(ctx, s.key).Err()
		return nil, nil
	}
	return &rec, nil
}

// Save persists rec with the store TTL.
func (s *RedisStore) Save(ctx context.Context, rec *domain.SessionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Delete removes the persisted record.
func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and single-node dev.
type MemoryStore struct {
	mu  sync.Mutex
	rec *domain.SessionRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (*domain.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return nil, nil
	}
	cp := *s.rec
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, rec *domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.rec = &cp
	return nil
}

func (s *MemoryStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}
