package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gabmerlin/saas-sub001/internal/domain"
)

// Update is the message announcing a session change to other contexts.
type Update struct {
	OriginID string                `json:"origin_id"`
	SignOut  bool                  `json:"sign_out,omitempty"`
	Record   *domain.SessionRecord `json:"record,omitempty"`
}

// Broadcaster propagates session updates across browser contexts.
type Broadcaster interface {
	Publish(ctx context.Context, u Update) error
	// Subscribe delivers foreign updates to fn until the returned cancel
	// function is called.
	Subscribe(ctx context.Context, fn func(Update)) (func(), error)
}

// RedisBroadcaster implements Broadcaster over a pub/sub channel.
type RedisBroadcaster struct {
	client  redis.UniversalClient
	channel string
	logger  *zap.Logger
}

var _ Broadcaster = (*RedisBroadcaster)(nil)

// NewRedisBroadcaster constructs a redis-backed broadcaster.
func NewRedisBroadcaster(client redis.UniversalClient, channel string, logger *zap.Logger) *RedisBroadcaster {
	if logger == nil {
		logger = zap.L()
	}
	return &RedisBroadcaster{client: client, channel: channel, logger: logger}
}

// Publish announces u to every subscriber.
func (b *RedisBroadcaster) Publish(ctx context.Context, u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe listens for updates until cancelled. Messages that fail to decode
// are dropped; a corrupt payload must not kill the loop.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, fn func(Update)) (func(), error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	go func() {
		for msg := range sub.Channel() {
			var u Update
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				b.logger.Warn("dropping malformed session update", zap.Error(err))
				continue
			}
			fn(u)
		}
	}()

	return func() { _ = sub.Close() }, nil
}

// MemoryBroadcaster is an in-process Broadcaster for tests and single-node dev.
type MemoryBroadcaster struct {
	mu   sync.Mutex
	subs map[int]func(Update)
	next int
}

var _ Broadcaster = (*MemoryBroadcaster)(nil)

// NewMemoryBroadcaster constructs an in-process broadcaster.
func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{subs: map[int]func(Update){}}
}

// Publish delivers u synchronously to every subscriber.
func (b *MemoryBroadcaster) Publish(_ context.Context, u Update) error {
	b.mu.Lock()
	fns := make([]func(Update), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
	return nil
}

// Subscribe registers fn until the returned cancel function runs.
func (b *MemoryBroadcaster) Subscribe(_ context.Context, fn func(Update)) (func(), error) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}, nil
}
