package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gabmerlin/saas-sub001/internal/domain"
	"github.com/gabmerlin/saas-sub001/internal/metrics"
)

// Applier is the local authentication subsystem the synchronizer feeds.
type Applier interface {
	Apply(rec *domain.SessionRecord)
	Reset()
}

// SecretClearer removes the authorization exchange secret on sign-out.
type SecretClearer interface {
	ClearSecret(ctx context.Context) error
}

// Synchronizer keeps one canonical session record per context and converges
// concurrent writers across contexts with last-writer-wins-by-expiry
// semantics. Foreign updates are adopted when newer and never re-broadcast,
// which is what keeps the propagation loop-free.
type Synchronizer struct {
	originID       string
	store          Store
	bus            Broadcaster
	applier        Applier
	secrets        SecretClearer
	paymentHoldTTL time.Duration
	logger         *zap.Logger
	now            func() time.Time

	mu          sync.Mutex
	current     *domain.SessionRecord
	holdUntil   time.Time
	unsubscribe func()
}

// Option tweaks synchronizer construction.
type Option func(*Synchronizer)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithSecretClearer wires the relay cleared on sign-out.
func WithSecretClearer(sc SecretClearer) Option {
	return func(s *Synchronizer) { s.secrets = sc }
}

// NewSynchronizer creates a synchronizer for one browser context.
func NewSynchronizer(originID string, store Store, bus Broadcaster, applier Applier, paymentHoldTTL time.Duration, logger *zap.Logger, opts ...Option) *Synchronizer {
	if logger == nil {
		logger = zap.L()
	}
	s := &Synchronizer{
		originID:       originID,
		store:          store,
		bus:            bus,
		applier:        applier,
		paymentHoldTTL: paymentHoldTTL,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start restores any persisted record, applies it when still valid, and
// subscribes to foreign updates on every channel.
func (s *Synchronizer) Start(ctx context.Context) error {
	rec, err := s.store.Load(ctx)
	if err != nil {
		// A broken mirror is recovered as "no session".
		s.logger.Warn("session mirror unavailable on startup", zap.Error(err))
		rec = nil
	}
	if rec != nil {
		if rec.Expired(s.now()) {
			_ = s.store.Delete(ctx)
			s.logger.Info("discarding stale persisted session")
		} else {
			s.mu.Lock()
			s.current = rec
			s.mu.Unlock()
			s.applier.Apply(rec)
		}
	}

	cancel, err := s.bus.Subscribe(ctx, s.handleForeign)
	if err != nil {
		return fmt.Errorf("subscribe session updates: %w", err)
	}
	s.mu.Lock()
	s.unsubscribe = cancel
	s.mu.Unlock()
	return nil
}

// Stop cancels the foreign-update subscription.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Current returns the canonical record, or nil when signed out.
func (s *Synchronizer) Current() *domain.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// SignIn records a locally originated session: persisted, applied, and
// broadcast. Only local changes broadcast; see handleForeign.
func (s *Synchronizer) SignIn(ctx context.Context, rec *domain.SessionRecord) error {
	if rec == nil || !rec.HasToken() {
		return fmt.Errorf("sign in: empty session record")
	}
	if rec.Expired(s.now()) {
		return fmt.Errorf("sign in: session already expired")
	}

	s.mu.Lock()
	s.current = rec
	s.mu.Unlock()

	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.Warn("session mirror write failed", zap.Error(err))
	}
	s.applier.Apply(rec)

	metrics.SessionSyncEvent("broadcast")
	if err := s.bus.Publish(ctx, Update{OriginID: s.originID, Record: rec}); err != nil {
		return fmt.Errorf("broadcast session: %w", err)
	}
	return nil
}

// SignOut broadcasts a clear event and deletes the record everywhere it was
// stored, including the exchange secret.
func (s *Synchronizer) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.holdUntil = time.Time{}
	s.mu.Unlock()

	if err := s.store.Delete(ctx); err != nil {
		s.logger.Warn("session mirror delete failed", zap.Error(err))
	}
	s.applier.Reset()
	if s.secrets != nil {
		if err := s.secrets.ClearSecret(ctx); err != nil {
			s.logger.Warn("exchange secret clear failed", zap.Error(err))
		}
	}

	metrics.SessionSyncEvent("signout")
	if err := s.bus.Publish(ctx, Update{OriginID: s.originID, SignOut: true}); err != nil {
		return fmt.Errorf("broadcast signout: %w", err)
	}
	return nil
}

// BeginPaymentHold suppresses foreign sign-out adoption while an external
// payment redirect is in flight.
func (s *Synchronizer) BeginPaymentHold() {
	s.mu.Lock()
	s.holdUntil = s.now().Add(s.paymentHoldTTL)
	s.mu.Unlock()
}

// ClearPaymentHold lifts the suppression early.
func (s *Synchronizer) ClearPaymentHold() {
	s.mu.Lock()
	s.holdUntil = time.Time{}
	s.mu.Unlock()
}

// handleForeign processes an update from another context. It adopts strictly
// newer records and ignores everything else; it never publishes, so a
// propagation fans out once per originating change, not per observer.
func (s *Synchronizer) handleForeign(u Update) {
	if u.OriginID == s.originID {
		return
	}

	if u.SignOut {
		s.mu.Lock()
		held := s.holdUntil.After(s.now())
		if !held {
			s.current = nil
		}
		s.mu.Unlock()
		if held {
			s.logger.Info("ignoring foreign signout during payment hold")
			metrics.SessionSyncEvent("ignore")
			return
		}
		_ = s.store.Delete(context.Background())
		s.applier.Reset()
		metrics.SessionSyncEvent("adopt")
		return
	}

	if u.Record == nil || u.Record.Expired(s.now()) {
		metrics.SessionSyncEvent("ignore")
		return
	}

	s.mu.Lock()
	newer := u.Record.NewerThan(s.current)
	if newer {
		s.current = u.Record
	}
	s.mu.Unlock()

	if !newer {
		metrics.SessionSyncEvent("ignore")
		return
	}

	if err := s.store.Save(context.Background(), u.Record); err != nil {
		s.logger.Warn("session mirror write failed", zap.Error(err))
	}
	s.applier.Apply(u.Record)
	metrics.SessionSyncEvent("adopt")
}
