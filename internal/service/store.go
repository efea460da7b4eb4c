package service

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/rs/zerolog/log"
)

// VolatileStore is the live session store. It alone answers "is this
// session active"; the durable snapshot never does.
type VolatileStore interface {
	Get(ctx context.Context, address string) (*domain.Session, error)
	Set(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, address string) error
}

// Store coordinates the volatile session store and the durable snapshot
// repository, and owns the per-address locks.
type Store struct {
	volatile   VolatileStore
	snapshots  domain.SnapshotRepository
	clock      clockwork.Clock
	ttlSeconds int
	locks      *keyedLocks
}

// NewStore creates a new session store facade
func NewStore(volatile VolatileStore, snapshots domain.SnapshotRepository, clock clockwork.Clock, ttlSeconds int) *Store {
	return &Store{
		volatile:   volatile,
		snapshots:  snapshots,
		clock:      clock,
		ttlSeconds: ttlSeconds,
		locks:      newKeyedLocks(),
	}
}

// Lock acquires the per-address lock and returns its release function.
func (s *Store) Lock(address string) func() {
	return s.locks.Acquire(address)
}

// LoadOrCreate returns the live session for an address, creating a
// fresh one when none exists, the existing one is terminal, or the
// existing one has outlived its TTL. An expired predecessor is finalized
// durably before the new session is handed out; prevExpired tells the
// caller to mention the restart to the user.
func (s *Store) LoadOrCreate(ctx context.Context, address string) (sess *domain.Session, created, prevExpired bool, err error) {
	now := s.clock.Now().UTC()

	prev, err := s.volatile.Get(ctx, address)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		// fall through to create
	case err != nil:
		return nil, false, false, err
	case prev.State.IsTerminal():
		// stale terminal copy, start over
	case prev.Expired(now):
		if err := prev.Advance(domain.StateExpired, now); err != nil {
			return nil, false, false, err
		}
		if perr := s.Persist(ctx, prev, domain.ReasonExpired); perr != nil {
			log.Error().Err(perr).Str("session_id", prev.ID).Msg("Failed to persist expired session")
		}
		prevExpired = true
	default:
		return prev, false, false, nil
	}

	return domain.NewSession(address, s.ttlSeconds, now), true, prevExpired, nil
}

// Persist writes the session to the volatile store and mirrors it into
// the durable snapshot. A volatile write failure is fatal; a durable
// write failure is logged, flagged on the session and retried on the
// next persist.
func (s *Store) Persist(ctx context.Context, sess *domain.Session, reason domain.SnapshotReason) error {
	if err := s.volatile.Set(ctx, sess); err != nil {
		return err
	}

	if err := s.persistDurable(ctx, sess, reason); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sess.ID).
			Str("reason", string(reason)).
			Msg("Durable snapshot write failed, will retry on next persist")
		sess.SnapshotPending = true
		if err2 := s.volatile.Set(ctx, sess); err2 != nil {
			log.Error().Err(err2).Str("session_id", sess.ID).Msg("Failed to flag pending snapshot")
		}
		return nil
	}

	if sess.SnapshotPending {
		sess.SnapshotPending = false
		if err := s.volatile.Set(ctx, sess); err != nil {
			log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to clear pending snapshot flag")
		}
	}
	return nil
}

func (s *Store) persistDurable(ctx context.Context, sess *domain.Session, reason domain.SnapshotReason) error {
	if err := s.snapshots.Upsert(ctx, sess.Snapshot(reason)); err != nil {
		return err
	}
	return s.snapshots.AppendMessages(ctx, sess.ID, sess.Turns)
}

// FinalizeSession moves a session to a terminal state on behalf of the
// callback path. When the live copy is still present and matches the
// session id it is advanced and persisted; otherwise only the durable
// row is updated. The caller must hold the address lock.
func (s *Store) FinalizeSession(ctx context.Context, address, sessionID string, state domain.SessionState, reason domain.SnapshotReason, reply string) error {
	now := s.clock.Now().UTC()

	sess, err := s.volatile.Get(ctx, address)
	if err == nil && sess.ID == sessionID && !sess.State.IsTerminal() {
		if err := sess.Advance(state, now); err != nil {
			return err
		}
		if reply != "" {
			sess.AddTurn(domain.RoleAssistant, reply, now)
		}
		return s.Persist(ctx, sess, reason)
	}
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}

	if err := s.snapshots.UpdateState(ctx, sessionID, state, reason, now); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			log.Warn().Str("session_id", sessionID).Msg("No durable row to finalize")
			return nil
		}
		return err
	}
	return nil
}

// ExpireStale sweeps the durable store for sessions whose TTL elapsed
// without any access to trigger lazy expiry.
func (s *Store) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	return s.snapshots.ExpireStale(ctx, now)
}
