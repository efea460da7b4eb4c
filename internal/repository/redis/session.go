package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/notafacil/nfse-agent/internal/domain"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionStore holds the live session per originating address. It is the
// single source of truth for "is this session active"; the durable
// snapshot is never consulted for liveness.
type SessionStore struct {
	client *Client
}

// NewSessionStore creates a new volatile session store
func NewSessionStore(client *Client) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(address string) string {
	return sessionKeyPrefix + address
}

// Get retrieves the live session for an address. Returns
// domain.ErrSessionNotFound on a miss.
func (s *SessionStore) Get(ctx context.Context, address string) (*domain.Session, error) {
	data, err := s.client.rdb.Get(ctx, sessionKey(address)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Set writes the live session. The Redis TTL mirrors the session TTL so
// abandoned sessions eventually evict on their own; lazy expiry on access
// remains the authoritative mechanism.
func (s *SessionStore) Set(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Duration(session.TTLSeconds) * time.Second
	if session.State.IsTerminal() {
		// Keep terminal sessions around briefly so a duplicate inbound
		// message gets a fresh session instead of a stale read.
		ttl = time.Minute
	}

	if err := s.client.rdb.Set(ctx, sessionKey(session.Address), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Delete evicts the live session for an address.
func (s *SessionStore) Delete(ctx context.Context, address string) error {
	return s.client.rdb.Del(ctx, sessionKey(address)).Err()
}
