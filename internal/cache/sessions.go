package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"papas-bot/internal/convo"
)

const sessionKeyPrefix = "session:"

type jsonKV interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// SessionStore keeps conversation sessions in Redis so they survive restarts
// and can be shared between replicas.
type SessionStore struct {
	kv     jsonKV
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionStore returns a convo.SessionStore backed by r. A zero ttl keeps
// sessions until they are deleted.
func NewSessionStore(r *Redis, ttl time.Duration, logger *slog.Logger) *SessionStore {
	return newSessionStore(r, ttl, logger)
}

func newSessionStore(kv jsonKV, ttl time.Duration, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		kv:     kv,
		ttl:    ttl,
		logger: logger.With("component", "session_store"),
	}
}

// Get implements convo.SessionStore.
func (s *SessionStore) Get(ctx context.Context, customerID string) (convo.Session, bool, error) {
	var sess convo.Session
	ok, err := s.kv.GetJSON(ctx, sessionKey(customerID), &sess)
	if err != nil {
		return convo.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	return sess, ok, nil
}

// Put implements convo.SessionStore.
func (s *SessionStore) Put(ctx context.Context, customerID string, sess convo.Session) error {
	if err := s.kv.SetJSON(ctx, sessionKey(customerID), sess, s.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete implements convo.SessionStore.
func (s *SessionStore) Delete(ctx context.Context, customerID string) error {
	if err := s.kv.Del(ctx, sessionKey(customerID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Debug("session deleted", "customer", customerID)
	return nil
}

func sessionKey(customerID string) string {
	return sessionKeyPrefix + customerID
}
