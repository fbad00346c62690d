// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authenticator

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/patrickmn/go-cache"

	"github.com/hashicorp/cap-rp/oidc"
)

// SessionStore keeps the Principals of logged in users by session id.
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// Create stores p for ttl and returns a new, unguessable session id.
	Create(ctx context.Context, p *Principal, ttl time.Duration) (string, error)

	// Get returns the Principal of a session, or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Principal, error)

	// Delete removes a session. Deleting an unknown session is not an
	// error.
	Delete(ctx context.Context, id string) error
}

// DefaultSessionCleanupInterval is how often expired sessions are purged
// from a MemorySessionStore.
const DefaultSessionCleanupInterval = 5 * time.Minute

// MemorySessionStore is a SessionStore for a single process.
type MemorySessionStore struct {
	c     *cache.Cache
	genID func() (string, error)
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty MemorySessionStore.
//
// Supported options:
//   - WithSessionCleanupInterval
func NewMemorySessionStore(opt ...oidc.Option) *MemorySessionStore {
	opts := getOpts(opt...)
	return &MemorySessionStore{
		c:     cache.New(cache.NoExpiration, opts.withSessionCleanupInterval),
		genID: uuid.GenerateUUID,
	}
}

// Create implements SessionStore.
func (s *MemorySessionStore) Create(_ context.Context, p *Principal, ttl time.Duration) (string, error) {
	const op = "MemorySessionStore.Create"
	switch {
	case p == nil:
		return "", fmt.Errorf("%s: principal is nil: %w", op, oidc.ErrNilParameter)
	case ttl <= 0:
		return "", fmt.Errorf("%s: ttl must be positive: %w", op, oidc.ErrInvalidParameter)
	}
	id, err := s.genID()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, oidc.ErrIDGeneratorFailed, err)
	}
	cp := *p
	s.c.Set(id, &cp, ttl)
	return id, nil
}

// Get implements SessionStore. The returned Principal is a copy.
func (s *MemorySessionStore) Get(_ context.Context, id string) (*Principal, error) {
	const op = "MemorySessionStore.Get"
	v, ok := s.c.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
	}
	cp := *v.(*Principal)
	return &cp, nil
}

// Delete implements SessionStore.
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.c.Delete(id)
	return nil
}

// Len returns the number of sessions, including expired ones not yet purged.
func (s *MemorySessionStore) Len() int {
	return s.c.ItemCount()
}
