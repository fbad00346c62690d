// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/hashicorp/cap-rp/oidc"
)

// DefaultCleanupInterval is how often expired requests are purged from a
// MemoryStore.
const DefaultCleanupInterval = time.Minute

// MemoryStore is a RequestStore for a single process.
type MemoryStore struct {
	mu      sync.Mutex
	c       *cache.Cache
	nowFunc func() time.Time
}

var _ RequestStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
//
// Supported options:
//   - WithCleanupInterval
//   - WithNow
func NewMemoryStore(opt ...oidc.Option) *MemoryStore {
	opts := getStoreOpts(opt...)
	return &MemoryStore{
		c:       cache.New(cache.NoExpiration, opts.withCleanupInterval),
		nowFunc: opts.withNowFunc,
	}
}

// Put implements RequestStore.
func (s *MemoryStore) Put(_ context.Context, r oidc.Request) error {
	const op = "MemoryStore.Put"
	ttl, err := ttlFor(r, s.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.c.Add(r.State(), r, ttl); err != nil {
		return fmt.Errorf("%s: state already stored: %w", op, oidc.ErrInvalidParameter)
	}
	return nil
}

// Take implements RequestStore.
func (s *MemoryStore) Take(_ context.Context, state string) (oidc.Request, error) {
	const op = "MemoryStore.Take"
	s.mu.Lock()
	defer s.mu.Unlock()
	v, found := s.c.Get(state)
	if !found {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	s.c.Delete(state)
	return v.(oidc.Request), nil
}

// Len is the number of requests held, including expired ones not yet
// purged.
func (s *MemoryStore) Len() int {
	return s.c.ItemCount()
}

func (s *MemoryStore) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}
