// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// minNonceTTL keeps a nonce whose token is already at (or past) its expiry
// long enough to cover the clock skew allowed when verifying it.
const minNonceTTL = time.Minute

// NonceCache remembers the nonces of accepted id_tokens until the tokens
// expire, so a token cannot be accepted twice by the same process.
type NonceCache struct {
	c *cache.Cache
}

// NewNonceCache creates an empty NonceCache. Expired entries are only purged
// while Run is running.
func NewNonceCache() *NonceCache {
	return &NonceCache{c: cache.New(minNonceTTL, 0)}
}

// Run purges expired nonces every interval until ctx is done.
func (n *NonceCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.c.DeleteExpired()
		}
	}
}

// Consume records nonce as used until the given time. It returns
// ErrNonceReused when nonce was already recorded.
func (n *NonceCache) Consume(nonce string, until time.Time) error {
	const op = "NonceCache.Consume"
	if nonce == "" {
		return fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	ttl := time.Until(until)
	if ttl < minNonceTTL {
		ttl = minNonceTTL
	}
	if err := n.c.Add(nonce, struct{}{}, ttl); err != nil {
		return fmt.Errorf("%s: %w", op, ErrNonceReused)
	}
	return nil
}

// Len is the number of nonces currently remembered.
func (n *NonceCache) Len() int {
	return n.c.ItemCount()
}
