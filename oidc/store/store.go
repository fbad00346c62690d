// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
store provides single use storage for pending oidc.Requests, keyed by their
state, between the start of an authorization code flow and its callback.

A Request can be taken from a store only once: Take removes it, so a replayed
callback finds nothing and fails with oidc.ErrReplay. Entries expire at the
Request's ExpiresAt.
*/
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/cap-rp/oidc"
)

// RequestStore stores pending requests. Implementations must be safe for
// concurrent use, and Take must hand a request out at most once even when
// called concurrently for the same state.
type RequestStore interface {
	// Put stores r until it expires. Storing a second request with the same
	// state fails with oidc.ErrInvalidParameter.
	Put(ctx context.Context, r oidc.Request) error

	// Take returns and removes the request for state. An unknown, expired or
	// already taken state fails with ErrNotFound, which is an oidc.ErrReplay.
	Take(ctx context.Context, state string) (oidc.Request, error)
}

// ErrNotFound is returned by Take for an unknown state.
var ErrNotFound = fmt.Errorf("%w: %w", oidc.ErrNotFound, oidc.ErrReplay)

// ttlFor returns how long r should be kept.
func ttlFor(r oidc.Request, now time.Time) (time.Duration, error) {
	const op = "store.ttlFor"
	if r == nil {
		return 0, fmt.Errorf("%s: request is nil: %w", op, oidc.ErrNilParameter)
	}
	if r.State() == "" {
		return 0, fmt.Errorf("%s: request state is empty: %w", op, oidc.ErrInvalidParameter)
	}
	ttl := r.ExpiresAt().Sub(now)
	if ttl <= 0 || r.IsExpired() {
		return 0, fmt.Errorf("%s: %w", op, oidc.ErrExpiredRequest)
	}
	return ttl, nil
}
