// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"

	"github.com/hashicorp/cap-rp/oidc"
	"github.com/hashicorp/cap-rp/oidc/store"
)

// RequestReader defines an interface for finding and reading an oidc.Request
//
// Implementations must be concurrently safe, since the reader will likely be
// used within a concurrent http.Handler
type RequestReader interface {
	// Read an existing Request entry.  The returned request's State()
	// must match the state used to look it up. Implementations must be
	// concurrently safe, which likely means returning a deep copy.
	Read(ctx context.Context, state string) (oidc.Request, error)
}

// SingleRequestReader implements the RequestReader interface for a single request.
// It is concurrently safe.
type SingleRequestReader struct {
	Request oidc.Request
}

// Read() will return it's single-request if the state matches it's Request.State(),
// otherwise it returns an error of oidc.ErrNotFound. It satisfies the
// RequestReader interface.  Read() is concurrently safe.
func (sr *SingleRequestReader) Read(_ context.Context, state string) (oidc.Request, error) {
	if sr.Request == nil || sr.Request.State() != state {
		return nil, fmt.Errorf("%w: %w", oidc.ErrNotFound, oidc.ErrReplay)
	}
	return sr.Request, nil
}

// StoreReader is a RequestReader which takes requests out of a
// store.RequestStore, so each request can be read once.
type StoreReader struct {
	Store store.RequestStore
}

// Read implements RequestReader.
func (sr *StoreReader) Read(ctx context.Context, state string) (oidc.Request, error) {
	const op = "StoreReader.Read"
	if sr.Store == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, oidc.ErrNilParameter)
	}
	r, err := sr.Store.Take(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return r, nil
}
