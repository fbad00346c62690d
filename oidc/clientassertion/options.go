// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package clientassertion

import (
	"fmt"
	"time"
)

// Option configures the JWT
type Option func(*JWT) error

// WithKeyID sets the "kid" header that OIDC providers use to look up the
// public key to check the signed JWT
func WithKeyID(keyID string) Option {
	const op = "WithKeyID"
	return func(j *JWT) error {
		if keyID == "" {
			return fmt.Errorf("%s: empty key id: %w", op, ErrReservedHeader)
		}
		j.headers["kid"] = keyID
		return nil
	}
}

// WithHeaders sets extra JWT headers. "alg" and "typ" are set by the signer
// and may not be overridden.
func WithHeaders(h map[string]string) Option {
	const op = "WithHeaders"
	return func(j *JWT) error {
		for k, v := range h {
			switch k {
			case "alg", "typ":
				return fmt.Errorf("%s: %q: %w", op, k, ErrReservedHeader)
			}
			j.headers[k] = v
		}
		return nil
	}
}

// WithLifetime overrides DefaultLifetime, the time between a token's iat and
// exp claims.
func WithLifetime(d time.Duration) Option {
	const op = "WithLifetime"
	return func(j *JWT) error {
		if d <= 0 {
			return fmt.Errorf("%s: %w", op, ErrInvalidLifetime)
		}
		j.lifetime = d
		return nil
	}
}

// WithNow overrides the time used for the iat, nbf and exp claims.
func WithNow(now func() time.Time) Option {
	return func(j *JWT) error {
		if now != nil {
			j.now = now
		}
		return nil
	}
}
