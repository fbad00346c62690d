// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authenticator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/cap-rp/oidc"
)

// Principal is an authenticated user.
type Principal struct {
	// Client is the name of the Authenticator that authenticated the user.
	Client string `json:"client"`

	// Subject is the provider's sub claim.
	Subject string `json:"sub"`

	// Identifier is the value of the configured user identifier claim.
	Identifier string `json:"identifier"`

	// Claims are the claims of the id_token or bearer token.
	Claims map[string]interface{} `json:"claims"`

	// UserInfo holds the userinfo response when WithUserInfo is used.
	UserInfo map[string]interface{} `json:"userinfo,omitempty"`

	// IDToken is the raw id_token of a session. It is empty for bearer
	// tokens.
	IDToken oidc.IDToken `json:"-"`

	// Bearer is true when the user presented a bearer token.
	Bearer bool `json:"bearer"`

	// ExpiresAt is when the session or bearer token expires.
	ExpiresAt time.Time `json:"expires_at"`
}

// newPrincipal builds a Principal from verified claims. The identifier claim
// is looked up in claims first and then in userInfo.
func newPrincipal(client, identifierClaim string, claims, userInfo map[string]interface{}) (*Principal, error) {
	const op = "authenticator.newPrincipal"
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%s: %w", op, oidc.ErrInvalidSubject)
	}
	id, ok := claimString(claims, identifierClaim)
	if !ok {
		id, ok = claimString(userInfo, identifierClaim)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", op, identifierClaim, ErrMissingIdentifier)
	}
	return &Principal{
		Client:     client,
		Subject:    sub,
		Identifier: id,
		Claims:     claims,
		UserInfo:   userInfo,
	}, nil
}

// claimString returns a string or number claim as a string.
func claimString(claims map[string]interface{}, name string) (string, bool) {
	switch v := claims[name].(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// claimTime returns a NumericDate claim.
func claimTime(claims map[string]interface{}, name string) (time.Time, bool) {
	switch v := claims[name].(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case json.Number:
		n, err := v.Int64()
		return time.Unix(n, 0), err == nil
	default:
		return time.Time{}, false
	}
}

type principalKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the Principal attached by Middleware.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
