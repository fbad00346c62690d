// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authenticator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-rp/oidc"
)

func Test_newPrincipal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		identifierClaim string
		claims          map[string]interface{}
		userInfo        map[string]interface{}
		wantIdentifier  string
		wantIsErr       error
	}{
		{
			name:            "sub",
			identifierClaim: "sub",
			claims:          map[string]interface{}{"sub": "alice"},
			wantIdentifier:  "alice",
		},
		{
			name:            "email",
			identifierClaim: "email",
			claims:          map[string]interface{}{"sub": "alice", "email": "alice@example.com"},
			wantIdentifier:  "alice@example.com",
		},
		{
			name:            "number",
			identifierClaim: "uid",
			claims:          map[string]interface{}{"sub": "alice", "uid": float64(1001)},
			wantIdentifier:  "1001",
		},
		{
			name:            "from-userinfo",
			identifierClaim: "email",
			claims:          map[string]interface{}{"sub": "alice"},
			userInfo:        map[string]interface{}{"sub": "alice", "email": "alice@example.com"},
			wantIdentifier:  "alice@example.com",
		},
		{
			name:            "id-token-wins",
			identifierClaim: "email",
			claims:          map[string]interface{}{"sub": "alice", "email": "a@example.com"},
			userInfo:        map[string]interface{}{"email": "b@example.com"},
			wantIdentifier:  "a@example.com",
		},
		{
			name:            "missing-sub",
			identifierClaim: "sub",
			claims:          map[string]interface{}{"email": "alice@example.com"},
			wantIsErr:       oidc.ErrInvalidSubject,
		},
		{
			name:            "missing-identifier",
			identifierClaim: "email",
			claims:          map[string]interface{}{"sub": "alice"},
			wantIsErr:       ErrMissingIdentifier,
		},
		{
			name:            "empty-identifier",
			identifierClaim: "email",
			claims:          map[string]interface{}{"sub": "alice", "email": ""},
			wantIsErr:       ErrMissingIdentifier,
		},
		{
			name:            "unsupported-type",
			identifierClaim: "groups",
			claims:          map[string]interface{}{"sub": "alice", "groups": []interface{}{"a"}},
			wantIsErr:       ErrMissingIdentifier,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := newPrincipal("corp", tt.identifierClaim, tt.claims, tt.userInfo)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				assert.Truef(errors.Is(err, oidc.ErrValidation), "wanted \"%s\" but got \"%s\"", oidc.ErrValidation, err)
				return
			}
			require.NoError(err)
			assert.Equal("corp", got.Client)
			assert.Equal(tt.claims["sub"], got.Subject)
			assert.Equal(tt.wantIdentifier, got.Identifier)
		})
	}
}

func TestPrincipalFromContext(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ctx := context.Background()

	_, ok := PrincipalFromContext(ctx)
	assert.False(ok)

	_, ok = PrincipalFromContext(NewContext(ctx, nil))
	assert.False(ok)

	p := &Principal{Subject: "alice"}
	got, ok := PrincipalFromContext(NewContext(ctx, p))
	assert.True(ok)
	assert.Equal(p, got)
}
