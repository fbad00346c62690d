// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestRedactedTokens(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		tk   interface {
			fmt.Stringer
			json.Marshaler
		}
		want string
	}{
		{name: "access_token", tk: AccessToken("super secret token"), want: RedactedAccessToken},
		{name: "refresh_token", tk: RefreshToken("super secret token"), want: RedactedRefreshToken},
		{name: "id_token", tk: IDToken("super secret token"), want: RedactedIDToken},
		{name: "client_secret", tk: ClientSecret("super secret"), want: RedactedClientSecret},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			assert.Equal(tt.want, tt.tk.String())
			assert.Equal(tt.want, fmt.Sprintf("%s", tt.tk))
			got, err := tt.tk.MarshalJSON()
			require.NoError(err)
			assert.Equal(fmt.Sprintf(`"%s"`, tt.want), string(got))
		})
	}
}

func TestNewToken(t *testing.T) {
	t.Parallel()
	testNow := func() time.Time { return time.Unix(1_700_000_000, 0) }
	underlying := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       testNow().Add(time.Hour),
	}

	tests := []struct {
		name        string
		idToken     IDToken
		token       *oauth2.Token
		opts        []Option
		wantValid   bool
		wantExpired bool
		wantErr     bool
		wantIsErr   error
	}{
		{
			name:      "valid",
			idToken:   "id",
			token:     underlying,
			opts:      []Option{WithNow(testNow)},
			wantValid: true,
		},
		{
			name:        "expired-by-now",
			idToken:     "id",
			token:       underlying,
			opts:        []Option{WithNow(func() time.Time { return testNow().Add(2 * time.Hour) })},
			wantExpired: true,
		},
		{
			name:        "within-expiry-skew",
			idToken:     "id",
			token:       underlying,
			opts:        []Option{WithNow(func() time.Time { return testNow().Add(time.Hour - TokenExpirySkew/2) })},
			wantExpired: true,
		},
		{
			name:        "no-oauth2-token",
			idToken:     "id",
			wantExpired: true,
		},
		{
			name:      "zero-expiry",
			idToken:   "id",
			token:     &oauth2.Token{AccessToken: "access"},
			wantValid: true,
		},
		{
			name:      "empty-id-token",
			token:     underlying,
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewToken(tt.idToken, tt.token, tt.opts...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.idToken, got.IDToken())
			assert.Equal(tt.wantValid, got.Valid())
			assert.Equal(tt.wantExpired, got.IsExpired())
			if tt.token == nil {
				assert.Empty(got.AccessToken())
				assert.Empty(got.RefreshToken())
				assert.True(got.Expiry().IsZero())
				assert.Nil(got.StaticTokenSource())
				return
			}
			assert.Equal(AccessToken(tt.token.AccessToken), got.AccessToken())
			assert.Equal(RefreshToken(tt.token.RefreshToken), got.RefreshToken())
			assert.Equal(tt.token.Expiry, got.Expiry())
			ts, err := got.StaticTokenSource().Token()
			require.NoError(err)
			assert.Equal(tt.token.AccessToken, ts.AccessToken)
		})
	}
}

func TestIDToken_Claims(t *testing.T) {
	t.Parallel()
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"iss":"https://idp.example","sub":"alice","aud":"client1","nonce":"n1","iat":10,"exp":20}`))
	raw := IDToken("eyJhbGciOiJSUzI1NiJ9." + payload + ".sig")

	t.Run("registered-claims", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		var c IDTokenClaims
		require.NoError(raw.Claims(&c))
		assert.Equal("https://idp.example", c.Issuer)
		assert.Equal("alice", c.Subject)
		assert.Equal([]string{"client1"}, []string(c.Audience))
		assert.Equal("n1", c.Nonce)
		assert.Equal(int64(10), c.IssuedAt)
		assert.Equal(int64(20), c.Expiry)
	})
	t.Run("audience-array", func(t *testing.T) {
		p := base64.RawURLEncoding.EncodeToString([]byte(`{"aud":["a","b"]}`))
		var c IDTokenClaims
		require.NoError(t, IDToken("h."+p+".s").Claims(&c))
		assert.Equal(t, []string{"a", "b"}, []string(c.Audience))
	})
	t.Run("map", func(t *testing.T) {
		m := map[string]interface{}{}
		require.NoError(t, raw.Claims(&m))
		assert.Equal(t, "alice", m["sub"])
	})
	t.Run("empty-token", func(t *testing.T) {
		var c IDTokenClaims
		assert.ErrorIs(t, IDToken("").Claims(&c), ErrInvalidParameter)
	})
	t.Run("nil-claims", func(t *testing.T) {
		assert.ErrorIs(t, raw.Claims(nil), ErrNilParameter)
	})
	t.Run("malformed", func(t *testing.T) {
		var c IDTokenClaims
		assert.ErrorIs(t, IDToken("only.two").Claims(&c), ErrInvalidParameter)
		assert.Error(t, IDToken("a.!!!.c").Claims(&c))
	})
}
