// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNewRequest(t *testing.T) {
	t.Parallel()
	defaultExpireIn := time.Minute
	testNow := func() time.Time {
		return time.Now().Add(-1 * time.Minute)
	}

	testVerifier, err := NewCodeVerifier()
	require.NoError(t, err)

	tests := []struct {
		name            string
		expireIn        time.Duration
		redirectURL     string
		opts            []Option
		wantRedirectURL string
		wantAudiences   []string
		wantScopes      []string
		wantVerifier    CodeVerifier
		wantState       string
		wantNonce       string
		wantIsErr       error
	}{
		{
			name:        "valid-with-all-options",
			expireIn:    defaultExpireIn,
			redirectURL: "https://bob.com",
			opts: []Option{
				WithNow(testNow),
				WithAudiences("bob", "alice"),
				WithScopes("email", "profile"),
				WithPKCE(testVerifier),
				WithState("st_explicit"),
				WithNonce("n_explicit"),
			},
			wantRedirectURL: "https://bob.com",
			wantAudiences:   []string{"bob", "alice"},
			wantScopes:      []string{oidc.ScopeOpenID, "email", "profile"},
			wantVerifier:    testVerifier,
			wantState:       "st_explicit",
			wantNonce:       "n_explicit",
		},
		{
			name:            "valid-no-options",
			expireIn:        defaultExpireIn,
			redirectURL:     "https://bob.com",
			wantRedirectURL: "https://bob.com",
		},
		{
			name:        "zero-expireIn",
			redirectURL: "https://bob.com",
			wantIsErr:   ErrInvalidParameter,
		},
		{
			name:      "empty-redirect",
			expireIn:  defaultExpireIn,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:        "state-equals-nonce",
			expireIn:    defaultExpireIn,
			redirectURL: "https://bob.com",
			opts:        []Option{WithState("same"), WithNonce("same")},
			wantIsErr:   ErrInvalidParameter,
		},
		{
			name:        "prompt-none-with-others",
			expireIn:    defaultExpireIn,
			redirectURL: "https://bob.com",
			opts:        []Option{WithPrompts(None, Login)},
			wantIsErr:   ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewRequest(tt.expireIn, tt.redirectURL, tt.opts...)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Nil(got)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(tt.wantRedirectURL, got.RedirectURL())
			assert.Equal(tt.wantAudiences, got.Audiences())
			assert.Equal(tt.wantScopes, got.Scopes())
			assert.Equal(tt.wantVerifier, got.PKCEVerifier())
			assert.NotEqual(got.State(), got.Nonce())
			if tt.wantState != "" {
				assert.Equal(tt.wantState, got.State())
			} else {
				assert.True(strings.HasPrefix(got.State(), "st_"))
			}
			if tt.wantNonce != "" {
				assert.Equal(tt.wantNonce, got.Nonce())
			} else {
				assert.True(strings.HasPrefix(got.Nonce(), "n_"))
			}
			assert.False(got.IsExpired())
			assert.WithinDuration(got.now().Add(tt.expireIn), got.ExpiresAt(), time.Second)
		})
	}
}

func TestReq_IsExpired(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	r, err := NewRequest(time.Second, "https://bob.com")
	require.NoError(err)
	assert.True(r.IsExpired(), "a request within RequestExpirySkew of its expiry is expired")

	r, err = NewRequest(time.Minute, "https://bob.com")
	require.NoError(err)
	assert.False(r.IsExpired())

	past := func() time.Time { return time.Now().Add(-time.Hour) }
	r, err = NewRequest(time.Minute, "https://bob.com", WithNow(past))
	require.NoError(err)
	r.nowFunc = nil
	assert.True(r.IsExpired())
}

func TestReq_Consume(t *testing.T) {
	t.Parallel()
	t.Run("once", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRequest(time.Minute, "https://bob.com")
		require.NoError(err)
		require.NoError(r.Consume())
		err = r.Consume()
		assert.Truef(errors.Is(err, ErrRequestAlreadyUsed), "wanted \"%s\" but got \"%s\"", ErrRequestAlreadyUsed, err)
		assert.Truef(errors.Is(err, ErrReplay), "wanted \"%s\" but got \"%s\"", ErrReplay, err)
	})
	t.Run("concurrent", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRequest(time.Minute, "https://bob.com")
		require.NoError(err)
		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if r.Consume() == nil {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(int32(1), wins)
	})
}

func TestReq_Getters(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	r, err := NewRequest(time.Minute, "https://bob.com",
		WithMaxAge(0),
		WithPrompts(Login, SelectAccount),
		WithDisplay(Page),
		WithUILocales(language.French),
		WithACRValues("phr"),
	)
	require.NoError(err)
	maxAge, ok := r.MaxAge()
	assert.True(ok)
	assert.Equal(uint(0), maxAge)
	assert.Equal([]Prompt{Login, SelectAccount}, r.Prompts())
	assert.Equal(Page, r.Display())
	assert.Equal([]language.Tag{language.French}, r.UILocales())
	assert.Equal([]string{"phr"}, r.ACRValues())

	r, err = NewRequest(time.Minute, "https://bob.com")
	require.NoError(err)
	_, ok = r.MaxAge()
	assert.False(ok)
	assert.Nil(r.Scopes())
}

func TestReq_JSON(t *testing.T) {
	t.Parallel()
	t.Run("round-trip", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		r, err := NewRequest(time.Minute, "https://bob.com",
			WithPKCE(v),
			WithScopes("email"),
			WithAudiences("aud1"),
			WithMaxAge(30),
			WithUILocales(language.German),
		)
		require.NoError(err)

		data, err := json.Marshal(r)
		require.NoError(err)

		var got Req
		require.NoError(json.Unmarshal(data, &got))
		assert.Equal(r.State(), got.State())
		assert.Equal(r.Nonce(), got.Nonce())
		assert.True(r.ExpiresAt().Equal(got.ExpiresAt()))
		assert.Equal(r.Scopes(), got.Scopes())
		assert.Equal(r.Audiences(), got.Audiences())
		assert.Equal(v.Verifier(), got.PKCEVerifier().Verifier())
		assert.Equal(v.Challenge(), got.PKCEVerifier().Challenge())
		maxAge, ok := got.MaxAge()
		assert.True(ok)
		assert.Equal(uint(30), maxAge)
		require.Len(got.UILocales(), 1)
		assert.Equal(language.German.String(), got.UILocales()[0].String())
	})
	t.Run("missing-state", func(t *testing.T) {
		assert := assert.New(t)
		var got Req
		err := json.Unmarshal([]byte(`{"nonce":"n"}`), &got)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
	})
	t.Run("short-verifier", func(t *testing.T) {
		assert := assert.New(t)
		var got Req
		err := json.Unmarshal([]byte(`{"state":"st","nonce":"n","pkce_verifier":"short"}`), &got)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
	})
}
