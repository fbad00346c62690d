// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticKeySet_VerifySignature(t *testing.T) {
	t.Parallel()
	now := time.Now()
	ks, err := NewStaticKeySet([]crypto.PublicKey{testRSAKey.Public(), testECKey.Public()})
	require.NoError(t, err)

	tests := []struct {
		name      string
		token     string
		wantErr   bool
		wantIsErr error
	}{
		{
			name:  "rsa",
			token: testSignJWT(t, testRSAKey, RS256, testClaims(t, now), testKeyID),
		},
		{
			name:  "ecdsa",
			token: testSignJWT(t, testECKey, ES256, testClaims(t, now), ""),
		},
		{
			name:      "unknown-key",
			token:     testSignJWT(t, testRSAKey2, RS256, testClaims(t, now), testKeyID),
			wantErr:   true,
			wantIsErr: ErrInvalidSignature,
		},
		{
			name:      "not-a-jwt",
			token:     "not.a.jwt",
			wantErr:   true,
			wantIsErr: ErrMalformedToken,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := ks.VerifySignature(context.Background(), tt.token)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(testClaims(t, now), got)
		})
	}
}

func TestNewStaticKeySet(t *testing.T) {
	t.Parallel()
	_, err := NewStaticKeySet(nil)
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewStaticKeySet([]crypto.PublicKey{"not a key"})
	require.ErrorIs(t, err, ErrInvalidParameter)

	ks, err := NewStaticKeySetFromPEM(testPublicKeyPEM(t, testRSAKey.Public()))
	require.NoError(t, err)
	_, err = ks.VerifySignature(context.Background(), testSignJWT(t, testRSAKey, RS256, testClaims(t, time.Now()), ""))
	require.NoError(t, err)
}

func TestParsePublicKeyPEM(t *testing.T) {
	t.Parallel()
	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name    string
		pem     string
		want    crypto.PublicKey
		wantErr bool
	}{
		{name: "rsa", pem: testPublicKeyPEM(t, testRSAKey.Public()), want: testRSAKey.Public()},
		{name: "ecdsa", pem: testPublicKeyPEM(t, testECKey.Public()), want: testECKey.Public()},
		{name: "ed25519", pem: testPublicKeyPEM(t, edPub), want: edPub},
		{name: "empty", pem: "", wantErr: true},
		{
			name:    "garbage-block",
			pem:     string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte("garbage")})),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePublicKeyPEM([]byte(tt.pem))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPEM)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewJSONWebKeySet(t *testing.T) {
	t.Parallel()
	jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		{Key: testRSAKey.Public(), KeyID: testKeyID, Algorithm: string(RS256), Use: "sig"},
	}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(srv.Close)

	_, err := NewJSONWebKeySet(context.Background(), "", "")
	require.ErrorIs(t, err, ErrInvalidParameter)

	ks, err := NewJSONWebKeySet(context.Background(), srv.URL, "")
	require.NoError(t, err)

	now := time.Now()
	got, err := ks.VerifySignature(context.Background(), testSignJWT(t, testRSAKey, RS256, testClaims(t, now), testKeyID))
	require.NoError(t, err)
	assert.Equal(t, testClaims(t, now), got)

	_, err = ks.VerifySignature(context.Background(), testSignJWT(t, testRSAKey2, RS256, testClaims(t, now), testKeyID))
	require.Error(t, err)
}

type payloadVerifierFunc func(ctx context.Context, token string) ([]byte, error)

func (f payloadVerifierFunc) VerifySignature(ctx context.Context, token string) ([]byte, error) {
	return f(ctx, token)
}

func TestNewPayloadKeySet(t *testing.T) {
	t.Parallel()
	_, err := NewPayloadKeySet(nil)
	require.ErrorIs(t, err, ErrInvalidParameter)

	ks, err := NewPayloadKeySet(payloadVerifierFunc(func(_ context.Context, _ string) ([]byte, error) {
		return []byte(`{"sub":"alice"}`), nil
	}))
	require.NoError(t, err)
	got, err := ks.VerifySignature(context.Background(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"sub": "alice"}, got)

	bad, err := NewPayloadKeySet(payloadVerifierFunc(func(_ context.Context, _ string) ([]byte, error) {
		return []byte(`not json`), nil
	}))
	require.NoError(t, err)
	_, err = bad.VerifySignature(context.Background(), "ignored")
	require.ErrorIs(t, err, ErrMalformedToken)
}
