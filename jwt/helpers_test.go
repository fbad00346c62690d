// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

const testKeyID = "test-key"

var (
	testRSAKey, testRSAKey2 *rsa.PrivateKey
	testECKey               *ecdsa.PrivateKey
)

func init() {
	var err error
	if testRSAKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
		panic(err)
	}
	if testRSAKey2, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
		panic(err)
	}
	if testECKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader); err != nil {
		panic(err)
	}
}

func testClaims(t *testing.T, now time.Time) map[string]interface{} {
	t.Helper()
	return map[string]interface{}{
		"iss":   "https://example.com/",
		"sub":   "alice@example.com",
		"aud":   []interface{}{"www.example.com"},
		"exp":   float64(now.Add(5 * time.Minute).Unix()),
		"nbf":   float64(now.Add(-time.Minute).Unix()),
		"iat":   float64(now.Add(-time.Minute).Unix()),
		"jti":   "abc123",
		"nonce": "n1",
	}
}

func testSignJWT(t *testing.T, key crypto.PrivateKey, alg Alg, claims interface{}, keyID string) string {
	t.Helper()
	opts := (&jose.SignerOptions{}).WithType("JWT")
	if keyID != "" {
		opts = opts.WithHeader("kid", keyID)
	}
	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.SignatureAlgorithm(alg), Key: key}, opts)
	require.NoError(t, err)
	raw, err := jwt.Signed(sig).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw
}

func testPublicKeyPEM(t *testing.T, pub crypto.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}
