// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"

	caphttp "github.com/hashicorp/cap-rp/sdk/http"
)

// KeySet represents a set of keys that can be used to verify the signatures of JWTs.
// A KeySet is expected to be backed by a set of local or remote keys.
type KeySet interface {
	// VerifySignature parses the given JWT, verifies its signature, and returns the claims in its payload.
	VerifySignature(ctx context.Context, token string) (claims map[string]interface{}, err error)
}

// PayloadVerifier verifies a token signature and returns its raw payload.
// It is satisfied by go-oidc's KeySet interface.
type PayloadVerifier interface {
	VerifySignature(ctx context.Context, token string) (payload []byte, err error)
}

// NewPayloadKeySet adapts a PayloadVerifier to a KeySet.
func NewPayloadKeySet(v PayloadVerifier) (KeySet, error) {
	const op = "NewPayloadKeySet"
	if v == nil {
		return nil, fmt.Errorf("%s: verifier is nil: %w", op, ErrInvalidParameter)
	}
	return payloadKeySet{v: v}, nil
}

type payloadKeySet struct {
	v PayloadVerifier
}

func (ks payloadKeySet) VerifySignature(ctx context.Context, token string) (map[string]interface{}, error) {
	payload, err := ks.v.VerifySignature(ctx, token)
	if err != nil {
		return nil, err
	}
	return unmarshalClaims(payload)
}

// NewJSONWebKeySet returns a KeySet that verifies JWT signatures using keys from the JSON Web
// Key Set (JWKS) at the given jwksURL. The client used to obtain the remote JWKS will verify
// server certificates using the root certificates provided by jwksCAPEM.
func NewJSONWebKeySet(ctx context.Context, jwksURL string, jwksCAPEM string) (KeySet, error) {
	const op = "NewJSONWebKeySet"
	if jwksURL == "" {
		return nil, fmt.Errorf("%s: jwksURL must not be empty: %w", op, ErrInvalidParameter)
	}
	client, err := caphttp.NewClient(jwksCAPEM)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payloadKeySet{v: oidc.NewRemoteKeySet(oidc.ClientContext(ctx, client), jwksURL)}, nil
}

// StaticKeySet verifies JWT signatures using local public keys.
type StaticKeySet struct {
	publicKeys []crypto.PublicKey
}

// NewStaticKeySet returns a KeySet that verifies JWT signatures using the given
// RSA, ECDSA or ED25519 public keys.
func NewStaticKeySet(publicKeys []crypto.PublicKey) (KeySet, error) {
	const op = "NewStaticKeySet"
	if len(publicKeys) == 0 {
		return nil, fmt.Errorf("%s: keys must not be empty: %w", op, ErrInvalidParameter)
	}
	for _, k := range publicKeys {
		switch k.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		default:
			return nil, fmt.Errorf("%s: unsupported key type %T: %w", op, k, ErrInvalidParameter)
		}
	}
	return &StaticKeySet{publicKeys: publicKeys}, nil
}

// NewStaticKeySetFromPEM is NewStaticKeySet for PEM-encoded x509 certificates
// or PKIX public keys.
func NewStaticKeySetFromPEM(pems ...string) (KeySet, error) {
	const op = "NewStaticKeySetFromPEM"
	keys := make([]crypto.PublicKey, 0, len(pems))
	for _, p := range pems {
		k, err := ParsePublicKeyPEM([]byte(p))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		keys = append(keys, k)
	}
	return NewStaticKeySet(keys)
}

// VerifySignature parses the given JWT, verifies its signature using the
// static public keys, and returns the claims in its payload. The given JWT
// must be of the JWS compact serialization form.
func (ks *StaticKeySet) VerifySignature(_ context.Context, token string) (map[string]interface{}, error) {
	const op = "StaticKeySet.VerifySignature"
	jws, err := jose.ParseSigned(token, allAlgorithms())
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedToken, err)
	}
	for _, key := range ks.publicKeys {
		payload, err := jws.Verify(key)
		if err == nil {
			return unmarshalClaims(payload)
		}
	}
	return nil, fmt.Errorf("%s: %w", op, ErrInvalidSignature)
}

// ParsePublicKeyPEM is used to parse RSA, ECDSA and ED25519 public keys from
// PEMs. The given data can be either a PKIX public key or an x509 certificate.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	const op = "ParsePublicKeyPEM"
	block, _ := pem.Decode([]byte(strings.TrimSpace(string(data))))
	if block == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPEM)
	}
	rawKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidPEM, err)
		}
		rawKey = cert.PublicKey
	}
	switch k := rawKey.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPEM)
	}
}

func unmarshalClaims(payload []byte) (map[string]interface{}, error) {
	const op = "unmarshalClaims"
	claims := map[string]interface{}{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedToken, err)
	}
	return claims, nil
}

func allAlgorithms() []jose.SignatureAlgorithm {
	algs := make([]jose.SignatureAlgorithm, 0, len(supportedAlgorithms))
	for a := range supportedAlgorithms {
		algs = append(algs, jose.SignatureAlgorithm(a))
	}
	return algs
}
