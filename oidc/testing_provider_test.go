// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StartTestProvider(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	assert.True(strings.HasPrefix(tp.Addr(), "https://"))
	assert.NotEmpty(tp.CACert())

	client := tp.HTTPClient()
	resp, err := client.Get(tp.Addr() + testWellKnownPath)
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)

	var m ProviderMetadata
	require.NoError(json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(tp.Metadata(), &m)
	assert.True(m.SupportsPKCE())
	assert.NoError(m.validate(tp.Addr()))
	assert.Equal(1, tp.DiscoveryRequests())
}

func TestTestProvider_JWKS(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)

	resp, err := tp.HTTPClient().Get(tp.Addr() + testJWKSPath)
	require.NoError(err)
	defer resp.Body.Close()
	var jwks jose.JSONWebKeySet
	require.NoError(json.NewDecoder(resp.Body).Decode(&jwks))
	require.Len(jwks.Key("test-key"), 1)
	_, alg, kid := tp.SigningKey()
	assert.Equal(ES256, alg)
	assert.Equal("test-key", kid)
	assert.Equal(1, tp.JWKSRequests())

	_, priv := TestGenerateKeys(t)
	tp.SetUnpublishedSigningKey(priv, ES256, "hidden")
	resp, err = tp.HTTPClient().Get(tp.Addr() + testJWKSPath)
	require.NoError(err)
	defer resp.Body.Close()
	jwks = jose.JSONWebKeySet{}
	require.NoError(json.NewDecoder(resp.Body).Decode(&jwks))
	assert.Empty(jwks.Key("hidden"))
}

func TestTestProvider_FailRequests(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	tp.FailRequests(testWellKnownPath, 2, http.StatusServiceUnavailable)

	for _, want := range []int{http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusOK} {
		resp, err := tp.HTTPClient().Get(tp.Addr() + testWellKnownPath)
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(want, resp.StatusCode)
	}
	assert.Equal(3, tp.DiscoveryRequests())
}

func TestTestProvider_DisablePKCE(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tp := StartTestProvider(t)
	tp.DisablePKCE()
	assert.False(tp.Metadata().SupportsPKCE())
}

func TestTestProvider_UnknownPath(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	resp, err := tp.HTTPClient().Get(tp.Addr() + "/nope")
	require.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)

	resp, err = tp.HTTPClient().Get(tp.Addr() + "/userinfo")
	require.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusUnauthorized, resp.StatusCode)
}
