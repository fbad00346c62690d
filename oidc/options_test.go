// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestApplyOpts(t *testing.T) {
	// ApplyOpts testing is covered by other tests but we do have just more
	// more test to add here.
	// Let's make sure we don't panic on nil options
	anonymousOpts := struct {
		Names []string
	}{
		nil,
	}
	ApplyOpts(anonymousOpts, nil)
}

func Test_WithScopes(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getConfigOpts(WithScopes("email", "profile", "email"))
	assert.Equal([]string{"email", "profile"}, opts.withScopes)

	reqOpts := getReqOpts(WithScopes("profile"), WithScopes("email"))
	assert.Equal([]string{"profile", "email"}, reqOpts.withScopes)
}

func Test_WithAudiences(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getConfigOpts(WithAudiences("aud1", "aud2", "aud1"))
	assert.Equal([]string{"aud1", "aud2"}, opts.withAudiences)
}

func Test_WithNow(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return fixed }

	assert.Equal(fixed, getConfigOpts(WithNow(now)).withNowFunc())
	assert.Equal(fixed, getResolverOpts(WithNow(now)).withNowFunc())
	assert.Equal(fixed, getReqOpts(WithNow(now)).withNowFunc())
	assert.Nil(getReqOpts(WithNow(nil)).withNowFunc)
}

func Test_ResolverOptions(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	logger := hclog.NewNullLogger()
	m := &ProviderMetadata{Issuer: "https://example.com"}
	opts := getResolverOpts(
		WithCacheTTL(time.Minute),
		WithKeyRefreshInterval(time.Second),
		WithMaxRetries(5),
		WithRetryInterval(time.Millisecond),
		WithSigningAlgs(ES256, RS256),
		WithProviderConfig(m),
		WithLogger(logger),
	)
	testOpts := resolverDefaults()
	testOpts.withCacheTTL = time.Minute
	testOpts.withKeyRefreshInterval = time.Second
	testOpts.withMaxRetries = 5
	testOpts.withRetryInterval = time.Millisecond
	testOpts.withSigningAlgs = []Alg{ES256, RS256}
	testOpts.withProviderConfig = m
	testOpts.withLogger = logger
	assert.Equal(testOpts, opts)
}

func Test_ConfigDefaults(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getConfigOpts()
	assert.Equal(DefaultClockSkew, opts.withClockSkew)
	assert.Equal(DefaultCacheTTL, opts.withCacheTTL)
	assert.Equal(DefaultKeyRefreshInterval, opts.withKeyRefreshInterval)
	assert.Equal(uint(DefaultMaxRetries), opts.withMaxRetries)
	assert.Equal(DefaultRetryInterval, opts.withRetryInterval)
	assert.Equal(DefaultHTTPTimeout, opts.withHTTPTimeout)
	assert.NotNil(opts.withLogger)

	opts = getConfigOpts(WithClockSkew(time.Second), WithHTTPTimeout(time.Minute), WithMaxRetries(0))
	assert.Equal(time.Second, opts.withClockSkew)
	assert.Equal(time.Minute, opts.withHTTPTimeout)
	assert.Equal(uint(0), opts.withMaxRetries)
}

func Test_RequestOptions(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	v, err := NewCodeVerifier()
	assert.NoError(err)
	opts := getReqOpts(
		WithPKCE(v),
		WithState("st"),
		WithNonce("n"),
		WithMaxAge(60),
		WithPrompts(Login, Consent),
		WithDisplay(Touch),
		WithUILocales(language.English, language.Spanish),
		WithACRValues("phr"),
	)
	assert.Equal(v, opts.withVerifier)
	assert.Equal("st", opts.withState)
	assert.Equal("n", opts.withNonce)
	if assert.NotNil(opts.withMaxAge) {
		assert.Equal(uint(60), *opts.withMaxAge)
	}
	assert.Equal([]Prompt{Login, Consent}, opts.withPrompts)
	assert.Equal(Touch, opts.withDisplay)
	assert.Equal([]language.Tag{language.English, language.Spanish}, opts.withUILocales)
	assert.Equal([]string{"phr"}, opts.withACRValues)
}
