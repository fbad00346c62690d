// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-rp/oidc"
	"github.com/hashicorp/cap-rp/registry"
)

// testRouter serves a single client "corp" at tp.
func testRouter(t *testing.T, tp *oidc.TestProvider) http.Handler {
	t.Helper()
	require := require.New(t)
	tp.SetClientCreds("corp-id", "corp-secret")
	_, alg, _ := tp.SigningKey()
	cfg := &serverConfig{}
	cfg.Clients = map[string]registry.ClientConfig{
		"corp": {
			Issuer:       tp.Addr(),
			ClientID:     "corp-id",
			ClientSecret: "corp-secret",
			RedirectURLs: []string{"https://example.com/callback"},
			SigningAlgs:  []string{string(alg)},
			ProviderCA:   tp.CACert(),
		},
	}
	reg, err := registry.New(context.Background(), cfg.Clients, registry.WithAuthenticatorOptions(cfg.authenticatorOptions))
	require.NoError(err)
	t.Cleanup(reg.Close)
	return newRouter(reg, hclog.NewNullLogger())
}

func testServe(h http.Handler, method, target string, header http.Header, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		r.Header[k] = v
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func testCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	require.FailNowf(t, "missing cookie", "%s", name)
	return nil
}

func TestRouter_Login(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := oidc.StartTestProvider(t)
	h := testRouter(t, tp)

	// login
	rec := testServe(h, http.MethodGet, "/login/corp", nil)
	require.Equal(http.StatusFound, rec.Code)
	state := testCookie(t, rec, "rp_corp_state")

	// the provider redirects back with a code
	client := *tp.HTTPClient()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Get(rec.Header().Get("Location"))
	require.NoError(err)
	resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)

	// callback
	rec = testServe(h, http.MethodGet, "/callback/corp?"+loc.Query().Encode(), nil, state)
	require.Equal(http.StatusFound, rec.Code)
	assert.Equal("/whoami/corp", rec.Header().Get("Location"))
	session := testCookie(t, rec, "rp_corp_session")

	// the session identifies the user
	rec = testServe(h, http.MethodGet, "/whoami/corp", nil, session)
	require.Equal(http.StatusOK, rec.Code)
	var got map[string]interface{}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal("corp", got["client"])
	assert.Equal("alice@example.com", got["identifier"])

	// replaying the callback fails
	rec = testServe(h, http.MethodGet, "/callback/corp?"+loc.Query().Encode(), nil, state)
	assert.Equal(http.StatusUnauthorized, rec.Code)
}

func TestRouter(t *testing.T) {
	t.Parallel()
	tp := oidc.StartTestProvider(t)
	h := testRouter(t, tp)
	priv, alg, kid := tp.SigningKey()
	now := time.Now()
	token := oidc.TestSignJWT(t, priv, alg, map[string]interface{}{
		"iss": tp.Addr(),
		"sub": "alice@example.com",
		"aud": []string{"corp-id"},
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
	}, kid)

	tests := []struct {
		name         string
		path         string
		header       http.Header
		wantCode     int
		wantLocation string
		wantBody     string
	}{
		{name: "healthz", path: "/healthz", wantCode: http.StatusOK, wantBody: "ok"},
		{name: "clients", path: "/clients", wantCode: http.StatusOK, wantBody: `["corp"]`},
		{name: "unknown-client", path: "/login/nope", wantCode: http.StatusNotFound},
		{name: "whoami-browser", path: "/whoami/corp", wantCode: http.StatusFound, wantLocation: "/login/corp"},
		{
			name:     "whoami-api",
			path:     "/whoami/corp",
			header:   http.Header{"Accept": {"application/json"}},
			wantCode: http.StatusUnauthorized,
			wantBody: "authentication failed",
		},
		{
			name:     "whoami-bearer",
			path:     "/whoami/corp",
			header:   http.Header{"Authorization": {"Bearer " + token}},
			wantCode: http.StatusOK,
			wantBody: `"identifier":"alice@example.com"`,
		},
		{
			name:     "api-bearer",
			path:     "/api/whoami",
			header:   http.Header{"Authorization": {"Bearer " + token}},
			wantCode: http.StatusOK,
			wantBody: `"client":"corp"`,
		},
		{
			name:     "api-bearer-lowercase-scheme",
			path:     "/api/whoami",
			header:   http.Header{"Authorization": {"bearer " + token}},
			wantCode: http.StatusOK,
			wantBody: `"client":"corp"`,
		},
		{
			name:     "api-basic-auth",
			path:     "/api/whoami",
			header:   http.Header{"Authorization": {"Basic YWxpY2U6c2VjcmV0"}},
			wantCode: http.StatusUnauthorized,
			wantBody: "authentication failed",
		},
		{
			name:     "api-no-token",
			path:     "/api/whoami",
			wantCode: http.StatusUnauthorized,
			wantBody: "authentication failed",
		},
		{
			name:     "api-bad-token",
			path:     "/api/whoami",
			header:   http.Header{"Authorization": {"Bearer not-a-jwt"}},
			wantCode: http.StatusUnauthorized,
			wantBody: "authentication failed",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			rec := testServe(h, http.MethodGet, tt.path, tt.header)
			assert.Equal(tt.wantCode, rec.Code)
			if tt.wantLocation != "" {
				assert.Equal(tt.wantLocation, rec.Header().Get("Location"))
			}
			if tt.wantBody != "" {
				assert.Contains(strings.TrimSpace(rec.Body.String()), tt.wantBody)
			}
		})
	}
}
