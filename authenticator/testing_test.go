// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package authenticator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"

	"github.com/hashicorp/cap-rp/oidc"
	"github.com/hashicorp/cap-rp/oidc/store"
)

const (
	testClientID     = "client1"
	testClientSecret = "secret1"
	testRedirect     = "https://example.com/callback"
)

// testNewProvider configures tp for client1 with the redirect and returns a
// Provider for it.
func testNewProvider(t *testing.T, tp *oidc.TestProvider, redirect string) *oidc.Provider {
	t.Helper()
	require := require.New(t)
	tp.SetClientCreds(testClientID, testClientSecret)
	tp.SetAllowedRedirectURIs([]string{redirect})
	_, alg, _ := tp.SigningKey()
	c, err := oidc.NewConfig(
		tp.Addr(),
		testClientID,
		testClientSecret,
		[]oidc.Alg{alg},
		[]string{redirect},
		oidc.WithProviderCA(tp.CACert()),
	)
	require.NoError(err)
	p, err := oidc.NewProvider(c)
	require.NoError(err)
	t.Cleanup(p.Done)
	return p
}

// testNewAuthenticator returns an Authenticator named "test" using the
// default redirect and a fresh MemoryStore.
func testNewAuthenticator(t *testing.T, tp *oidc.TestProvider, opt ...oidc.Option) (*Authenticator, *store.MemoryStore) {
	t.Helper()
	requests := store.NewMemoryStore()
	a, err := New("test", testNewProvider(t, tp, testRedirect), requests, opt...)
	require.NoError(t, err)
	return a, requests
}

// testLogin runs a.Login and follows the redirect to tp. It returns the
// state cookie and the query tp redirected back with.
func testLogin(t *testing.T, a *Authenticator, tp *oidc.TestProvider) (*http.Cookie, url.Values) {
	t.Helper()
	require := require.New(t)
	rec := httptest.NewRecorder()
	a.Login(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(http.StatusFound, rec.Code)

	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == a.stateCookie {
			state = c
		}
	}
	require.NotNil(state)

	client := *tp.HTTPClient()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Get(rec.Header().Get("Location"))
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	return state, loc.Query()
}

// testCallbackRequest builds a callback request with the query and cookies.
func testCallbackRequest(q url.Values, cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, testRedirect+"?"+q.Encode(), nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

// testRP is a relying party served over plain http.
type testRP struct {
	*httptest.Server
	a        *Authenticator
	requests *store.MemoryStore
	tp       *oidc.TestProvider
}

// startTestRP serves a's Login, Callback and Logout plus a protected "/"
// which writes the Principal's identifier.
func startTestRP(t *testing.T, opt ...oidc.Option) *testRP {
	t.Helper()
	require := require.New(t)
	tp := oidc.StartTestProvider(t)
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	requests := store.NewMemoryStore()
	p := testNewProvider(t, tp, srv.URL+"/callback")
	a, err := New("test", p, requests, append([]oidc.Option{WithInsecureCookies()}, opt...)...)
	require.NoError(err)

	mux.HandleFunc("/login", a.Login)
	mux.HandleFunc("/callback", a.Callback)
	mux.HandleFunc("/logout", a.Logout)
	mux.Handle("/", a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = fmt.Fprint(w, p.Identifier)
	})))
	return &testRP{Server: srv, a: a, requests: requests, tp: tp}
}

// browser returns a cookie keeping client which trusts the test provider.
// It does not follow redirects when follow is false.
func (rp *testRP) browser(t *testing.T, follow bool) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	c := &http.Client{Transport: rp.tp.HTTPClient().Transport, Jar: jar}
	if !follow {
		c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return c
}

// testFailingStore is a RequestStore which is always unavailable.
type testFailingStore struct{}

func (testFailingStore) Put(context.Context, oidc.Request) error {
	return fmt.Errorf("put: %w", oidc.ErrNetwork)
}

func (testFailingStore) Take(context.Context, string) (oidc.Request, error) {
	return nil, fmt.Errorf("take: %w", oidc.ErrNetwork)
}

// testClaims returns valid bearer token claims for tp.
func testClaims(tp *oidc.TestProvider) map[string]interface{} {
	now := time.Now()
	return map[string]interface{}{
		"iss": tp.Addr(),
		"sub": "alice@example.com",
		"aud": []string{testClientID},
		"iat": now.Unix(),
		"nbf": now.Add(-time.Second).Unix(),
		"exp": now.Add(time.Minute).Unix(),
	}
}
