// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-rp/oidc"
)

// testSuccessFn is a test SuccessResponseFunc
func testSuccessFn(state string, t oidc.Token, w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("login successful"))
}

// testFailFn is a test ErrorResponseFunc. Provider errors are 401s, replays
// are 403s and everything else is a 500.
func testFailFn(state string, r *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
	switch {
	case r != nil:
		w.WriteHeader(http.StatusUnauthorized)
		j, _ := json.Marshal(r)
		_, _ = w.Write(j)
	case errors.Is(e, oidc.ErrReplay):
		w.WriteHeader(http.StatusForbidden)
		j, _ := json.Marshal(&AuthenErrorResponse{Error: "replay", Description: e.Error()})
		_, _ = w.Write(j)
	default:
		w.WriteHeader(http.StatusInternalServerError)
		j, _ := json.Marshal(&AuthenErrorResponse{Error: "internal-callback-error", Description: e.Error()})
		_, _ = w.Write(j)
	}
}

// testNewProvider creates a new Provider from the TestProvider, setting the
// TestProvider's client ID/secret. This is helpful internally, but
// intentionally not exported.
func testNewProvider(t *testing.T, clientID, clientSecret, redirectURL string, tp *oidc.TestProvider) *oidc.Provider {
	const op = "testNewProvider"
	t.Helper()
	require := require.New(t)
	require.NotEmptyf(clientID, "%s: client id is empty", op)
	require.NotEmptyf(clientSecret, "%s: client secret is empty", op)
	require.NotEmptyf(redirectURL, "%s: redirect URL is empty", op)

	tp.SetClientCreds(clientID, clientSecret)
	_, alg, _ := tp.SigningKey()
	c, err := oidc.NewConfig(
		tp.Addr(),
		clientID,
		oidc.ClientSecret(clientSecret),
		[]oidc.Alg{alg},
		[]string{redirectURL},
		oidc.WithProviderCA(tp.CACert()),
	)
	require.NoError(err)
	p, err := oidc.NewProvider(c)
	require.NoError(err)
	t.Cleanup(p.Done)
	return p
}

// testCallbackQuery follows authURL to the TestProvider's /authorize and
// returns the query it redirects back with.
func testCallbackQuery(t *testing.T, tp *oidc.TestProvider, authURL string) url.Values {
	t.Helper()
	require := require.New(t)
	client := *tp.HTTPClient()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	return loc.Query()
}
