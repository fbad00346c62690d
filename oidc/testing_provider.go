// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/go-secure-stdlib/strutil"
	"github.com/stretchr/testify/require"
)

// TestProvider is local server that supports test provider capabilities which
// make writing tests much easier. It serves discovery, authorize, token,
// jwks, userinfo, revocation and introspection endpoints over TLS.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	mu                  sync.Mutex
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	clientID            string
	clientSecret        string
	expectedAuthCode    string
	expectedAuthNonce   string
	customClaims        map[string]interface{}
	customAudiences     []string
	omitIDToken         bool
	omitIssuedAt        bool
	disablePKCE         bool
	tokenTTL            time.Duration

	signingKey crypto.PrivateKey
	signingAlg Alg
	keyID      string
	publicKeys []jose.JSONWebKey

	codeChallenge       string
	lastClientAssertion string
	issuedTokens        map[string]bool // access and refresh tokens, false once revoked
	failures            map[string]testFailure
	requests            map[string]int
}

type testFailure struct {
	remaining int
	status    int
}

const (
	testWellKnownPath = "/.well-known/openid-configuration"
	testJWKSPath      = "/certs"
)

// StartTestProvider creates a disposable TestProvider which is stopped when
// the test finishes. It signs id_tokens with a generated ES256 key, expects
// the auth code "test-code" and allows the "https://example.com/callback"
// redirect.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	pub, priv := TestGenerateKeys(t)
	p := &TestProvider{
		allowedRedirectURIs: []string{"https://example.com/callback"},
		replySubject:        "alice@example.com",
		replyUserinfo: map[string]interface{}{
			"color":       "red",
			"temperature": "76",
			"flavor":      "umami",
		},
		expectedAuthCode: "test-code",
		tokenTTL:         5 * time.Minute,
		issuedTokens:     map[string]bool{},
		failures:         map[string]testFailure{},
		requests:         map[string]int{},
	}
	p.setSigningKey(priv, pub, ES256, "test-key")

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: p.httpServer.Certificate().Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /authorize and
// the allowed auth code for /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce included in issued id_tokens.
// A nonce sent to /authorize replaces it.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs
// for the OIDC workflow.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetSubject configures the sub claim of issued id_tokens and userinfo.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetCustomClaims lets you set claims to return in the JWT issued by the OIDC
// workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures the audiences to embed in the id_tokens
// issued by the OIDC workflow instead of the client ID.
func (p *TestProvider) SetCustomAudience(aud ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudiences = aud
}

// SetTokenTTL configures how long issued tokens are valid.
func (p *TestProvider) SetTokenTTL(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenTTL = d
}

// OmitIDTokens forces an error state where the /token endpoint does not
// return an id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitIssuedAt issues id_tokens without an iat claim.
func (p *TestProvider) OmitIssuedAt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIssuedAt = true
}

// DisablePKCE stops advertising support for the S256 challenge method.
func (p *TestProvider) DisablePKCE() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disablePKCE = true
}

// SetSigningKeys replaces the key used to sign id_tokens and the key set
// published at the jwks endpoint. Any previously published keys are removed.
func (p *TestProvider) SetSigningKeys(priv crypto.PrivateKey, pub crypto.PublicKey, alg Alg, keyID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setSigningKey(priv, pub, alg, keyID)
}

func (p *TestProvider) setSigningKey(priv crypto.PrivateKey, pub crypto.PublicKey, alg Alg, keyID string) {
	p.signingKey = priv
	p.signingAlg = alg
	p.keyID = keyID
	p.publicKeys = []jose.JSONWebKey{{Key: pub, KeyID: keyID, Algorithm: string(alg), Use: "sig"}}
}

// SetUnpublishedSigningKey signs id_tokens with a key which is not published
// at the jwks endpoint.
func (p *TestProvider) SetUnpublishedSigningKey(priv crypto.PrivateKey, alg Alg, keyID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signingKey = priv
	p.signingAlg = alg
	p.keyID = keyID
}

// SigningKey returns the private key, algorithm and key ID used to sign
// id_tokens.
func (p *TestProvider) SigningKey() (crypto.PrivateKey, Alg, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signingKey, p.signingAlg, p.keyID
}

// FailRequests makes the next n requests to path fail with status.
func (p *TestProvider) FailRequests(path string, n int, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[path] = testFailure{remaining: n, status: status}
}

// Requests returns how many requests were made to path, including failed
// ones.
func (p *TestProvider) Requests(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[path]
}

// DiscoveryRequests returns the number of discovery document requests.
func (p *TestProvider) DiscoveryRequests() int { return p.Requests(testWellKnownPath) }

// JWKSRequests returns the number of key set requests.
func (p *TestProvider) JWKSRequests() int { return p.Requests(testJWKSPath) }

// LastClientAssertion returns the client_assertion sent with the most recent
// authenticated request, if any.
func (p *TestProvider) LastClientAssertion() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastClientAssertion
}

// Addr returns the current base URL for the test provider's running
// webserver, which is also its issuer.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http client which trusts the test provider.
func (p *TestProvider) HTTPClient() *http.Client { return p.httpServer.Client() }

// Metadata returns the provider metadata served by discovery.
func (p *TestProvider) Metadata() *ProviderMetadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metadata()
}

func (p *TestProvider) metadata() *ProviderMetadata {
	m := &ProviderMetadata{
		Issuer:                p.Addr(),
		AuthorizationEndpoint: p.Addr() + "/authorize",
		TokenEndpoint:         p.Addr() + "/token",
		UserinfoEndpoint:      p.Addr() + "/userinfo",
		JWKSURI:               p.Addr() + testJWKSPath,
		RevocationEndpoint:    p.Addr() + "/revoke",
		IntrospectionEndpoint: p.Addr() + "/introspect",
		EndSessionEndpoint:    p.Addr() + "/logout",
		ScopesSupported:       []string{"openid", "email", "profile"},
		IDTokenSigningAlgs:    []string{string(p.signingAlg)},
		ResponseTypes:         []string{"code"},
	}
	if !p.disablePKCE {
		m.CodeChallengeMethods = []string{string(S256)}
	}
	return m
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()
	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)
	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}
	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(&body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests[req.URL.Path]++
	if f, ok := p.failures[req.URL.Path]; ok && f.remaining > 0 {
		f.remaining--
		p.failures[req.URL.Path] = f
		w.WriteHeader(f.status)
		return
	}

	switch req.URL.Path {
	case testWellKnownPath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.writeJSON(w, p.metadata())

	case "/authorize":
		p.handleAuthorize(w, req)

	case testJWKSPath:
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.writeJSON(w, jose.JSONWebKeySet{Keys: p.publicKeys})

	case "/token":
		p.handleToken(w, req)

	case "/userinfo":
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if !p.issuedTokens[token] {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply := map[string]interface{}{"sub": p.replySubject}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		p.writeJSON(w, reply)

	case "/revoke":
		if !p.authenticateClient(w, req) {
			return
		}
		if _, ok := p.issuedTokens[req.FormValue("token")]; ok {
			p.issuedTokens[req.FormValue("token")] = false
		}
		w.WriteHeader(http.StatusOK)

	case "/introspect":
		if !p.authenticateClient(w, req) {
			return
		}
		if !p.issuedTokens[req.FormValue("token")] {
			p.writeJSON(w, map[string]interface{}{"active": false})
			return
		}
		p.writeJSON(w, map[string]interface{}{
			"active":    true,
			"sub":       p.replySubject,
			"client_id": p.clientID,
		})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) handleAuthorize(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	qv := req.URL.Query()
	redirectURI := qv.Get("redirect_uri")
	switch {
	case redirectURI == "" || !strutil.StrListContains(p.allowedRedirectURIs, redirectURI):
		w.WriteHeader(http.StatusBadRequest)
		return
	case qv.Get("response_type") != "code":
		p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
		return
	case !strutil.StrListContains(strings.Split(qv.Get("scope"), " "), "openid"):
		p.writeAuthErrorResponse(w, req, "invalid_scope", "")
		return
	case qv.Get("client_id") != p.clientID:
		p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
		return
	case p.expectedAuthCode == "":
		p.writeAuthErrorResponse(w, req, "access_denied", "")
		return
	case qv.Get("state") == "":
		p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
		return
	}
	if n := qv.Get("nonce"); n != "" {
		p.expectedAuthNonce = n
	}
	p.codeChallenge = ""
	if c := qv.Get("code_challenge"); c != "" {
		if qv.Get("code_challenge_method") != string(S256) {
			p.writeAuthErrorResponse(w, req, "invalid_request", "unsupported code_challenge_method")
			return
		}
		p.codeChallenge = c
	}
	redirectURI += "?state=" + url.QueryEscape(qv.Get("state")) +
		"&code=" + url.QueryEscape(p.expectedAuthCode)
	http.Redirect(w, req, redirectURI, http.StatusFound)
}

// authenticateClient accepts client_secret_basic, client_secret_post and
// private_key_jwt client authentication. It writes the error response when
// authentication fails.
func (p *TestProvider) authenticateClient(w http.ResponseWriter, req *http.Request) bool {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if err := req.ParseForm(); err != nil {
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	if assertion := req.PostForm.Get("client_assertion"); assertion != "" {
		if req.PostForm.Get("client_assertion_type") != clientAssertionType {
			p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "bad client_assertion_type")
			return false
		}
		p.lastClientAssertion = assertion
		return true
	}
	id, secret, ok := req.BasicAuth()
	if ok {
		id, _ = url.QueryUnescape(id)
		secret, _ = url.QueryUnescape(secret)
	} else {
		id, secret = req.PostForm.Get("client_id"), req.PostForm.Get("client_secret")
	}
	if id != p.clientID || secret != p.clientSecret {
		p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "bad client credentials")
		return false
	}
	return true
}

func (p *TestProvider) handleToken(w http.ResponseWriter, req *http.Request) {
	if !p.authenticateClient(w, req) {
		return
	}
	switch req.PostForm.Get("grant_type") {
	case "authorization_code":
		switch {
		case !strutil.StrListContains(p.allowedRedirectURIs, req.PostForm.Get("redirect_uri")):
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case req.PostForm.Get("code") != p.expectedAuthCode:
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		}
		if p.codeChallenge != "" {
			v := req.PostForm.Get("code_verifier")
			if v == "" {
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "missing code_verifier")
				return
			}
			if verifier, err := newS256Verifier(v); err != nil || verifier.Challenge() != p.codeChallenge {
				p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code_verifier does not match")
				return
			}
		}
		p.writeTokenResponse(w, p.expectedAuthNonce)

	case "refresh_token":
		if !p.issuedTokens[req.PostForm.Get("refresh_token")] {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unknown refresh_token")
			return
		}
		p.writeTokenResponse(w, "")

	default:
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

func (p *TestProvider) writeTokenResponse(w http.ResponseWriter, nonce string) {
	n := len(p.issuedTokens)
	accessToken := fmt.Sprintf("access-token-%d", n)
	refreshToken := fmt.Sprintf("refresh-token-%d", n)
	p.issuedTokens[accessToken] = true
	p.issuedTokens[refreshToken] = true

	now := time.Now()
	claims := map[string]interface{}{
		"iss":     p.Addr(),
		"sub":     p.replySubject,
		"aud":     []string{p.clientID},
		"nbf":     now.Add(-5 * time.Second).Unix(),
		"iat":     now.Unix(),
		"exp":     now.Add(p.tokenTTL).Unix(),
		"at_hash": TestHashAccessToken(p.signingAlg, accessToken),
	}
	if len(p.customAudiences) > 0 {
		claims["aud"] = p.customAudiences
		claims["azp"] = p.clientID
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if p.omitIssuedAt {
		delete(claims, "iat")
	}
	for k, v := range p.customClaims {
		claims[k] = v
	}
	idToken, err := signJWT(p.signingKey, p.signingAlg, claims, p.keyID)
	if err != nil {
		p.writeTokenErrorResponse(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	reply := struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		IDToken      string `json:"id_token,omitempty"`
	}{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		ExpiresIn:    int64(p.tokenTTL.Seconds()),
		IDToken:      idToken,
	}
	if p.omitIDToken {
		reply.IDToken = ""
	}
	p.writeJSON(w, &reply)
}
