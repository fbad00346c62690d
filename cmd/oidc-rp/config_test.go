// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-rp/oidc"
)

const testConfigYAML = `
base_url: https://rp.example.com/
insecure_cookies: true
session_ttl: 1h
log:
  level: debug
redis:
  addr: localhost:6379
  key_prefix: "rp:"
clients:
  corp:
    issuer: https://idp.example.com
    client_id: client1
    client_secret: file-secret
    scopes: [email, profile]
    signing_algs: [ES256]
    clock_skew: 1m
    user_identifier_claim: email
  partner:
    issuer: https://partner.example.com
    client_id: client2
    redirect_urls:
      - https://rp.example.com/partner/cb
`

func testWriteConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oidc-rp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		cfg, err := loadConfig(viper.New(), testWriteConfig(t, testConfigYAML))
		require.NoError(err)

		assert.Equal(":8080", cfg.Addr)
		assert.Equal("debug", cfg.Log.Level)
		assert.True(cfg.InsecureCookies)
		assert.Equal(time.Hour, cfg.SessionTTL)
		assert.Equal("localhost:6379", cfg.Redis.Addr)
		assert.Equal("rp:", cfg.Redis.KeyPrefix)
		require.Len(cfg.Clients, 2)

		corp := cfg.Clients["corp"]
		assert.Equal("https://idp.example.com", corp.Issuer)
		assert.Equal("file-secret", corp.ClientSecret)
		assert.Equal([]string{"email", "profile"}, corp.Scopes)
		assert.Equal([]string{"ES256"}, corp.SigningAlgs)
		assert.Equal(time.Minute, corp.ClockSkew)
		assert.Equal("email", corp.UserIdentifierClaim)
		assert.Equal([]string{"https://rp.example.com/callback/corp"}, corp.RedirectURLs)

		assert.Equal([]string{"https://rp.example.com/partner/cb"}, cfg.Clients["partner"].RedirectURLs)
	})
	t.Run("missing-file", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		_, err := loadConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Truef(errors.Is(err, oidc.ErrConfiguration), "wanted \"%s\" but got \"%s\"", oidc.ErrConfiguration, err)
	})
	t.Run("no-clients", func(t *testing.T) {
		t.Parallel()
		assert := assert.New(t)
		_, err := loadConfig(viper.New(), testWriteConfig(t, "addr: \":9090\"\n"))
		assert.Truef(errors.Is(err, oidc.ErrConfiguration), "wanted \"%s\" but got \"%s\"", oidc.ErrConfiguration, err)
	})
}

func TestLoadConfig_Env(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	t.Setenv("OIDCRP_CLIENTS_CORP_CLIENT_SECRET", "env-secret")
	t.Setenv("OIDCRP_ADDR", ":9999")
	cfg, err := loadConfig(viper.New(), testWriteConfig(t, testConfigYAML))
	require.NoError(err)
	assert.Equal("env-secret", cfg.Clients["corp"].ClientSecret)
	assert.Equal(":9999", cfg.Addr)
}

func TestValidateCmd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		config    string
		wantOut   string
		wantIsErr error
	}{
		{
			name:    "valid",
			config:  testConfigYAML,
			wantOut: "configuration is valid: 2 client(s)",
		},
		{
			name: "bad-client",
			config: `
clients:
  corp:
    issuer: https://idp.example.com
    client_id: client1
    redirect_urls: [https://rp.example.com/callback]
    signing_algs: [none]
`,
			wantIsErr: oidc.ErrConfiguration,
		},
		{
			name: "relative-redirect",
			config: `
clients:
  corp:
    issuer: https://idp.example.com
    client_id: client1
    redirect_urls: [/callback]
`,
			wantIsErr: oidc.ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			var out bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs([]string{"validate", "--config", testWriteConfig(t, tt.config)})
			err := cmd.Execute()
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.Contains(out.String(), tt.wantOut)
		})
	}
}
