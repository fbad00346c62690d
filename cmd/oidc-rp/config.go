// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hashicorp/cap-rp/authenticator"
	"github.com/hashicorp/cap-rp/oidc"
	"github.com/hashicorp/cap-rp/registry"
)

const (
	addrKey     = "addr"
	logLevelKey = "log.level"
	envPrefix   = "OIDCRP"
)

type serverConfig struct {
	Addr string `mapstructure:"addr"`

	// BaseURL is the externally visible URL of the server. Clients without
	// redirect_urls redirect to <base_url>/callback/<name>.
	BaseURL string `mapstructure:"base_url"`

	Log struct {
		Level string `mapstructure:"level"`
		JSON  bool   `mapstructure:"json"`
	} `mapstructure:"log"`

	// InsecureCookies is for serving over plain http during development.
	InsecureCookies bool          `mapstructure:"insecure_cookies"`
	RequestTTL      time.Duration `mapstructure:"request_ttl"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`

	// Redis keeps pending logins in redis when Addr is set, so any replica
	// can serve the callback.
	Redis struct {
		Addr      string `mapstructure:"addr"`
		Username  string `mapstructure:"username"`
		Password  string `mapstructure:"password"`
		DB        int    `mapstructure:"db"`
		KeyPrefix string `mapstructure:"key_prefix"`
	} `mapstructure:"redis"`

	registry.FileConfig `mapstructure:",squash"`
}

// loadConfig reads path, or ./oidc-rp.yaml when path is empty. Every key can
// be set from the environment, e.g. OIDCRP_CLIENTS_CORP_CLIENT_SECRET for
// clients.corp.client_secret. Client names are case insensitive.
func loadConfig(v *viper.Viper, path string) (*serverConfig, error) {
	const op = "loadConfig"
	v.SetDefault(addrKey, ":8080")
	v.SetDefault(logLevelKey, "info")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("oidc-rp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%s: %w: %w", op, oidc.ErrConfiguration, err)
		}
	}

	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, oidc.ErrConfiguration, err)
	}
	if len(cfg.Clients) == 0 {
		return nil, fmt.Errorf("%s: no clients configured: %w", op, oidc.ErrConfiguration)
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	for name, c := range cfg.Clients {
		if len(c.RedirectURLs) == 0 && base != "" {
			c.RedirectURLs = []string{base + "/callback/" + name}
			cfg.Clients[name] = c
		}
	}
	return &cfg, nil
}

// authenticatorOptions points each client's authenticator at its own routes.
func (c *serverConfig) authenticatorOptions(name string) []oidc.Option {
	opts := []oidc.Option{
		authenticator.WithLoginURL("/login/" + name),
		authenticator.WithSuccessFunc(func(w http.ResponseWriter, r *http.Request, _ *authenticator.Principal) {
			http.Redirect(w, r, "/whoami/"+name, http.StatusFound)
		}),
		authenticator.WithRequestTTL(c.RequestTTL),
		authenticator.WithSessionTTL(c.SessionTTL),
	}
	if c.InsecureCookies {
		opts = append(opts, authenticator.WithInsecureCookies())
	}
	return opts
}
