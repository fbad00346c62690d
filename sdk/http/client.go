// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package http builds the outbound HTTP clients used to talk to OIDC
// providers: discovery, key sets, token, userinfo and revocation endpoints.
package http

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
)

// DefaultTimeout bounds every request made by a client from NewClient.
const DefaultTimeout = 10 * time.Second

var ErrInvalidCertificatePem = errors.New("invalid certificate PEM")

// Option configures NewClient.
type Option func(*clientOptions)

type clientOptions struct {
	withTimeout time.Duration
}

// WithTimeout overrides DefaultTimeout. A zero or negative d is ignored.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.withTimeout = d
		}
	}
}

// NewClient creates a new http client which will use the optional CA
// certificate PEM if provided, otherwise it will use the installed system CA
// chain. The transport is pooled and TLS 1.2 is the minimum version.
func NewClient(caPEM string, opt ...Option) (*http.Client, error) {
	const op = "http.NewClient"
	opts := clientOptions{withTimeout: DefaultTimeout}
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}

	tr := cleanhttp.DefaultPooledTransport()
	tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCertificatePem)
		}
		tr.TLSClientConfig.RootCAs = certPool
	}

	return &http.Client{
		Transport: tr,
		Timeout:   opts.withTimeout,
	}, nil
}

// ClientContext returns a new Context that carries the provided HTTP client.
// It sets the same context key used by github.com/coreos/go-oidc and
// golang.org/x/oauth2, so the returned context works for both.
func ClientContext(ctx context.Context, client *http.Client) context.Context {
	return oidc.ClientContext(ctx, client)
}
