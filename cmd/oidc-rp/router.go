// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/cap-rp/authenticator"
	"github.com/hashicorp/cap-rp/registry"
)

func newRouter(reg *registry.Registry, logger hclog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/clients", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, reg.Names())
	})

	r.Get("/login/{client}", withAuthenticator(reg, func(a *authenticator.Authenticator) http.Handler {
		return http.HandlerFunc(a.Login)
	}))
	// form_post responses arrive as a POST
	callback := withAuthenticator(reg, func(a *authenticator.Authenticator) http.Handler {
		return http.HandlerFunc(a.Callback)
	})
	r.Get("/callback/{client}", callback)
	r.Post("/callback/{client}", callback)
	r.Get("/logout/{client}", withAuthenticator(reg, func(a *authenticator.Authenticator) http.Handler {
		return http.HandlerFunc(a.Logout)
	}))
	r.Get("/whoami/{client}", withAuthenticator(reg, func(a *authenticator.Authenticator) http.Handler {
		return a.Middleware(http.HandlerFunc(whoami))
	}))

	// bearer tokens from any configured provider
	r.Get("/api/whoami", func(w http.ResponseWriter, req *http.Request) {
		token, ok := authenticator.BearerToken(req)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication failed"})
			return
		}
		p, err := reg.AuthenticateToken(req.Context(), token)
		if err != nil {
			logger.Warn("bearer authentication failed", "error", err)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication failed"})
			return
		}
		writeJSON(w, http.StatusOK, p)
	})
	return r
}

// withAuthenticator finds the client named in the path and serves h with its
// authenticator.
func withAuthenticator(reg *registry.Registry, h func(*authenticator.Authenticator) http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := reg.Client(chi.URLParam(r, "client"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		h(c.Authenticator).ServeHTTP(w, r)
	}
}

func whoami(w http.ResponseWriter, r *http.Request) {
	p, ok := authenticator.PrincipalFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
