// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hashicorp/cap-rp/oidc"
	"github.com/hashicorp/cap-rp/oidc/store"
	"github.com/hashicorp/cap-rp/registry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(v *viper.Viper, load func() (*serverConfig, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relying party",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, newLogger(cfg, cmd.ErrOrStderr()))
		},
	}
	cmd.Flags().String("addr", "", "address to listen on (default :8080)")
	_ = v.BindPFlag(addrKey, cmd.Flags().Lookup("addr"))
	return cmd
}

func serve(ctx context.Context, cfg *serverConfig, logger hclog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	requests, closeStore, err := newRequestStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg, err := registry.New(ctx, cfg.Clients,
		registry.WithLogger(logger),
		registry.WithRequestStore(requests),
		registry.WithAuthenticatorOptions(cfg.authenticatorOptions),
		registry.WithWarmUp(),
	)
	if err != nil {
		return err
	}
	defer reg.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(reg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "clients", reg.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newRequestStore returns a redis backed store when redis is configured.
func newRequestStore(ctx context.Context, cfg *serverConfig) (store.RequestStore, func(), error) {
	if cfg.Redis.Addr == "" {
		return store.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w: %w", cfg.Redis.Addr, oidc.ErrNetwork, err)
	}
	var opts []oidc.Option
	if cfg.Redis.KeyPrefix != "" {
		opts = append(opts, store.WithKeyPrefix(cfg.Redis.KeyPrefix))
	}
	s, err := store.NewRedisStore(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return s, func() { _ = client.Close() }, nil
}
