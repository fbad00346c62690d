// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	var configPath string
	v := viper.New()
	root := &cobra.Command{
		Use:           "oidc-rp",
		Short:         "A demo OpenID Connect relying party",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is ./oidc-rp.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	_ = v.BindPFlag(logLevelKey, root.PersistentFlags().Lookup("log-level"))

	load := func() (*serverConfig, error) { return loadConfig(v, configPath) }
	root.AddCommand(newServeCmd(v, load), newValidateCmd(load))
	return root
}

func newLogger(cfg *serverConfig, out io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "oidc-rp",
		Level:      hclog.LevelFromString(cfg.Log.Level),
		JSONFormat: cfg.Log.JSON,
		Output:     out,
	})
}
