// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
)

// newValidateCmd checks every client's configuration without contacting
// any provider.
func newValidateCmd(load func() (*serverConfig, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.Clients))
			for n := range cfg.Clients {
				names = append(names, n)
			}
			sort.Strings(names)

			var result *multierror.Error
			for _, n := range names {
				if _, err := cfg.Clients[n].ToConfig(); err != nil {
					result = multierror.Append(result, fmt.Errorf("client %q: %w", n, err))
				}
			}
			if err := result.ErrorOrNil(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %d client(s)\n", len(names))
			return nil
		},
	}
}
