package main

import (
	"github.com/spf13/cobra"

	"github.com/drblury/protobroker/internal/runtime/jsoncodec"
)

func configCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with defaults applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return jsoncodec.EncodeIndent(cmd.OutOrStdout(), cfg.WithDefaults())
		},
	}
}
