package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/protobroker/internal/runtime"
	"github.com/drblury/protobroker/internal/runtime/topics"
)

func topicsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Inspect topics on a running broker",
	}
	cmd.AddCommand(topicsListCmd(opts))
	return cmd
}

func topicsListCmd(opts *options) *cobra.Command {
	var (
		bootstrap string
		admin     bool
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user topics and report configured topics that are missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			var lister topics.Lister = topics.CLILister{
				Command:   runtime.ResolveExecutable(cfg.BinDir, runtime.TopicsExecutable),
				Bootstrap: bootstrap,
			}
			if admin {
				lister = topics.AdminLister{Addrs: strings.Split(bootstrap, ",")}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			names, err := lister.ListTopics(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			if absent := topics.Missing(cfg.Topics, names); len(absent) > 0 {
				return fmt.Errorf("missing topics: %s", strings.Join(absent, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bootstrap, "bootstrap", "127.0.0.1:9092", "Bootstrap server address")
	cmd.Flags().BoolVar(&admin, "admin", false, "Query the broker with the Kafka admin API instead of kafka-topics.sh")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for the listing")
	return cmd
}
