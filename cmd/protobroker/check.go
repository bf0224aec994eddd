package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/protobroker/internal/runtime"
	errspkg "github.com/drblury/protobroker/internal/runtime/errors"
)

func checkCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that the JDK and the Kafka scripts are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			err = runtime.CheckDependencies(cfg.BinDir, runtime.DefaultDependencies)
			out := cmd.OutOrStdout()
			for _, dep := range runtime.DefaultDependencies {
				status := "ok"
				if missing(err, dep.Name) {
					status = "missing: " + dep.Hint
				}
				fmt.Fprintf(out, "%-18s %s\n", dep.Name, status)
			}
			return err
		},
	}
}

func missing(err error, name string) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return false
	}
	for _, e := range joined.Unwrap() {
		var dep *errspkg.DependencyMissingError
		if errors.As(e, &dep) && dep.Name == name {
			return true
		}
	}
	return false
}
