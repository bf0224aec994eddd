package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/drblury/protobroker/internal/runtime/config"
	"github.com/drblury/protobroker/internal/runtime/logging"
)

// options are shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
	binDir     string
	topics     []string
}

func main() {
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "protobroker",
		Short:         "Run a disposable local Kafka broker",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Configure(opts.logLevel)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", logging.LevelInfo, "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.binDir, "bin-dir", "", "Kafka bin directory (default: PATH)")
	root.PersistentFlags().StringSliceVarP(&opts.topics, "topic", "t", nil, "Topic to create (repeatable)")

	root.AddCommand(runCmd(opts))
	root.AddCommand(checkCmd(opts))
	root.AddCommand(topicsCmd(opts))
	root.AddCommand(configCmd(opts))
	return root
}

// loadConfig reads the config file, if any, and applies flag overrides.
func (o *options) loadConfig() (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if o.binDir != "" {
		cfg.BinDir = o.binDir
	}
	cfg.Topics = append(cfg.Topics, o.topics...)
	if err := config.ValidateConfig(&cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger() logging.ServiceLogger {
	return logging.NewSlogServiceLogger(slog.Default())
}
