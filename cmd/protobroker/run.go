package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/drblury/protobroker/internal/runtime"
	"github.com/drblury/protobroker/internal/runtime/config"
	"github.com/drblury/protobroker/internal/runtime/logging"
)

func runCmd(opts *options) *cobra.Command {
	var metricsPort int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start ZooKeeper and Kafka in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-port") {
				cfg.MetricsPort = metricsPort
				cfg.MetricsEnabled = metricsPort > 0
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, cfg)
		},
	}
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port (0 disables)")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	log := newLogger()
	deps := runtime.BrokerDependencies{Hooks: runtime.LoggingHooks(log)}

	if cfg.MetricsEnabled && cfg.MetricsPort > 0 {
		reg := prometheus.NewRegistry()
		deps.Metrics = runtime.NewMetrics(reg)
		if err := deps.Metrics.Register(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		srv := serveMetrics(reg, cfg.MetricsPort, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	b, err := runtime.NewBroker(&cfg, log, deps)
	if err != nil {
		return err
	}

	addr, err := b.Start(ctx)
	if err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), b.Config().StopTimeout)
		defer cancel()
		return errors.Join(err, b.Stop(stopCtx))
	}
	fmt.Fprintln(cmd.OutOrStdout(), addr)

	<-ctx.Done()
	log.Info("Shutting down", nil)

	stopCtx, cancel := context.WithTimeout(context.Background(), b.Config().StopTimeout)
	defer cancel()
	return b.Stop(stopCtx)
}

func serveMetrics(reg *prometheus.Registry, port int, log logging.ServiceLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", err, logging.LogFields{"port": port})
		}
	}()
	return srv
}
