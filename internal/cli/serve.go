package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/malbeclabs/nlquery/config"
	"github.com/malbeclabs/nlquery/pkg/metrics"
	"github.com/malbeclabs/nlquery/pkg/server"
	"github.com/spf13/cobra"
)

type ServeCmd struct {
	build BuildInfo
}

func NewServeCmd(build BuildInfo) *ServeCmd {
	return &ServeCmd{build: build}
}

func (c *ServeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the question API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, provider, err := rootFlags(cmd)
			if err != nil {
				return err
			}
			listenAddr, err := cmd.Flags().GetString("listen-addr")
			if err != nil {
				return fmt.Errorf("failed to get listen-addr flag: %w", err)
			}
			metricsAddr, err := cmd.Flags().GetString("metrics-addr")
			if err != nil {
				return fmt.Errorf("failed to get metrics-addr flag: %w", err)
			}
			allowedOrigins, err := cmd.Flags().GetStringSlice("allowed-origins")
			if err != nil {
				return fmt.Errorf("failed to get allowed-origins flag: %w", err)
			}
			maxRows, err := cmd.Flags().GetInt("max-rows")
			if err != nil {
				return fmt.Errorf("failed to get max-rows flag: %w", err)
			}

			log := newLogger(verbose)
			metrics.BuildInfo.WithLabelValues(c.build.Version, c.build.Commit, c.build.Date).Set(1)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			eng, err := newEngine(log, provider)
			if err != nil {
				return err
			}
			defer eng.Close()

			srv, err := server.New(server.Config{
				Logger:         log,
				Pipeline:       eng.pipeline,
				Indexer:        eng.indexer,
				Metadata:       eng.metadata,
				ListenAddr:     listenAddr,
				MetricsAddr:    metricsAddr,
				AllowedOrigins: allowedOrigins,
				MaxRows:        maxRows,
			})
			if err != nil {
				return err
			}

			log.Info("Starting nlquery server", "version", c.build.Version, "commit", c.build.Commit, "listenAddr", listenAddr, "metricsAddr", metricsAddr)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().String("listen-addr", config.DefaultListenAddr, "address the API listens on")
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "address /metrics listens on (empty to disable)")
	cmd.Flags().StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins")
	cmd.Flags().Int("max-rows", 0, "maximum rows returned by /v1/query (default 1000)")

	return cmd
}
