// Command mallgate serves the shop database to MCP clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/koustreak/mallgate/internal/config"
	"github.com/koustreak/mallgate/internal/database/postgres"
	"github.com/koustreak/mallgate/internal/logger"
	"github.com/koustreak/mallgate/internal/lookup"
	"github.com/koustreak/mallgate/internal/metrics"
	"github.com/koustreak/mallgate/internal/schema"
	"github.com/koustreak/mallgate/internal/server"
	"github.com/koustreak/mallgate/internal/tool"
)

// Set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "mallgate: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mallgate",
		Short: "MCP gateway to the shop PostgreSQL database",
		Long: `mallgate exposes a PostgreSQL schema to MCP clients through six tools:
execute_query, get_table_structure, list_tables, get_order, get_order_detail
and get_member.

Configuration comes from an optional YAML file, a .env file and the
environment (DB_HOST, DB_PORT, DB_NAME, DB_USER, DB_PASSWORD, DB_SCHEMA, ...).`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			log := logger.New(&logger.Config{
				Level:      cfg.Logging.Level,
				Format:     cfg.Logging.Format,
				TimeFormat: "rfc3339",
				Output:     os.Stderr,
			})
			logger.SetGlobal(log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(log.WithContext(ctx), cfg, log)
		},
	}

	cmd.Flags().String("config", "", "path to a YAML config file")
	cmd.Flags().String("transport", "", "protocol transport: stdio or http")
	cmd.Flags().String("listen", "", "listen address for the http transport")
	cmd.Flags().String("admin-listen", "", "listen address for probes and metrics in stdio mode")
	cmd.Flags().String("log-level", "", "log level: debug, info, warn, error")

	return cmd
}

// loadConfig reads the config sources and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	fs := cmd.Flags()
	path, _ := fs.GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	for name, dst := range map[string]*string{
		"transport":    &cfg.Server.Transport,
		"listen":       &cfg.Server.ListenAddr,
		"admin-listen": &cfg.Metrics.ListenAddr,
		"log-level":    &cfg.Logging.Level,
	} {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run builds the component graph and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	gw, err := postgres.New(ctx, cfg.PoolConfig(), log)
	if err != nil {
		return fmt.Errorf("failed to start connection gateway: %w", err)
	}

	metrics.BuildInfo.WithLabelValues(version, commit).Set(1)
	if err := prometheus.Register(metrics.NewPoolCollector(gw.Stats)); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			gw.Shutdown()
			return fmt.Errorf("failed to register pool metrics: %w", err)
		}
	}

	dispatcher := tool.NewDispatcher(gw, schema.NewIntrospector(gw), lookup.New(gw), log)

	srv, err := server.New(server.Config{
		Transport:       cfg.Server.Transport,
		ListenAddr:      cfg.Server.ListenAddr,
		AdminAddr:       cfg.Metrics.ListenAddr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Version:         version,
	}, dispatcher, gw, log)
	if err != nil {
		gw.Shutdown()
		return err
	}

	log.InfoWith("mallgate started", logger.Fields{
		"version":   version,
		"transport": cfg.Server.Transport,
		"schema":    gw.Schema(),
	})
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("mallgate stopped")
	return nil
}
