// Package main is the entry point for the tripsync server.
//
// The main package stays small: it reads configuration, builds a logger
// and hands both to internal/server. Everything else lives in internal/.
//
// COMMANDS:
//
//	tripsync            same as "tripsync serve"
//	tripsync serve      run the HTTP server
//	tripsync migrate    create or upgrade the database schema and exit
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/tripsync/internal/config"
	sqliteRepo "github.com/sakif/tripsync/internal/repository/sqlite"
	"github.com/sakif/tripsync/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "tripsync",
		Short:         "Shared trip photo folders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(envFile)
			if err != nil {
				return err
			}
			srv, err := server.New(cmd.Context(), cfg, logger, server.Deps{})
			if err != nil {
				logger.Error("failed to create server", slog.String("error", err.Error()))
				return err
			}
			// Start blocks until SIGINT/SIGTERM.
			if err := srv.Start(); err != nil {
				logger.Error("server error", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, logger, err := setup(envFile)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return fmt.Errorf("creating database directory: %w", err)
			}
			// Opening the database runs the migrations.
			db, err := sqliteRepo.New(cfg.DBPath)
			if err != nil {
				logger.Error("migration failed", slog.String("error", err.Error()))
				return err
			}
			logger.Info("database is up to date", slog.String("path", cfg.DBPath))
			return db.Close()
		},
	}

	root.AddCommand(serve, migrate)
	root.RunE = serve.RunE
	root.SetContext(context.Background())
	return root
}

// setup loads the configuration and builds the process logger from it.
// Configuration errors are printed before any logger exists.
func setup(envFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return cfg, logger, nil
}
