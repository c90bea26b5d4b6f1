// Package main is the entry point for the i64plot command.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/i64-plotter/pkg/api"
	grpcapi "github.com/lemonberrylabs/i64-plotter/pkg/api/grpc"
	"github.com/lemonberrylabs/i64-plotter/pkg/store"
	"github.com/lemonberrylabs/i64-plotter/web"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "i64plot",
		Short:         "Parametric plotter over 64-bit integer expressions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Version = version + " (commit=" + commit + ", built=" + date + ")"
	root.SetVersionTemplate("i64plot version {{.Version}}\n")

	root.AddCommand(newServeCmd(), newEvalCmd(), newCheckCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API, gRPC API and web UI",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("config", "", "YAML config file")
	cmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	cmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env GRPC_PORT)")
	cmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	cmd.Flags().String("plots-dir", "", "Directory of plot YAML/JSON files to load (env PLOTS_DIR)")
	cmd.Flags().Int("workers", 0, "Workers per sweep (default number of CPUs, env WORKERS)")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn or error (default info, env LOG_LEVEL)")
	return cmd
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Str("service", "i64plot").Logger().
		Level(lvl)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)
	logger.Info().Str("version", version).Str("commit", commit).Int("workers", cfg.Workers).Msg("starting")

	s := store.New()
	server := api.New(s, api.WithLogger(logger), api.WithWorkers(cfg.Workers))

	if cfg.PlotsDir != "" {
		if _, err := server.LoadDir(cfg.PlotsDir); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.PlotsDir).Msg("failed to load plots directory")
		}
	}

	// Register the web UI (non-fatal if template parsing fails)
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn().Interface("panic", r).Msg("web UI disabled due to template error")
			}
		}()
		ui := web.New(s, web.WithLogger(logger), web.WithWorkers(cfg.Workers))
		ui.Register(server.App())
	}()

	grpcServer := grpcapi.New(s, grpcapi.WithLogger(logger), grpcapi.WithWorkers(cfg.Workers))
	go func() {
		logger.Info().Str("addr", cfg.grpcAddr()).Msg("gRPC server listening")
		if err := grpcServer.Serve(cfg.grpcAddr()); err != nil {
			logger.Fatal().Err(err).Msg("gRPC server error")
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info().Msg("shutting down")
		grpcServer.GracefulStop()
		if err := server.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("error during shutdown")
		}
	}()

	logger.Info().Str("addr", cfg.addr()).Msg("HTTP server listening")
	return server.Listen(cfg.addr())
}
