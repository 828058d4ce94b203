package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roomwire/internal/app"
	"github.com/vovakirdan/roomwire/internal/auth"
	"github.com/vovakirdan/roomwire/internal/config"
	"github.com/vovakirdan/roomwire/internal/log"
	"github.com/vovakirdan/roomwire/internal/store"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "roomwire",
		Short:         "Real-time chat room server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	serve := newServeCmd(opts)
	root.AddCommand(serve, newMigrateCmd(opts), newTokenCmd(opts))
	// Bare `roomwire` serves.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

// load resolves configuration and a logger for a command.
func (o *rootOptions) load(overrides config.Config) (config.Config, *zerolog.Logger, error) {
	bootLog := log.New("info", "console")

	cfg, path, err := config.Load(bootLog, o.configPath)
	if err != nil {
		bootLog.Error().Err(err).Str("path", path).Msg("failed to load config")
		return cfg, bootLog, err
	}
	overrides.LogLevel = o.logLevel
	cfg.UpdateFrom(overrides)

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(overrides)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("failed to start")
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting roomwire server")
			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	cmd.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(config.Config{})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			st, err := app.OpenStore(ctx, &cfg)
			if err != nil {
				logger.Error().Err(err).Msg("migration failed")
				return err
			}
			defer st.Close()

			logger.Info().Str("driver", cfg.DatabaseDriver).Msg("migrations applied")
			return nil
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		userID   int64
		username string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT for an existing account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID <= 0 || username == "" {
				return errors.New("--user-id and --username are required")
			}
			cfg, _, err := opts.load(config.Config{})
			if err != nil {
				return err
			}

			token, err := auth.GenerateToken(app.JWTConfig(&cfg), auth.Principal{
				ID:       userID,
				Username: username,
				Role:     store.RoleUser,
			})
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "account id to embed")
	cmd.Flags().StringVar(&username, "username", "", "account username to embed")
	return cmd
}
