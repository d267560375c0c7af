package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/huddle/internal/auth"
	"github.com/Tyrowin/huddle/internal/chat"
	"github.com/Tyrowin/huddle/internal/config"
	"github.com/Tyrowin/huddle/internal/server"
	"github.com/Tyrowin/huddle/internal/store"
	"github.com/Tyrowin/huddle/internal/user"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	EnvFile  string
	Port     string
	Database string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "huddle",
		Short:         "huddle realtime group chat server",
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.Port, "port", "", "listen address, overrides SERVER_PORT")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database path, overrides DATABASE_PATH")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

func (o *rootOptions) config() config.Config {
	cfg := config.Load(o.EnvFile)
	if o.Port != "" {
		cfg.Port = o.Port
	}
	if o.Database != "" {
		cfg.DatabasePath = o.Database
	}
	return cfg.Sanitize()
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Str("service", "huddle").Logger()
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create or update the database schema and the General room",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.config()
			logger := newLogger(cfg)

			db, err := store.Open(cfg.DatabasePath, store.Options{})
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.PersistTimeout)
			defer cancel()
			room, err := chat.NewService(db, logger).EnsureGeneralRoom(ctx)
			if err != nil {
				return err
			}
			logger.Info().Str("database", cfg.DatabasePath).Uint("general_room_id", room.ID).Msg("database migrated")
			return nil
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP and websocket server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts.config())
		},
	}
}

// exitError carries a non-zero process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitCode maps the error returned by a command to the process exit code.
func exitCode(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	default:
		return 1
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)
	if cfg.JWTSecret == config.DefaultJWTSecret && !cfg.IsDevelopment() {
		return errors.New("JWT_SECRET must be set outside development")
	}

	db, err := store.Open(cfg.DatabasePath, store.Options{})
	if err != nil {
		return err
	}

	chatSvc := chat.NewService(db, logger)
	bootCtx, cancel := context.WithTimeout(ctx, cfg.PersistTimeout)
	general, err := chatSvc.EnsureGeneralRoom(bootCtx)
	cancel()
	if err != nil {
		_ = db.Close()
		return err
	}
	logger.Info().Uint("room_id", general.ID).Msg("general room ready")

	jwtManager := auth.NewJWTManager(auth.JWTConfig{
		SecretKey: cfg.JWTSecret,
		TTL:       cfg.TokenTTL,
		Issuer:    "huddle",
	})
	authSvc := auth.NewService(db, auth.NewPasswordHasher(auth.DefaultBcryptCost), jwtManager, logger)
	userSvc := user.NewService(db)

	gateway := server.NewGateway(cfg, authSvc, chatSvc, logger)
	api := server.NewAPI(authSvc, userSvc, logger)
	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(gateway, api, authSvc, logger))

	go func() {
		if err := server.StartServer(httpServer, logger); err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer, logger)
			},
			"hub": func(ctx context.Context) error {
				timeout := cfg.ShutdownTimeout
				if deadline, ok := ctx.Deadline(); ok {
					timeout = time.Until(deadline)
				}
				return gateway.Shutdown(timeout)
			},
		},
	)

	code := <-wait
	if err := db.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close database")
		code = 1
	}
	logger.Info().Int("exit_code", code).Msg("server exited")
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}
