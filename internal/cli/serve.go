package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskmanagement-api/internal/auth"
	"taskmanagement-api/internal/config"
	"taskmanagement-api/internal/server"
	"taskmanagement-api/internal/store"
	"taskmanagement-api/internal/telemetry"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  `Apply pending migrations, then serve the HTTP API until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg, newLogger(cmd.ErrOrStderr()))
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Printf("WARN: tracing shutdown: %v", err)
		}
	}()

	handler, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          logger,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Server starting on %s", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Println("Shutting down server.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// buildHandler opens every backing service and assembles the HTTP handler.
// cleanup releases them in reverse order.
func buildHandler(ctx context.Context, cfg config.Config, logger *log.Logger) (http.Handler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (http.Handler, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fail(fmt.Errorf("open database: %w", err))
	}
	closers = append(closers, func() { db.Close() })
	logger.Printf("Database connection successful (%s).", cfg.Database.Driver)

	if err := db.Migrate(ctx); err != nil {
		return fail(fmt.Errorf("migrate database: %w", err))
	}

	var tasks server.TaskStore = db
	if cfg.Redis.Addr != "" {
		rdb, err := store.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		closers = append(closers, func() { rdb.Close() })
		logger.Println("Redis connection successful.")
		tasks = store.NewCachedTasks(db, store.NewRedisTaskCache(rdb, cfg.Redis.CacheTTL), logger)
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		SigningKey: []byte(cfg.Auth.SigningKey),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		TTL:        cfg.Auth.TokenTTL,
	})
	if err != nil {
		return fail(fmt.Errorf("configure tokens: %w", err))
	}
	creds, err := auth.NewCredentialStore(db, auth.PasswordPolicy{MinLength: cfg.Auth.PasswordMinLength}, 0)
	if err != nil {
		return fail(fmt.Errorf("configure credentials: %w", err))
	}

	srv := server.New(server.Options{
		Auth:           auth.NewService(creds, tokens),
		Tokens:         tokens,
		Tasks:          tasks,
		Logger:         logger,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	return srv.Handler(), cleanup, nil
}
