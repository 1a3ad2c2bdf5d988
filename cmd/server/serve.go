package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"diary/internal/api"
	"diary/internal/auth"
	"diary/internal/blob"
	"diary/internal/config"
	"diary/internal/diary"
	"diary/internal/logging"
	"diary/internal/mcp"
	"diary/internal/store/sqlstore"

	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Addr = addr
	}

	logger := logging.New(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize store
	store, err := sqlstore.New(cfg.DBDriver, cfg.DBConn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	blobs, err := blob.NewFromConfig(ctx, blob.Config{
		Backend:   cfg.BlobBackend,
		Root:      cfg.UploadDir,
		S3Bucket:  cfg.S3Bucket,
		S3Prefix:  cfg.S3Prefix,
		S3Region:  cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize upload storage: %w", err)
	}

	sessions, closeSessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	svc := diary.New(store, blobs, logger)

	opts := api.Options{
		Service:      svc,
		Sessions:     auth.NewManager(sessions, cfg.SessionSecret, cfg.SessionTTL, cfg.CookieSecure),
		Logger:       logger,
		MaxBodyBytes: cfg.MaxUploadBytes(),
	}
	if cfg.MCPEnabled {
		opts.MCP = mcp.NewMCPServer(svc).Handler()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started",
			"addr", cfg.Addr,
			"env", cfg.Env,
			"db", cfg.DBDriver,
			"blobs", cfg.BlobBackend,
			"sessions", cfg.SessionBackend,
			"mcp", cfg.MCPEnabled,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newSessionStore(ctx context.Context, cfg *config.Config) (auth.SessionStore, func(), error) {
	if cfg.SessionBackend != "redis" {
		return auth.NewMemoryStore(), func() {}, nil
	}
	client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return auth.NewRedisStore(client), func() { client.Close() }, nil
}
