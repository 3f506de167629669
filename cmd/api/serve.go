package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/app"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/blob"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/config"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/email"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/oauth"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/realtime"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/session"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
)

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and realtime server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides API_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	searchService, closeSearch := newSearch(cfg, db, logger)
	defer closeSearch()

	deps := app.Deps{
		Store:  store.NewPostgresStore(db),
		Search: searchService,
		Logger: logger,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
	} else {
		logger.Info("using postgres for sessions")
	}

	blobs, err := newBlobStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	deps.Blobs = blobs

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		deps.Mailer = mailer
	} else {
		logger.Info("smtp not configured; member invitations will not be mailed")
	}

	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		deps.Google = oauth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}

	service := app.New(cfg, deps)
	hub := realtime.NewHub(service, cfg.CORSOrigin, logger)
	handler := app.NewHTTPServer(service, cfg.CORSOrigin).WithRealtime(hub).Handler()

	// No WriteTimeout: it would also cut long-lived websocket connections.
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}

// newBlobStorage uses MinIO when an endpoint is configured and the local
// upload directory otherwise.
func newBlobStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (blob.Storage, error) {
	if strings.TrimSpace(cfg.MinIOEndpoint) == "" {
		disk, err := blob.NewDisk(cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		logger.Info("storing attachments on disk", "dir", cfg.UploadDir)
		return disk, nil
	}
	minio, err := blob.NewMinIO(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	if err := minio.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("minio bucket: %w", err)
	}
	logger.Info("storing attachments in minio", "endpoint", cfg.MinIOEndpoint, "bucket", cfg.MinIOBucket)
	return minio, nil
}
