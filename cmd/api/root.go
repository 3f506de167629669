package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	migrations "github.com/Xxsnakesz/glide-team-board-26655/db/migrations"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/config"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/search"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "glide-api",
		Short:         "Glide team board API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newReindexCommand())
	return cmd
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return logger
}

// openDatabase connects and brings the schema up to date, reading
// migrations from MIGRATIONS_DIR when set and the embedded copy otherwise.
func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	var fsys fs.FS = migrations.FS
	if strings.TrimSpace(cfg.MigrationsDir) != "" {
		fsys = os.DirFS(cfg.MigrationsDir)
	}
	if err := store.ApplyMigrations(ctx, db, fsys); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}

// newSearch pairs Meilisearch, when configured, with the Postgres full-text
// fallback.
func newSearch(cfg config.Config, db *sql.DB, logger *slog.Logger) (*search.Service, func()) {
	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	closer := func() {}
	if meili != nil {
		closer = meili.Close
	}
	return search.NewService(meili, search.NewPgFTS(db), logger), closer
}
