package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/config"
)

func newReindexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every card into the Meilisearch index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			logger := newLogger(cfg)
			if cfg.MeiliURL == "" {
				return errors.New("MEILI_URL is not set")
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			searchService, closeSearch := newSearch(cfg, db, logger)
			defer closeSearch()

			n, err := searchService.Reindex(cmd.Context())
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			logger.Info("reindex complete", "cards", n)
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d cards\n", n)
			return nil
		},
	}
}
