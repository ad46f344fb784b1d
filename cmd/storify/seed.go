package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/storify-asia/storify/internal/app"
	"github.com/storify-asia/storify/internal/db"
	"github.com/storify-asia/storify/pkg/pg"
	"github.com/storify-asia/storify/svc/catalog"
	"github.com/storify-asia/storify/svc/subscription"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load subscription plans and starter books, then rebuild the search index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := ctx.load()
			if err != nil {
				return err
			}
			pool, err := pg.Connect(cmd.Context(), cfg.PG)
			if err != nil {
				return err
			}
			defer pool.Close()

			data, err := db.LoadSeed()
			if err != nil {
				return err
			}
			res, err := db.Seed(cmd.Context(), data, subscription.NewPgStore(pool), catalog.NewPgStore(pool), log)
			if err != nil {
				return err
			}

			books, err := app.NewCatalog(cmd.Context(), cfg, pool, log)
			if err != nil {
				return err
			}
			indexed, err := books.Reindex(cmd.Context())
			if err != nil {
				return fmt.Errorf("reindex catalog: %w", err)
			}

			log.InfoContext(cmd.Context(), "seed complete",
				slog.Int("plans", res.Plans),
				slog.Int("books", res.Books),
				slog.Int("indexed", indexed),
			)
			return nil
		},
	}
}
