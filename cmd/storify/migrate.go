package main

import (
	"github.com/spf13/cobra"

	"github.com/storify-asia/storify/internal/db"
	"github.com/storify-asia/storify/pkg/pg"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
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

			if err := db.Migrate(cmd.Context(), pool, cfg.PG, log); err != nil {
				return err
			}
			log.InfoContext(cmd.Context(), "migrations applied")
			return nil
		},
	}
}
