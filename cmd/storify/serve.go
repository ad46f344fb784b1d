package main

import (
	"github.com/spf13/cobra"

	"github.com/storify-asia/storify/internal/app"
	"github.com/storify-asia/storify/internal/db"
	"github.com/storify-asia/storify/pkg/pg"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the payment expiry scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := ctx.load()
			if err != nil {
				return err
			}

			if migrate {
				pool, err := pg.Connect(cmd.Context(), cfg.PG)
				if err != nil {
					return err
				}
				err = db.Migrate(cmd.Context(), pool, cfg.PG, log)
				pool.Close()
				if err != nil {
					return err
				}
			}

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving")
	return cmd
}
