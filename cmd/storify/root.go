package main

import (
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/storify-asia/storify/internal/app"
	"github.com/storify-asia/storify/pkg/clientip"
	"github.com/storify-asia/storify/pkg/config"
	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/requestid"
	"github.com/storify-asia/storify/pkg/session"
)

// commandContext loads configuration and the logger once per process.
type commandContext struct {
	once sync.Once
	cfg  app.Config
	log  *slog.Logger
	err  error
}

func (c *commandContext) load() (app.Config, *slog.Logger, error) {
	c.once.Do(func() {
		if c.err = config.Load(&c.cfg); c.err != nil {
			return
		}
		c.log = logger.New(
			logger.WithEnvironment(c.cfg.Env, c.cfg.Name),
			logger.WithContextExtractors(requestid.LoggerExtractor(), session.LoggerExtractor(), clientip.LoggerExtractor()),
		)
	})
	return c.cfg, c.log, c.err
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "storify",
		Short:         "Storify audiobook API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(newServeCommand(ctx))
	root.AddCommand(newMigrateCommand(ctx))
	root.AddCommand(newSeedCommand(ctx))
	return root
}
