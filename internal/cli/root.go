// Package cli implements helpdeskctl, the operator command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/app"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// RootCmd assembles the command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "helpdeskctl",
		Short:         "Operate the helpdesk SLA engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(SLACmd())
	root.AddCommand(MigrateCmd())
	root.AddCommand(TokenCmd())
	return root
}

// loadRuntime reads config and builds a logger for commands that need them.
func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// withContainer runs fn against a fully wired container and closes it after.
func withContainer(ctx context.Context, fn func(*app.Container) error) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	container, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer container.Close()
	return fn(container)
}
