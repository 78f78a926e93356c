package cli

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk/internal/app"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/worker"
)

// SLACmd groups SLA maintenance commands.
func SLACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sla",
		Short: "SLA breach detection",
	}
	cmd.AddCommand(slaSweepCmd())
	cmd.AddCommand(slaWorkerCmd())
	return cmd
}

func slaSweepCmd() *cobra.Command {
	var opts service.SweepOptions
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one breach sweep and print the counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				result, err := c.Sweeper.Run(cmd.Context(), opts)
				if err != nil {
					return fmt.Errorf("sweep failed: %w", err)
				}
				renderSweepResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "count breaches without writing or notifying")
	cmd.Flags().BoolVar(&opts.Notify, "notify", false, "send at-risk warnings")
	return cmd
}

func slaWorkerCmd() *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Sweep on the configured interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withContainer(ctx, func(c *app.Container) error {
				if !cmd.Flags().Changed("notify") {
					notify = c.Config.SLA.WorkerNotify
				}
				w := worker.NewSLASweepWorker(c.Sweeper, c.Config.SLA.SweepInterval(), notify, c.Logger.Named("sla_worker"))
				w.Start(ctx)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", true, "send at-risk warnings (defaults to SLA_WORKER_NOTIFY)")
	return cmd
}

func renderSweepResult(w io.Writer, result service.SweepResult) {
	header := color.New(color.Bold).Sprint("SLA sweep")
	if result.DryRun {
		header += color.New(color.FgYellow).Sprint(" (dry run)")
	}
	fmt.Fprintln(w, header)
	fmt.Fprintf(w, "  response breaches:     %s\n", countColor(result.ResponseBreaches, color.FgRed))
	fmt.Fprintf(w, "  resolution breaches:   %s\n", countColor(result.ResolutionBreaches, color.FgRed))
	fmt.Fprintf(w, "  response warnings:     %s\n", countColor(result.ResponseWarnings, color.FgYellow))
	fmt.Fprintf(w, "  resolution warnings:   %s\n", countColor(result.ResolutionWarnings, color.FgYellow))
	fmt.Fprintf(w, "  notification failures: %s\n", countColor(result.NotificationFailures, color.FgRed))
}

func countColor(n int, attr color.Attribute) string {
	if n == 0 {
		return color.New(color.FgGreen).Sprint(n)
	}
	return color.New(attr).Sprint(n)
}
