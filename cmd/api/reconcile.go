package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const reconcileBatch = 100

func reconcileCmd() *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-verify transactions stuck in initializing or pending",
		Long: `Re-verify transactions stuck in initializing or pending with their
processor and apply the result. Initializing rows the processor has no
record of are marked abandoned.

Examples:
  api reconcile
  api reconcile --older-than 1h --limit 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				report, err := a.service.ReconcileStale(ctx, olderThan, limit)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 15*time.Minute, "only rows created before now minus this")
	cmd.Flags().IntVarP(&limit, "limit", "n", reconcileBatch, "maximum rows to process")
	return cmd
}
