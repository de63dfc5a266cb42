package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/sitebooks/jobs"
)

func newJobsCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Maintenance jobs",
	}

	var companyID int64
	trigger := &cobra.Command{
		Use:       "trigger <task>",
		Short:     "Enqueue stock:rebuild or ledger:integrity",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{jobs.TaskStockRebuild, jobs.TaskLedgerIntegrity},
		RunE: func(cmd *cobra.Command, args []string) error {
			if companyID < 0 {
				return fmt.Errorf("--company must not be negative")
			}
			return withBackend(cmd, env, func(b *Backend) error {
				info, err := b.Jobs.Enqueue(cmd.Context(), args[0], companyID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", args[0], info.ID, info.Queue)
				return nil
			})
		},
	}
	trigger.Flags().Int64Var(&companyID, "company", 0, "limit the job to one company, 0 for all")

	cmd.AddCommand(trigger)
	return cmd
}

func newIdempotencyCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idempotency",
		Short: "Replay protection keys",
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete keys older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return withBackend(cmd, env, func(b *Backend) error {
				removed, err := b.Idempotency.Cleanup(cmd.Context(), olderThan)
				if err != nil {
					return fmt.Errorf("pruning keys: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d keys older than %s\n", removed, olderThan)
				return nil
			})
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "retention window")

	cmd.AddCommand(prune)
	return cmd
}
