package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSeedCommand(env Env) *cobra.Command {
	var companyID int64

	cmd := &cobra.Command{
		Use:   "seed-accounts",
		Short: "Install the default chart of accounts for a company",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if companyID <= 0 {
				return fmt.Errorf("--company must be positive")
			}
			return withBackend(cmd, env, func(b *Backend) error {
				seeded, err := b.Seeder.SeedDefaults(cmd.Context(), companyID)
				if err != nil {
					return fmt.Errorf("seeding accounts: %w", err)
				}
				out := cmd.OutOrStdout()
				for _, a := range seeded {
					fmt.Fprintf(out, "%s\t%s\n", a.Code, a.Name)
				}
				fmt.Fprintf(out, "%d accounts ready for company %d\n", len(seeded), companyID)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&companyID, "company", 0, "company id (required)")
	_ = cmd.MarkFlagRequired("company")

	return cmd
}
