package commands

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/sitebooks/internal/accounting/accounts"
	"github.com/odyssey-erp/sitebooks/internal/importer"
)

// Seeder installs the default chart of accounts.
type Seeder interface {
	SeedDefaults(ctx context.Context, companyID int64) ([]accounts.Account, error)
}

// Importer previews and commits voucher imports.
type Importer interface {
	ParseAndValidateVouchers(ctx context.Context, companyID int64, rows []importer.Row, strategy importer.KeyStrategy) (importer.ValidationResult, error)
	Commit(ctx context.Context, input importer.CommitInput) (importer.CommitResult, error)
}

// Enqueuer submits maintenance tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, companyID int64) (*asynq.TaskInfo, error)
}

// Pruner removes stale idempotency keys.
type Pruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Backend is what the data commands operate on.
type Backend struct {
	Seeder      Seeder
	Importer    Importer
	Jobs        Enqueuer
	Idempotency Pruner
}

// Env supplies the commands with their dependencies. Resources are opened
// per invocation so commands that need nothing start no connections.
type Env struct {
	Open             func(ctx context.Context) (*Backend, func(), error)
	Migrate          func() error
	MigrationVersion func() (uint, bool, error)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(env Env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sitebooksctl",
		Short: "Operate the sitebooks ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newMigrateCommand(env),
		newSeedCommand(env),
		newImportCommand(env),
		newJobsCommand(env),
		newIdempotencyCommand(env),
	)

	return rootCmd
}

func withBackend(cmd *cobra.Command, env Env, fn func(*Backend) error) error {
	backend, closeFn, err := env.Open(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(backend)
}
