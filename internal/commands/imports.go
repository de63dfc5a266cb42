package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/sitebooks/internal/importer"
)

type importFlags struct {
	companyID int64
	file      string
	strategy  string
	asJSON    bool
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.companyID, "company", 0, "company id (required)")
	cmd.Flags().StringVar(&f.file, "file", "", "CSV file, - for stdin (required)")
	cmd.Flags().StringVar(&f.strategy, "strategy", string(importer.KeyAuto), "grouping: auto, voucher_key, date_reference or per_row")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("file")
}

func (f *importFlags) rows(cmd *cobra.Command) ([]importer.Row, error) {
	if f.companyID <= 0 {
		return nil, fmt.Errorf("--company must be positive")
	}
	var r io.Reader = cmd.InOrStdin()
	if f.file != "-" {
		file, err := os.Open(f.file)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.file, err)
		}
		defer file.Close()
		r = file
	}
	rows, err := importer.ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.file, err)
	}
	return rows, nil
}

func newImportCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk voucher import",
	}
	cmd.AddCommand(newImportPreviewCommand(env), newImportCommitCommand(env))
	return cmd
}

func newImportPreviewCommand(env Env) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Validate an import file without writing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := flags.rows(cmd)
			if err != nil {
				return err
			}
			return withBackend(cmd, env, func(b *Backend) error {
				result, err := b.Importer.ParseAndValidateVouchers(cmd.Context(), flags.companyID, rows, importer.KeyStrategy(flags.strategy))
				if err != nil {
					return err
				}
				if flags.asJSON {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				printValidation(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newImportCommitCommand(env Env) *cobra.Command {
	var (
		flags      importFlags
		batch      string
		autoCreate bool
		actorID    int64
	)

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Validate and commit an import file in one transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var batchID uuid.UUID
			if batch != "" {
				parsed, err := uuid.Parse(batch)
				if err != nil {
					return fmt.Errorf("--batch: %w", err)
				}
				batchID = parsed
			}
			rows, err := flags.rows(cmd)
			if err != nil {
				return err
			}
			return withBackend(cmd, env, func(b *Backend) error {
				result, err := b.Importer.ParseAndValidateVouchers(cmd.Context(), flags.companyID, rows, importer.KeyStrategy(flags.strategy))
				if err != nil {
					return err
				}
				if result.HasBlocking() {
					printValidation(cmd.ErrOrStderr(), result)
					return importer.ErrBlockingIssues
				}
				committed, err := b.Importer.Commit(cmd.Context(), importer.CommitInput{
					CompanyID:          flags.companyID,
					BatchID:            batchID,
					Result:             result,
					AutoCreateAccounts: autoCreate,
					ActorID:            actorID,
				})
				if errors.Is(err, importer.ErrBatchCommitted) && len(committed.VoucherNos) > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "batch %s was committed before as %s\n", committed.BatchID, strings.Join(committed.VoucherNos, ", "))
				}
				if err != nil {
					return err
				}
				if flags.asJSON {
					return writeJSON(cmd.OutOrStdout(), committed)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "batch %s committed %d vouchers\n", committed.BatchID, len(committed.VoucherNos))
				for _, no := range committed.VoucherNos {
					fmt.Fprintf(out, "  %s\n", no)
				}
				if len(committed.AccountsCreated) > 0 {
					fmt.Fprintf(out, "accounts created: %s\n", strings.Join(committed.AccountsCreated, ", "))
				}
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&batch, "batch", "", "batch id for replay protection (random when empty)")
	cmd.Flags().BoolVar(&autoCreate, "auto-create", false, "create accounts missing from the chart")
	cmd.Flags().Int64Var(&actorID, "actor", 0, "acting user id for the audit trail")
	return cmd
}

func printValidation(w io.Writer, result importer.ValidationResult) {
	fmt.Fprintf(w, "%d rows in %d vouchers, %d blocking, %d warnings\n",
		result.RowCount, len(result.Groups), result.Blocking, result.Warnings)
	for _, g := range result.Groups {
		fmt.Fprintf(w, "%s\tdebit %s\tcredit %s\n", g.Key, g.TotalDebit.StringFixed(2), g.TotalCredit.StringFixed(2))
		for _, is := range g.Issues {
			if is.Line > 0 {
				fmt.Fprintf(w, "  [%s] line %d %s: %s\n", is.Severity, is.Line, is.Code, is.Message)
				continue
			}
			fmt.Fprintf(w, "  [%s] %s: %s\n", is.Severity, is.Code, is.Message)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
