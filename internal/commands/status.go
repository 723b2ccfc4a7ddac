package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/contractsync/internal/store"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var (
		limit   int
		asJSON  bool
		statusF string
	)

	cmd := &cobra.Command{
		Use:   "status [email]",
		Short: "Show a contract record, or list records by status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			d, err := loadDeps(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			if len(args) > 0 {
				return showContract(ctx, os.Stdout, d.Store, args[0], asJSON)
			}
			statuses := []types.ContractStatus{types.ContractPending, types.ContractSent}
			if statusF != "" {
				st, ok := types.ParseContractStatus(statusF)
				if !ok {
					return fmt.Errorf("unknown status %q", statusF)
				}
				statuses = []types.ContractStatus{st}
			}
			return listContracts(ctx, os.Stdout, d.Store, statuses, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum records listed per status")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")
	cmd.Flags().StringVar(&statusF, "status", "", "List only records in this status")
	return cmd
}

func showContract(ctx context.Context, w io.Writer, s store.Store, email string, asJSON bool) error {
	rec, err := s.Get(ctx, store.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("reading contract: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("no contract for %s", email)
	}
	if asJSON {
		return printJSON(w, rec)
	}
	printRecord(w, *rec)
	return nil
}

func listContracts(ctx context.Context, w io.Writer, s store.Store, statuses []types.ContractStatus, limit int) error {
	bold := color.New(color.Bold)
	total := 0
	for _, st := range statuses {
		recs, err := s.ListByStatus(ctx, st, limit)
		if err != nil {
			return fmt.Errorf("listing %s contracts: %w", st, err)
		}
		if len(recs) == 0 {
			continue
		}
		_, _ = bold.Fprintf(w, "%s contracts:\n", st.DisplayName())
		for _, rec := range recs {
			_, _ = fmt.Fprintf(w, "  %-40s %-10s envelope=%-38s updated=%s\n",
				rec.Email, statusString(rec.Status), rec.EnvelopeID, rec.UpdatedAt.Format(time.RFC3339))
		}
		_, _ = fmt.Fprintln(w)
		total += len(recs)
	}
	if total == 0 {
		_, _ = fmt.Fprintln(w, "No contracts found.")
	}
	return nil
}
