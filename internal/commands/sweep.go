package commands

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/contractsync/internal/sweeper"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// NewSweepCmd creates the sweep command.
func NewSweepCmd() *cobra.Command {
	var req types.SweepRequest

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Backfill un-ingested uploads and poll stale envelopes",
		Long: `Without flags, lists the upload prefix and ingests documents that have no
record, then asks the provider for the status of envelopes that have been
SENT longer than sweeper.staleAfter. With --envelope only that envelope is
checked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Minute)
			defer cancel()
			d, err := loadDeps(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			if d.Sweeper == nil {
				return errors.New("sweep requires docusign API credentials in contractsync.yaml")
			}
			return runSweep(ctx, os.Stdout, d.Sweeper, req)
		},
	}
	cmd.Flags().StringVar(&req.EnvelopeID, "envelope", "", "Check a single envelope")
	cmd.Flags().StringVar(&req.Email, "email", "", "Signer email to match with --envelope")
	return cmd
}

func runSweep(ctx context.Context, w io.Writer, s *sweeper.Sweeper, req types.SweepRequest) error {
	if req.EnvelopeID != "" {
		res, err := s.Check(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(w, res)
	}
	rep, err := s.Run(ctx)
	if perr := printJSON(w, rep); perr != nil {
		return perr
	}
	return err
}
