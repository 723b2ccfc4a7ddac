package commands

import (
	"context"
	"errors"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/contractsync/internal/deadletter"
)

// NewRedriveCmd creates the redrive command.
func NewRedriveCmd() *cobra.Command {
	var (
		limit  int
		target string
	)

	cmd := &cobra.Command{
		Use:   "redrive",
		Short: "Move parked uploads from the dead-letter queue back to the source queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()
			d, err := loadDeps(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			if d.DeadLetter == nil {
				return errors.New("redrive requires deadLetter.queueUrl in contractsync.yaml")
			}
			if target == "" {
				target = d.Config.DeadLetter.SourceURL
			}
			return runRedrive(ctx, d.DeadLetter, target, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum messages to move (0 moves all)")
	cmd.Flags().StringVar(&target, "to", "", "Target queue URL (default: deadLetter.sourceUrl)")
	return cmd
}

func runRedrive(ctx context.Context, q *deadletter.Queue, target string, limit int) error {
	if target == "" {
		return errors.New("no target queue: set --to or deadLetter.sourceUrl")
	}
	n, err := q.Redrive(ctx, target, limit)
	if n > 0 {
		color.Green("✓ Moved %d message(s) from %s to %s", n, q.URL(), target)
	} else if err == nil {
		color.Yellow("Dead-letter queue %s is empty", q.URL())
	}
	return err
}
