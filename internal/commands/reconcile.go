package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/contractsync/internal/reconcile"
)

// NewReconcileCmd creates the reconcile command.
func NewReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [payload.json]",
		Short: "Apply a Connect webhook payload from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readPayload(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			d, err := loadDeps(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			return runReconcile(ctx, os.Stdout, d.Reconcile, body)
		},
	}
}

func readPayload(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		body, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return body, nil
	}
	body, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return body, nil
}

// runReconcile prints the webhook response body. Outcomes the webhook would
// answer with a non-2xx status are also returned as errors.
func runReconcile(ctx context.Context, w io.Writer, h *reconcile.Handler, body []byte) error {
	res, err := h.Handle(ctx, body)
	code, resp := reconcile.Reply(res, err)
	if perr := printJSON(w, resp); perr != nil {
		return perr
	}
	if code >= 300 {
		return err
	}
	return nil
}
