package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/contractsync/internal/ingest"
	"github.com/dwsmith1983/contractsync/internal/objectkey"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// ingestFlags selects the document to ingest: either an explicit object key
// or a signer name and email that the canonical key is built from.
type ingestFlags struct {
	bucket string
	key    string
	name   string
	email  string
}

// NewIngestCmd creates the ingest command.
func NewIngestCmd() *cobra.Command {
	var f ingestFlags

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Send one uploaded contract for signature",
		Example: `  contractsync ingest --bucket contracts --key contratos-gerados/joao-silva-joao@email.com.pdf
  contractsync ingest --bucket contracts --name "Joao Silva" --email joao@email.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			d, err := loadDeps(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()
			if d.Ingest == nil {
				return errors.New("ingest requires docusign API credentials in contractsync.yaml")
			}
			if f.bucket == "" {
				f.bucket = d.Config.Bucket
			}
			return runIngest(ctx, os.Stdout, d.Ingest, f, d.Config.KeyPrefix)
		},
	}
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "Bucket holding the document (default: config bucket)")
	cmd.Flags().StringVar(&f.key, "key", "", "Object key of the uploaded contract")
	cmd.Flags().StringVar(&f.name, "name", "", "Signer name, used with --email instead of --key")
	cmd.Flags().StringVar(&f.email, "email", "", "Signer email, used with --name instead of --key")
	cmd.MarkFlagsMutuallyExclusive("key", "name")
	cmd.MarkFlagsMutuallyExclusive("key", "email")
	cmd.MarkFlagsRequiredTogether("name", "email")
	return cmd
}

func (f ingestFlags) event(prefix string) (types.UploadEvent, error) {
	if f.bucket == "" {
		return types.UploadEvent{}, errors.New("--bucket is required when the config has no bucket")
	}
	key := f.key
	if key == "" {
		if f.name == "" || f.email == "" {
			return types.UploadEvent{}, errors.New("either --key or --name and --email are required")
		}
		key = objectkey.Build(prefix, f.name, f.email)
	}
	return types.UploadEvent{Bucket: f.bucket, Key: key}, nil
}

func runIngest(ctx context.Context, w io.Writer, h *ingest.Handler, f ingestFlags, prefix string) error {
	ev, err := f.event(prefix)
	if err != nil {
		return err
	}
	res, err := h.Handle(ctx, ev)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", ev.Key, err)
	}
	color.Green("✓ Contract %s", res.Outcome)
	printRecord(w, res.Record)
	return nil
}
