// Package commands implements the CLI subcommands for the contractsync binary.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/dwsmith1983/contractsync/internal/app"
	"github.com/dwsmith1983/contractsync/internal/config"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// ConfigDir is the directory contractsync.yaml is read from. The root
// command binds it to --config-dir.
var ConfigDir = "."

// loadDeps reads the project configuration and builds the dependency graph.
func loadDeps(ctx context.Context) (*app.Deps, error) {
	cfg, err := config.Load(ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	d, err := app.Build(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func statusString(s types.ContractStatus) string {
	switch s {
	case types.ContractSigned:
		return color.GreenString(string(s))
	case types.ContractDeclined, types.ContractVoided:
		return color.RedString(string(s))
	case types.ContractSent:
		return color.CyanString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func printRecord(w io.Writer, rec types.ContractRecord) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(w, "Contract: %s <%s>\n", rec.Name, rec.Email)
	_, _ = fmt.Fprintf(w, "  Status:    %s\n", statusString(rec.Status))
	_, _ = fmt.Fprintf(w, "  Envelope:  %s\n", rec.EnvelopeID)
	if rec.SigningLink != "" {
		_, _ = fmt.Fprintf(w, "  Link:      %s\n", rec.SigningLink)
	}
	if rec.DocumentKey != "" {
		_, _ = fmt.Fprintf(w, "  Document:  %s\n", rec.DocumentKey)
	}
	_, _ = fmt.Fprintf(w, "  Created:   %s\n", rec.CreatedAt.Format(time.RFC3339))
	if rec.CompletedAt != nil {
		_, _ = fmt.Fprintf(w, "  Completed: %s\n", rec.CompletedAt.Format(time.RFC3339))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
