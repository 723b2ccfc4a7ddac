package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/contractsync/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "contractsync",
		Short: "Send uploaded contracts for e-signature and track their status",
		Long: `contractsync turns contracts uploaded to object storage into DocuSign
envelopes, keeps one record per signer, and applies Connect webhook status
changes to those records exactly once, never letting a terminal status be
overwritten.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&commands.ConfigDir, "config-dir", ".", "Directory containing contractsync.yaml")

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewServeCmd(),
		commands.NewIngestCmd(),
		commands.NewReconcileCmd(),
		commands.NewSweepCmd(),
		commands.NewRedriveCmd(),
		commands.NewStatusCmd(),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
