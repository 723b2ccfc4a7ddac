package notify

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// ConsoleSink writes notifications to the terminal with color.
type ConsoleSink struct {
	out io.Writer
}

// NewConsoleSink creates a new console sink writing to stdout.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{out: os.Stdout}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes a notification with a color-coded status.
func (s *ConsoleSink) Send(_ context.Context, n types.Notification) error {
	var label string
	switch n.Status {
	case types.ContractSigned:
		label = color.GreenString("[SIGNED]")
	case types.ContractDeclined:
		label = color.RedString("[DECLINED]")
	case types.ContractVoided:
		label = color.YellowString("[VOIDED]")
	default:
		label = color.CyanString("[%s]", n.Status)
	}
	_, err := fmt.Fprintf(s.out, "%s %s <%s> envelope=%s\n", label, n.Name, n.Email, n.EnvelopeID)
	return err
}
