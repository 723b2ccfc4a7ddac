// Package lifecycle implements the contract record state machine.
package lifecycle

import (
	"fmt"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Transition table: from -> allowed tos.
// PENDING may jump straight to a terminal state: a record is only PENDING
// before ingestion finishes, and a completion for it is still authoritative.
var validTransitions = map[types.ContractStatus][]types.ContractStatus{
	types.ContractPending:  {types.ContractSent, types.ContractSigned, types.ContractDeclined, types.ContractVoided},
	types.ContractSent:     {types.ContractSigned, types.ContractDeclined, types.ContractVoided},
	types.ContractSigned:   {},
	types.ContractDeclined: {},
	types.ContractVoided:   {},
}

// CanTransition checks if transitioning from one contract status to another is valid.
func CanTransition(from, to types.ContractStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns an error wrapping failure.ErrInvalidTransition if from
// cannot move to to.
func Transition(from, to types.ContractStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: from %q to %q", failure.ErrInvalidTransition, from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
func IsTerminal(status types.ContractStatus) bool {
	return status == types.ContractSigned || status == types.ContractDeclined || status == types.ContractVoided
}

// IsKnown reports whether status belongs to the state machine.
func IsKnown(status types.ContractStatus) bool {
	_, ok := validTransitions[status]
	return ok
}

// ProviderStatus maps an e-signature provider envelope status to the terminal
// contract status it implies. ok is false for non-terminal provider statuses
// such as "sent" or "delivered".
func ProviderStatus(s string) (types.ContractStatus, bool) {
	switch s {
	case "completed", "signed":
		return types.ContractSigned, true
	case "declined":
		return types.ContractDeclined, true
	case "voided":
		return types.ContractVoided, true
	default:
		return "", false
	}
}
