package lifecycle

import (
	"testing"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from  types.ContractStatus
		to    types.ContractStatus
		valid bool
	}{
		{types.ContractPending, types.ContractSent, true},
		{types.ContractPending, types.ContractSigned, true},
		{types.ContractSent, types.ContractSigned, true},
		{types.ContractSent, types.ContractDeclined, true},
		{types.ContractSent, types.ContractVoided, true},
		{types.ContractSent, types.ContractPending, false},
		{types.ContractSent, types.ContractSent, false},
		{types.ContractSigned, types.ContractDeclined, false},
		{types.ContractSigned, types.ContractSent, false},
		{types.ContractDeclined, types.ContractSigned, false},
		{types.ContractDeclined, types.ContractPending, false},
		{types.ContractVoided, types.ContractSent, false},
		{types.ContractStatus("BOGUS"), types.ContractSent, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.valid, CanTransition(tt.from, tt.to))
			err := Transition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, failure.ErrInvalidTransition)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(types.ContractSigned))
	assert.True(t, IsTerminal(types.ContractDeclined))
	assert.True(t, IsTerminal(types.ContractVoided))
	assert.False(t, IsTerminal(types.ContractSent))
	assert.False(t, IsTerminal(types.ContractPending))
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []types.ContractStatus{types.ContractPending, types.ContractSent, types.ContractSigned, types.ContractDeclined, types.ContractVoided}
	for _, from := range all {
		if !IsTerminal(from) {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestProviderStatus(t *testing.T) {
	tests := []struct {
		in   string
		want types.ContractStatus
		ok   bool
	}{
		{"completed", types.ContractSigned, true},
		{"declined", types.ContractDeclined, true},
		{"voided", types.ContractVoided, true},
		{"sent", "", false},
		{"delivered", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ProviderStatus(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
