// Package types defines the public domain types for contract signature tracking.
package types

// DefaultKeyPrefix is the object-storage folder generated contracts are uploaded to.
const DefaultKeyPrefix = "contratos-gerados"

// ContractStatus represents the lifecycle state of a contract record.
type ContractStatus string

// ContractStatus values represent the lifecycle states of a contract record.
const (
	ContractPending  ContractStatus = "PENDING"
	ContractSent     ContractStatus = "SENT"
	ContractSigned   ContractStatus = "SIGNED"
	ContractDeclined ContractStatus = "DECLINED"
	ContractVoided   ContractStatus = "VOIDED"
)

// DisplayName returns the human-facing label used in notifications and the CLI.
func (s ContractStatus) DisplayName() string {
	switch s {
	case ContractPending:
		return "Pending"
	case ContractSent:
		return "Sent"
	case ContractSigned:
		return "Signed"
	case ContractDeclined:
		return "Declined"
	case ContractVoided:
		return "Voided"
	default:
		return string(s)
	}
}

// ParseContractStatus accepts either the canonical value or the display name.
func ParseContractStatus(s string) (ContractStatus, bool) {
	for _, st := range []ContractStatus{ContractPending, ContractSent, ContractSigned, ContractDeclined, ContractVoided} {
		if s == string(st) || s == st.DisplayName() {
			return st, true
		}
	}
	return "", false
}

// FailureCategory classifies a handler failure for retry decisions.
type FailureCategory string

const (
	FailureTransient FailureCategory = "TRANSIENT" // retry by transport
	FailurePermanent FailureCategory = "PERMANENT" // bad input or credentials, do not retry
	FailureTerminal  FailureCategory = "TERMINAL"  // final outcome for the event, logged only
)

// Outcome is the result kind of a successfully handled event.
type Outcome string

// Outcome values.
const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeCreated   Outcome = "created"
	OutcomeReplaced  Outcome = "replaced"
)

// NotifyType defines the notification sink type.
type NotifyType string

// NotifyType values enumerate the supported notification backends.
const (
	NotifyConsole     NotifyType = "console"
	NotifyWebhook     NotifyType = "webhook"
	NotifySNS         NotifyType = "sns"
	NotifyEmail       NotifyType = "email"
	NotifyEventBridge NotifyType = "eventbridge"
	NotifyS3          NotifyType = "s3"
)

// StoreBackend names a record store implementation.
type StoreBackend string

// StoreBackend values.
const (
	StoreDynamoDB StoreBackend = "dynamodb"
	StoreRedis    StoreBackend = "redis"
	StoreSheets   StoreBackend = "sheets"
)
