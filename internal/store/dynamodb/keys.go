package dynamodb

import (
	"time"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Attribute and index names.
const (
	attrPK     = "PK"
	attrSK     = "SK"
	attrGSI1PK = "GSI1PK"
	attrGSI1SK = "GSI1SK"
	attrGSI2PK = "GSI2PK"
	attrGSI2SK = "GSI2SK"

	indexEnvelope = "GSI1"
	indexStatus   = "GSI2"
)

// PK/SK prefix constants.
const (
	prefixContract = "CONTRACT#"
	prefixEnvelope = "ENVELOPE#"
	prefixStatus   = "STATUS#"

	skRecord = "RECORD"

	sortableTime = "2006-01-02T15:04:05.000000000Z"
)

// Condition expressions. They are matched verbatim by the in-memory fake in
// the tests.
const (
	condUpsert = "attribute_not_exists(PK) OR NOT (#status IN (:signed, :declined, :voided))"
	condCAS    = "#status = :expected AND #envelope = :envelope"
)

func contractPK(email string) string      { return prefixContract + email }
func envelopePK(envelopeID string) string { return prefixEnvelope + envelopeID }
func statusPK(s types.ContractStatus) string {
	return prefixStatus + string(s)
}

// statusSK orders a status partition by last update, oldest first.
func statusSK(updatedAt time.Time, email string) string {
	return updatedAt.UTC().Format(sortableTime) + "#" + email
}
