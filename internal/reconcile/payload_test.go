package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

const flatPayload = `{
  "event": "envelope-completed",
  "data": {
    "envelopeId": "b8f2d556-99c1-4251-ae49-decab5ec9fe1",
    "status": "completed",
    "statusChangedDateTime": "2025-10-28T13:47:30.0000000Z",
    "recipients": {
      "signers": [
        {"recipientId": "1", "email": "Cliente@Email.com", "name": "Cliente Exemplo", "status": "completed",
         "signedDateTime": "2025-10-28T13:47:25.0000000Z"}
      ]
    }
  },
  "eventData": {
    "accountId": "123456",
    "envelopeId": "b8f2d556-99c1-4251-ae49-decab5ec9fe1",
    "envelopeSummary": {"status": "completed", "envelopeId": "b8f2d556-99c1-4251-ae49-decab5ec9fe1"}
  }
}`

const nestedPayload = `{
  "event": "envelope-completed",
  "generatedDateTime": "2025-10-28T13:48:00.000Z",
  "data": {
    "accountId": "123456",
    "envelopeId": "env-42",
    "envelopeSummary": {
      "status": "completed",
      "completedDateTime": "2025-10-28T13:47:30.1234567Z",
      "recipients": {"signers": [{"email": "joao@email.com", "name": "Joao Silva", "signedDateTime": "2025-10-28T13:47:25Z"}]}
    }
  }
}`

const legacyPayload = `{
  "event": "envelope-declined",
  "eventData": {
    "envelopeId": "env-7",
    "envelopeSummary": {
      "status": "declined",
      "declinedDateTime": "2025-11-02T09:00:00Z",
      "recipients": {"signers": [{"email": "ana@example.org", "name": "Ana"}]}
    }
  }
}`

func TestParseEvent_Flat(t *testing.T) {
	ev, err := ParseEvent([]byte(flatPayload))
	require.NoError(t, err)
	assert.Equal(t, "b8f2d556-99c1-4251-ae49-decab5ec9fe1", ev.EnvelopeID)
	assert.Equal(t, "completed", ev.Status)
	assert.Equal(t, "envelope-completed", ev.EventName)
	assert.Equal(t, []types.Signer{{Name: "Cliente Exemplo", Email: "cliente@email.com"}}, ev.Signers)
	assert.True(t, ev.OccurredAt.Equal(time.Date(2025, 10, 28, 13, 47, 30, 0, time.UTC)))

	status, ok := ev.Terminal()
	assert.True(t, ok)
	assert.Equal(t, types.ContractSigned, status)
}

func TestParseEvent_Nested(t *testing.T) {
	ev, err := ParseEvent([]byte(nestedPayload))
	require.NoError(t, err)
	assert.Equal(t, "env-42", ev.EnvelopeID)
	assert.Equal(t, "completed", ev.Status)
	require.Len(t, ev.Signers, 1)
	assert.Equal(t, "joao@email.com", ev.Signers[0].Email)
	assert.True(t, ev.OccurredAt.Equal(time.Date(2025, 10, 28, 13, 47, 30, 123456700, time.UTC)))
}

func TestParseEvent_Legacy(t *testing.T) {
	ev, err := ParseEvent([]byte(legacyPayload))
	require.NoError(t, err)
	assert.Equal(t, "env-7", ev.EnvelopeID)
	status, ok := ev.Terminal()
	require.True(t, ok)
	assert.Equal(t, types.ContractDeclined, status)
	assert.True(t, ev.OccurredAt.Equal(time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC)))
}

func TestParseEvent_SignerTimestampFallback(t *testing.T) {
	body := `{"event":"envelope-completed","data":{"envelopeId":"e1","envelopeSummary":{"status":"completed",
	  "recipients":{"signers":[{"email":"a@b.co","signedDateTime":"2025-10-28T13:47:25Z"}]}}}}`
	ev, err := ParseEvent([]byte(body))
	require.NoError(t, err)
	assert.True(t, ev.OccurredAt.Equal(time.Date(2025, 10, 28, 13, 47, 25, 0, time.UTC)))
}

func TestParseEvent_NoTimestamp(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"data":{"envelopeId":"e1","status":"voided"}}`))
	require.NoError(t, err)
	assert.True(t, ev.OccurredAt.IsZero())
	status, ok := ev.Terminal()
	require.True(t, ok)
	assert.Equal(t, types.ContractVoided, status)
}

func TestParseEvent_EventNameOnly(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event":"envelope-voided","data":{"envelopeId":"e1"}}`))
	require.NoError(t, err)
	status, ok := ev.Terminal()
	require.True(t, ok)
	assert.Equal(t, types.ContractVoided, status)
}

func TestParseEvent_NonTerminal(t *testing.T) {
	for _, body := range []string{
		`{"event":"envelope-sent","data":{"envelopeId":"e1","status":"sent"}}`,
		`{"event":"envelope-delivered","data":{"envelopeId":"e1"}}`,
		`{"event":"recipient-completed","data":{"envelopeId":"e1"}}`,
		`{"event":"envelope-completed","data":{"envelopeId":"e1","status":"delivered"}}`,
	} {
		ev, err := ParseEvent([]byte(body))
		require.NoError(t, err, body)
		_, ok := ev.Terminal()
		assert.False(t, ok, body)
	}
}

func TestParseEvent_Unrecognized(t *testing.T) {
	for _, body := range []string{
		``,
		`not json`,
		`[]`,
		`{}`,
		`{"event":"envelope-completed"}`,
		`{"event":"envelope-completed","data":{"status":"completed"}}`,
		`{"data":{"envelopeId":"e1"}}`,
		`{"envelopeId":"e1","status":"completed"}`,
	} {
		_, err := ParseEvent([]byte(body))
		assert.ErrorIs(t, err, failure.ErrUnrecognizedPayload, body)
	}
}
