package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/lifecycle"
	"github.com/dwsmith1983/contractsync/internal/testutil"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

var (
	sentAt   = time.Date(2025, 10, 28, 12, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2025, 10, 28, 14, 0, 0, 0, time.UTC)
	signedAt = time.Date(2025, 10, 28, 13, 47, 30, 0, time.UTC)
)

func newHandler(s *testutil.MockStore, n *testutil.RecordingNotifier, opts ...Option) *Handler {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	if n == nil {
		return New(s, nil, opts...)
	}
	return New(s, n, opts...)
}

func seeded(t *testing.T) *testutil.MockStore {
	t.Helper()
	s := testutil.NewMockStore()
	s.Put(testutil.SentRecord("Joao Silva", "joao@email.com", "env-1", sentAt))
	return s
}

func event(status string) Event {
	return Event{
		EventName:  "envelope-" + status,
		EnvelopeID: "env-1",
		Status:     status,
		Signers:    []types.Signer{{Name: "Joao Silva", Email: "joao@email.com"}},
		OccurredAt: signedAt,
	}
}

// Scenario B: a completion for a SENT record signs it and notifies once.
func TestApply_CompletedSignsRecord(t *testing.T) {
	s := seeded(t)
	n := &testutil.RecordingNotifier{}
	h := newHandler(s, n)

	res, err := h.Apply(context.Background(), event("completed"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeApplied, res.Outcome)
	assert.Equal(t, types.ContractSent, res.Previous)
	assert.Equal(t, types.ContractSigned, res.Status)
	assert.Equal(t, "joao@email.com", res.Email)

	rec := testutil.RequireStatus(t, s, "joao@email.com", types.ContractSigned)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, rec.CompletedAt.Equal(signedAt))
	assert.True(t, rec.UpdatedAt.Equal(fixedNow))
	assert.True(t, rec.CreatedAt.Equal(sentAt))
	assert.Equal(t, "env-1", rec.EnvelopeID)

	notes := n.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, types.ContractSigned, notes[0].Status)
	assert.Equal(t, types.ContractSent, notes[0].PreviousStatus)
	assert.Equal(t, "joao@email.com", notes[0].Email)
	assert.NotEmpty(t, notes[0].ID)
}

// Scenario C: redelivery of the same completion is a successful no-op.
func TestApply_DuplicateIsNoop(t *testing.T) {
	s := seeded(t)
	n := &testutil.RecordingNotifier{}
	h := newHandler(s, n)

	_, err := h.Apply(context.Background(), event("completed"))
	require.NoError(t, err)
	before, _ := s.Record("joao@email.com")
	casCalls := s.CASCalls()

	for i := 0; i < 3; i++ {
		res, err := h.Apply(context.Background(), event("completed"))
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeDuplicate, res.Outcome)
	}

	after, _ := s.Record("joao@email.com")
	assert.Equal(t, before, after)
	assert.Equal(t, casCalls, s.CASCalls())
	assert.Len(t, n.Notifications(), 1)
}

// Scenario D: a completion for a declined record is reported, never applied.
func TestApply_ConflictingTerminalState(t *testing.T) {
	s := testutil.NewMockStore()
	declined := testutil.SentRecord("Joao Silva", "joao@email.com", "env-1", sentAt)
	declined.Status = types.ContractDeclined
	s.Put(declined)
	n := &testutil.RecordingNotifier{}
	h := newHandler(s, n)

	_, err := h.Apply(context.Background(), event("completed"))
	assert.ErrorIs(t, err, failure.ErrConflictingTerminalState)
	assert.Equal(t, types.FailureTerminal, failure.Classify(err))

	rec, _ := s.Record("joao@email.com")
	assert.Equal(t, declined, rec)
	assert.Zero(t, s.CASCalls())
	assert.Empty(t, n.Notifications())
}

func TestApply_PendingRecordTransitions(t *testing.T) {
	s := testutil.NewMockStore()
	pending := testutil.SentRecord("Joao Silva", "joao@email.com", "env-1", sentAt)
	pending.Status = types.ContractPending
	s.Put(pending)
	h := newHandler(s, nil)

	res, err := h.Apply(context.Background(), event("voided"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeApplied, res.Outcome)
	testutil.RequireStatus(t, s, "joao@email.com", types.ContractVoided)
}

// A row whose stored status the state machine does not know is reported as a
// terminal failure so the provider stops redelivering it.
func TestApply_UnknownStoredStatusIsTerminal(t *testing.T) {
	s := testutil.NewMockStore()
	odd := testutil.SentRecord("Joao Silva", "joao@email.com", "env-1", sentAt)
	odd.Status = ""
	s.Put(odd)
	n := &testutil.RecordingNotifier{}
	h := newHandler(s, n)

	_, err := h.Apply(context.Background(), event("completed"))
	require.ErrorIs(t, err, failure.ErrInvalidTransition)
	assert.Equal(t, types.FailureTerminal, failure.Classify(err))
	assert.False(t, failure.Retryable(err))
	assert.Equal(t, http.StatusOK, failure.HTTPStatus(err))
	assert.Zero(t, s.CASCalls())
	assert.Empty(t, n.Notifications())
}

func TestApply_MissingTimestampUsesProcessingTime(t *testing.T) {
	s := seeded(t)
	h := newHandler(s, nil)

	ev := event("declined")
	ev.OccurredAt = time.Time{}
	_, err := h.Apply(context.Background(), ev)
	require.NoError(t, err)

	rec := testutil.RequireStatus(t, s, "joao@email.com", types.ContractDeclined)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, rec.CompletedAt.Equal(fixedNow))
}

func TestApply_NonTerminalIgnored(t *testing.T) {
	s := seeded(t)
	h := newHandler(s, nil)

	res, err := h.Apply(context.Background(), event("delivered"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeIgnored, res.Outcome)
	testutil.RequireStatus(t, s, "joao@email.com", types.ContractSent)
	assert.Zero(t, s.CASCalls())
}

func TestApply_EmailFallback(t *testing.T) {
	s := seeded(t)
	s.NoEnvelopeIndex = true
	h := newHandler(s, nil)

	res, err := h.Apply(context.Background(), event("completed"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeApplied, res.Outcome)
	testutil.RequireStatus(t, s, "joao@email.com", types.ContractSigned)
}

func TestApply_EmailFallbackUnboundRecord(t *testing.T) {
	s := testutil.NewMockStore()
	s.Put(testutil.SentRecord("Joao Silva", "joao@email.com", "", sentAt))
	s.NoEnvelopeIndex = true
	h := newHandler(s, nil)

	_, err := h.Apply(context.Background(), event("completed"))
	require.NoError(t, err)
	testutil.RequireStatus(t, s, "joao@email.com", types.ContractSigned)
}

func TestApply_StaleEnvelopeIsNotFound(t *testing.T) {
	s := testutil.NewMockStore()
	s.Put(testutil.SentRecord("Joao Silva", "joao@email.com", "env-2", sentAt))
	h := newHandler(s, nil)

	_, err := h.Apply(context.Background(), event("completed"))
	assert.ErrorIs(t, err, failure.ErrRecordNotFound)
	testutil.RequireStatus(t, s, "joao@email.com", types.ContractSent)
}

func TestApply_RecordNotFound(t *testing.T) {
	h := newHandler(testutil.NewMockStore(), nil)

	_, err := h.Apply(context.Background(), event("completed"))
	assert.ErrorIs(t, err, failure.ErrRecordNotFound)
	assert.False(t, failure.Retryable(err))
}

func TestApply_StoreErrors(t *testing.T) {
	t.Run("lookup", func(t *testing.T) {
		s := seeded(t)
		s.GetErr = errors.New("timeout")
		_, err := newHandler(s, nil).Apply(context.Background(), event("completed"))
		assert.ErrorIs(t, err, failure.ErrStoreUnavailable)
		assert.True(t, failure.Retryable(err))
	})
	t.Run("swap", func(t *testing.T) {
		s := seeded(t)
		s.CASErr = errors.New("throttled")
		_, err := newHandler(s, nil).Apply(context.Background(), event("completed"))
		assert.ErrorIs(t, err, failure.ErrStoreUnavailable)
	})
}

func TestApply_NotifierFailureIsSwallowed(t *testing.T) {
	s := seeded(t)
	n := &testutil.RecordingNotifier{Err: errors.New("smtp down")}
	h := newHandler(s, n)

	res, err := h.Apply(context.Background(), event("completed"))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeApplied, res.Outcome)
	testutil.RequireStatus(t, s, "joao@email.com", types.ContractSigned)
	assert.Len(t, n.Notifications(), 1)
}

// A competing decline lands between the read and the swap: the handler
// re-reads and reports the conflict instead of overwriting.
func TestApply_LostRaceReevaluates(t *testing.T) {
	s := seeded(t)
	var once sync.Once
	s.BeforeCAS = func(email string) {
		once.Do(func() {
			rec, _ := s.Record(email)
			rec.Status = types.ContractDeclined
			s.Put(rec)
		})
	}
	n := &testutil.RecordingNotifier{}
	h := newHandler(s, n)

	_, err := h.Apply(context.Background(), event("completed"))
	assert.ErrorIs(t, err, failure.ErrConflictingTerminalState)
	testutil.RequireStatus(t, s, "joao@email.com", types.ContractDeclined)
	assert.Empty(t, n.Notifications())
}

func TestApply_ReplacedBeforeSwapIsNotFound(t *testing.T) {
	s := seeded(t)
	var once sync.Once
	s.BeforeCAS = func(string) {
		once.Do(func() {
			s.Put(testutil.SentRecord("Joao Silva", "joao@email.com", "env-2", sentAt.Add(time.Minute)))
		})
	}
	n := &testutil.RecordingNotifier{}
	h := newHandler(s, n)

	_, err := h.Apply(context.Background(), event("completed"))
	assert.ErrorIs(t, err, failure.ErrRecordNotFound)

	rec := testutil.RequireStatus(t, s, "joao@email.com", types.ContractSent)
	assert.Equal(t, "env-2", rec.EnvelopeID)
	assert.Equal(t, "https://sign.example/env-2", rec.SigningLink)
	assert.Nil(t, rec.CompletedAt)
	assert.Empty(t, n.Notifications())
}

func TestApply_LaggingEnvelopeIndex(t *testing.T) {
	s := testutil.NewMockStore()
	old := testutil.SentRecord("Joao Silva", "joao@email.com", "env-1", sentAt)
	s.Put(testutil.SentRecord("Joao Silva", "joao@email.com", "env-2", sentAt.Add(time.Minute)))
	s.StaleIndex = map[string]types.ContractRecord{"env-1": old}
	h := newHandler(s, nil)

	_, err := h.Apply(context.Background(), event("completed"))
	assert.ErrorIs(t, err, failure.ErrRecordNotFound)
	assert.Zero(t, s.CASCalls())
	rec := testutil.RequireStatus(t, s, "joao@email.com", types.ContractSent)
	assert.Equal(t, "env-2", rec.EnvelopeID)
}

func TestApply_ContentionExhaustsAttempts(t *testing.T) {
	s := seeded(t)
	s.BeforeCAS = func(email string) {
		rec, _ := s.Record(email)
		if rec.Status == types.ContractSent {
			rec.Status = types.ContractPending
		} else {
			rec.Status = types.ContractSent
		}
		s.Put(rec)
	}
	h := newHandler(s, nil)

	_, err := h.Apply(context.Background(), event("completed"))
	assert.ErrorIs(t, err, failure.ErrStoreUnavailable)
	assert.Equal(t, DefaultMaxAttempts, s.CASCalls())
}

func TestApply_ConcurrentDeliveries(t *testing.T) {
	s := seeded(t)
	n := &testutil.RecordingNotifier{}
	h := newHandler(s, n)

	statuses := []string{"completed", "declined", "voided", "completed", "completed", "declined"}
	var wg sync.WaitGroup
	for _, st := range statuses {
		wg.Add(1)
		go func(st string) {
			defer wg.Done()
			_, _ = h.Apply(context.Background(), event(st))
		}(st)
	}
	wg.Wait()

	rec, ok := s.Record("joao@email.com")
	require.True(t, ok)
	assert.True(t, lifecycle.IsTerminal(rec.Status))
	require.Len(t, n.Notifications(), 1)
	assert.Equal(t, rec.Status, n.Notifications()[0].Status)
}

// Every sequence of events leaves the record in the status of the first
// terminal event, and each later event is a duplicate or a conflict.
func TestApply_Monotonicity(t *testing.T) {
	alphabet := []string{"completed", "declined", "voided", "sent"}
	var sequences [][]string
	var build func(prefix []string)
	build = func(prefix []string) {
		if len(prefix) == 3 {
			sequences = append(sequences, append([]string(nil), prefix...))
			return
		}
		for _, a := range alphabet {
			build(append(prefix, a))
		}
	}
	build(nil)
	require.Len(t, sequences, 64)

	for _, seq := range sequences {
		t.Run(fmt.Sprint(seq), func(t *testing.T) {
			s := seeded(t)
			h := newHandler(s, nil)

			var first types.ContractStatus
			for _, st := range seq {
				implied, terminal := lifecycle.ProviderStatus(st)
				res, err := h.Apply(context.Background(), event(st))
				switch {
				case !terminal:
					require.NoError(t, err)
					assert.Equal(t, types.OutcomeIgnored, res.Outcome)
				case first == "":
					require.NoError(t, err)
					assert.Equal(t, types.OutcomeApplied, res.Outcome)
					first = implied
				case implied == first:
					require.NoError(t, err)
					assert.Equal(t, types.OutcomeDuplicate, res.Outcome)
				default:
					assert.ErrorIs(t, err, failure.ErrConflictingTerminalState)
				}
			}

			want := first
			if want == "" {
				want = types.ContractSent
			}
			testutil.RequireStatus(t, s, "joao@email.com", want)
		})
	}
}

func TestHandle_DecodesAndApplies(t *testing.T) {
	s := testutil.NewMockStore()
	s.Put(testutil.SentRecord("Joao Silva", "joao@email.com", "env-42", sentAt))
	h := newHandler(s, nil)

	res, err := h.Handle(context.Background(), []byte(nestedPayload))
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeApplied, res.Outcome)
	assert.Equal(t, "env-42", res.EnvelopeID)
	testutil.RequireStatus(t, s, "joao@email.com", types.ContractSigned)
}

func TestHandle_UnrecognizedPayload(t *testing.T) {
	s := seeded(t)
	h := newHandler(s, nil)

	_, err := h.Handle(context.Background(), []byte(`{"hello":"world"}`))
	assert.ErrorIs(t, err, failure.ErrUnrecognizedPayload)
	assert.Equal(t, 400, failure.HTTPStatus(err))
	testutil.RequireStatus(t, s, "joao@email.com", types.ContractSent)
}
