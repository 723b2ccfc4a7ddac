package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dwsmith1983/contractsync/internal/envelope"
	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/ingest"
	"github.com/dwsmith1983/contractsync/internal/reconcile"
	"github.com/dwsmith1983/contractsync/internal/testutil"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)

// fakeLister serves keys in pages of two.
type fakeLister struct {
	keys []string
	err  error
}

func (f *fakeLister) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.err != nil {
		return nil, f.err
	}
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range f.keys {
			if k == aws.ToString(in.ContinuationToken) {
				start = i
			}
		}
	}
	end := start + 2
	out := &s3.ListObjectsV2Output{}
	if end < len(f.keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(f.keys[end])
	} else {
		end = len(f.keys)
		out.IsTruncated = aws.Bool(false)
	}
	for _, k := range f.keys[start:end] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k), Size: aws.Int64(1024)})
	}
	return out, nil
}

type fixture struct {
	store   *testutil.MockStore
	gateway *testutil.MockGateway
	sweeper *Sweeper
}

func newFixture(lister s3.ListObjectsV2APIClient) fixture {
	st := testutil.NewMockStore()
	gw := testutil.NewMockGateway()
	clock := func() time.Time { return now }
	ing := ingest.New(st, gw, ingest.WithClock(clock))
	rec := reconcile.New(st, nil, reconcile.WithClock(clock))
	sw := New(Config{Bucket: "contracts", StaleAfter: time.Hour}, st, gw, ing, rec,
		WithLister(lister), WithClock(clock))
	return fixture{store: st, gateway: gw, sweeper: sw}
}

func TestBackfill_IngestsUnknownUploads(t *testing.T) {
	lister := &fakeLister{keys: []string{
		"contratos-gerados/",
		"contratos-gerados/joao-silva-joao@email.com.pdf",
		"contratos-gerados/ana-ana@example.org.pdf",
		"contratos-gerados/readme.txt",
		"contratos-gerados/maria-maria@example.org.pdf",
	}}
	f := newFixture(lister)
	f.store.Put(testutil.SentRecord("Ana", "ana@example.org", "env-existing", now))

	rep, err := f.sweeper.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Scanned)
	assert.Equal(t, 2, rep.Backfilled)
	assert.Zero(t, rep.Failed)

	testutil.RequireStatus(t, f.store, "joao@email.com", types.ContractSent)
	testutil.RequireStatus(t, f.store, "maria@example.org", types.ContractSent)
	ana := testutil.RequireStatus(t, f.store, "ana@example.org", types.ContractSent)
	assert.Equal(t, "env-existing", ana.EnvelopeID)
	assert.Len(t, f.gateway.Requests(), 2)
}

func TestBackfill_CountsFailures(t *testing.T) {
	f := newFixture(&fakeLister{keys: []string{"contratos-gerados/joao-silva-joao@email.com.pdf"}})
	f.gateway.Err = failure.ErrProviderUnavailable

	rep, err := f.sweeper.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Zero(t, rep.Backfilled)
}

func TestBackfill_ListError(t *testing.T) {
	f := newFixture(&fakeLister{err: errors.New("AccessDenied")})
	_, err := f.sweeper.Backfill(context.Background())
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestBackfill_SkippedWithoutBucket(t *testing.T) {
	st := testutil.NewMockStore()
	sw := New(Config{}, st, testutil.NewMockGateway(), nil, nil, WithLister(&fakeLister{err: errors.New("unused")}))
	rep, err := sw.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
}

func TestRecoverStale(t *testing.T) {
	f := newFixture(nil)
	f.store.Put(testutil.SentRecord("Joao", "joao@email.com", "env-a", now.Add(-3*time.Hour)))
	f.store.Put(testutil.SentRecord("Ana", "ana@example.org", "env-b", now.Add(-2*time.Hour)))
	f.store.Put(testutil.SentRecord("Maria", "maria@example.org", "env-c", now.Add(-10*time.Minute)))

	signedAt := now.Add(-90 * time.Minute)
	f.gateway.Reports["env-a"] = envelope.StatusReport{EnvelopeID: "env-a", Status: "completed", ChangedAt: signedAt}
	f.gateway.Reports["env-c"] = envelope.StatusReport{EnvelopeID: "env-c", Status: "completed", ChangedAt: signedAt}

	rep, err := f.sweeper.RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Checked)
	assert.Equal(t, 1, rep.Recovered)
	assert.Zero(t, rep.Failed)

	joao := testutil.RequireStatus(t, f.store, "joao@email.com", types.ContractSigned)
	require.NotNil(t, joao.CompletedAt)
	assert.True(t, joao.CompletedAt.Equal(signedAt))
	testutil.RequireStatus(t, f.store, "ana@example.org", types.ContractSent)
	testutil.RequireStatus(t, f.store, "maria@example.org", types.ContractSent)
}

func TestRecoverStale_RotatesPastPendingEnvelopes(t *testing.T) {
	st := testutil.NewMockStore()
	gw := testutil.NewMockGateway()
	clock := func() time.Time { return now }
	rec := reconcile.New(st, nil, reconcile.WithClock(clock))
	sw := New(Config{StaleAfter: time.Hour, BatchSize: 1}, st, gw, nil, rec, WithClock(clock))

	st.Put(testutil.SentRecord("Old", "old@example.org", "env-old", now.Add(-5*time.Hour)))
	st.Put(testutil.SentRecord("New", "new@example.org", "env-new", now.Add(-2*time.Hour)))
	gw.Reports["env-new"] = envelope.StatusReport{EnvelopeID: "env-new", Status: "completed"}

	first, err := sw.RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Checked)
	assert.Zero(t, first.Recovered)
	old := testutil.RequireStatus(t, st, "old@example.org", types.ContractSent)
	assert.True(t, old.UpdatedAt.Equal(now))

	second, err := sw.RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Recovered)
	testutil.RequireStatus(t, st, "new@example.org", types.ContractSigned)

	// Nothing stale is left: the pending envelope was polled moments ago.
	third, err := sw.RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, third.Checked)
}

func TestRecoverStale_ProviderErrorsCounted(t *testing.T) {
	f := newFixture(nil)
	f.store.Put(testutil.SentRecord("Joao", "joao@email.com", "env-a", now.Add(-3*time.Hour)))
	f.gateway.StatusErr = failure.ErrRateLimited

	rep, err := f.sweeper.RecoverStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
}

func TestRecoverStale_StoreError(t *testing.T) {
	f := newFixture(nil)
	f.store.GetErr = errors.New("down")
	_, err := f.sweeper.RecoverStale(context.Background())
	assert.ErrorIs(t, err, failure.ErrStoreUnavailable)
}

func TestCheck(t *testing.T) {
	f := newFixture(nil)
	f.store.Put(testutil.SentRecord("Joao", "joao@email.com", "env-a", now))
	f.gateway.Reports["env-a"] = envelope.StatusReport{EnvelopeID: "env-a", Status: "Declined"}

	res, err := f.sweeper.Check(context.Background(), types.SweepRequest{EnvelopeID: "env-a", Email: "Joao@Email.com"})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeApplied, res.Outcome)
	testutil.RequireStatus(t, f.store, "joao@email.com", types.ContractDeclined)
}

func TestCheck_NonTerminal(t *testing.T) {
	f := newFixture(nil)
	f.store.Put(testutil.SentRecord("Joao", "joao@email.com", "env-a", now))

	res, err := f.sweeper.Check(context.Background(), types.SweepRequest{EnvelopeID: "env-a"})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeIgnored, res.Outcome)
}

func TestCheck_RequiresEnvelope(t *testing.T) {
	f := newFixture(nil)
	_, err := f.sweeper.Check(context.Background(), types.SweepRequest{})
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	f := newFixture(&fakeLister{keys: []string{"contratos-gerados/joao-silva-joao@email.com.pdf"}})
	f.store.Put(testutil.SentRecord("Ana", "ana@example.org", "env-b", now.Add(-5*time.Hour)))
	f.gateway.Reports["env-b"] = envelope.StatusReport{EnvelopeID: "env-b", Status: "voided"}

	rep, err := f.sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Backfilled)
	assert.Equal(t, 1, rep.Recovered)
	testutil.RequireStatus(t, f.store, "ana@example.org", types.ContractVoided)
}
