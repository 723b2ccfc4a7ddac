package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/contractsync/internal/connectsig"
	"github.com/dwsmith1983/contractsync/internal/reconcile"
	"github.com/dwsmith1983/contractsync/internal/server/handlers"
	"github.com/dwsmith1983/contractsync/internal/testutil"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

const completedBody = `{"event":"envelope-completed","data":{"envelopeId":"env-1","status":"completed",
  "statusChangedDateTime":"2025-10-28T13:47:30Z","recipients":{"signers":[{"email":"ana@example.org","name":"Ana"}]}}}`

type testServer struct {
	*httptest.Server
	store    *testutil.MockStore
	notifier *testutil.RecordingNotifier
}

func setupTestServer(t *testing.T, prepare ...func(*testutil.MockStore)) *testServer {
	t.Helper()
	return setupTestServerWithOpts(t, nil, "", 0, prepare...)
}

func setupTestServerWithOpts(t *testing.T, verifier *connectsig.Verifier, apiKey string, maxBody int64, prepare ...func(*testutil.MockStore)) *testServer {
	t.Helper()
	st := testutil.NewMockStore()
	st.Put(testutil.SentRecord("Ana", "ana@example.org", "env-1", time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC)))
	for _, p := range prepare {
		p(st)
	}
	n := &testutil.RecordingNotifier{}
	h := handlers.New(st, reconcile.New(st, n), verifier)
	srv := New(":0", h, apiKey, maxBody)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: st, notifier: n}
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestLivenessEndpoints(t *testing.T) {
	ts := setupTestServer(t)

	for _, path := range []string{"/", "/webhook"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		body := decode(t, resp)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, handlers.ServiceName, body["service"])
		assert.NotEmpty(t, body["timestamp"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", decode(t, resp)["status"])

	ts = setupTestServer(t, func(s *testutil.MockStore) { s.GetErr = errors.New("connection refused") })
	resp, err = http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", decode(t, resp)["status"])
}

func TestWebhook_AppliesCompletion(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(completedBody))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "applied", body["outcome"])
	assert.Equal(t, "ana@example.org", body["email"])

	testutil.RequireStatus(t, ts.store, "ana@example.org", types.ContractSigned)
	assert.Len(t, ts.notifier.Notifications(), 1)

	// Redelivery is a duplicate.
	resp, err = http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(completedBody))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", decode(t, resp)["outcome"])
	assert.Len(t, ts.notifier.Notifications(), 1)
}

func TestWebhook_ErrorMapping(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"unrecognized", `{"hello":"world"}`, http.StatusBadRequest, "UnrecognizedPayload"},
		{"not json", `nope`, http.StatusBadRequest, "UnrecognizedPayload"},
		{"unknown envelope", `{"data":{"envelopeId":"env-404","status":"completed"}}`, http.StatusOK, "RecordNotFound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			assert.Equal(t, tt.wantErr, decode(t, resp)["code"])
		})
	}
}

func TestWebhook_ConflictAnswers200(t *testing.T) {
	ts := setupTestServer(t)
	rec := testutil.SentRecord("Ana", "ana@example.org", "env-1", time.Now())
	rec.Status = types.ContractDeclined
	ts.store.Put(rec)

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(completedBody))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ConflictingTerminalState", decode(t, resp)["code"])
	testutil.RequireStatus(t, ts.store, "ana@example.org", types.ContractDeclined)
}

func TestWebhook_StoreFailureIs500(t *testing.T) {
	ts := setupTestServer(t, func(s *testutil.MockStore) { s.GetErr = errors.New("throttled") })

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(completedBody))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "StoreUnavailable", body["code"])
	assert.Equal(t, "internal error", body["error"])
}

func TestWebhook_Signature(t *testing.T) {
	ts := setupTestServerWithOpts(t, connectsig.New("s3cret"), "", 0)

	post := func(sig string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/webhook", strings.NewReader(completedBody))
		require.NoError(t, err)
		if sig != "" {
			req.Header.Set(connectsig.HeaderPrefix+"1", sig)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := post("")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "InvalidSignature", decode(t, resp)["code"])

	resp = post(connectsig.Sign("wrong", []byte(completedBody)))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
	testutil.RequireStatus(t, ts.store, "ana@example.org", types.ContractSent)

	resp = post(connectsig.Sign("s3cret", []byte(completedBody)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	testutil.RequireStatus(t, ts.store, "ana@example.org", types.ContractSigned)
}

func TestWebhook_MaxBody(t *testing.T) {
	ts := setupTestServerWithOpts(t, nil, "", 16)

	resp, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(completedBody))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestGetContract(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/contracts/Ana@Example.org")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "env-1", body["envelopeId"])
	assert.Equal(t, "SENT", body["status"])

	resp, err = http.Get(ts.URL + "/api/contracts/nobody@example.org")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIKeyMiddleware(t *testing.T) {
	ts := setupTestServerWithOpts(t, nil, "k3y", 0)

	resp, err := http.Get(ts.URL + "/api/contracts/ana@example.org")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Unauthorized", decode(t, resp)["code"])

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/contracts/ana@example.org", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "k3y")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// Health and the webhook stay open.
	resp, err = http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Post(ts.URL+"/webhook", "application/json", strings.NewReader(completedBody))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRequestIDPropagation(t *testing.T) {
	ts := setupTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}
