package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/membria/membria-core/internal/calibration"
	"github.com/membria/membria-core/internal/config"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/outcome"
	"github.com/membria/membria-core/internal/store"
)

func openTestServer(t *testing.T, secret string) (*Server, *store.GraphStore) {
	t.Helper()
	gs, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { gs.Close() })

	calc := calibration.New(gs)
	tracker := outcome.New(gs, calc, func() int64 { return 1_700_000_000 })
	cfg := config.DefaultStore()
	if secret != "" {
		cfg.Set("webhook.hmac_secret", secret)
	}
	return New(gs, tracker, cfg), gs
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := openTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")
}

func TestGitHubPushWithoutSecretSkipsVerification(t *testing.T) {
	srv, gs := openTestServer(t, "")
	body := []byte(`{"head_commit":{"id":"abc123","message":"fix storage via dec_0123456789ab"},"repository":{"full_name":"acme/widgets"}}`)
	req := httptest.NewRequest(http.MethodPost, "/github/push", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])

	o, err := gs.GetOutcomeByDecision("dec_0123456789ab")
	require.NoError(t, err)
	require.Equal(t, "abc123", o.CommitSHA)
}

func TestGitHubPushRejectsBadSignatureWhenSecretConfigured(t *testing.T) {
	srv, _ := openTestServer(t, "s3cr3t")
	body := []byte(`{"head_commit":{"id":"abc","message":"dec_0123456789ab"}}`)
	req := httptest.NewRequest(http.MethodPost, "/github/push", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGitHubPushAcceptsValidSignature(t *testing.T) {
	srv, _ := openTestServer(t, "s3cr3t")
	body := []byte(`{"head_commit":{"id":"abc","message":"dec_0123456789ab"}}`)
	req := httptest.NewRequest(http.MethodPost, "/github/push", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", sign("s3cr3t", body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGitHubPushWithNoDecisionIDIsIgnored(t *testing.T) {
	srv, _ := openTestServer(t, "")
	body := []byte(`{"head_commit":{"id":"abc","message":"unrelated change"}}`)
	req := httptest.NewRequest(http.MethodPost, "/github/push", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ignored")
}

func TestGitHubPullRequestMergedRecordsSignal(t *testing.T) {
	srv, gs := openTestServer(t, "")
	body := []byte(`{"action":"closed","pull_request":{"title":"dec_0123456789ab","number":42,"merged":true}}`)
	req := httptest.NewRequest(http.MethodPost, "/github/pull_request", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	o, err := gs.GetOutcomeByDecision("dec_0123456789ab")
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeMerged, o.Status)
}

func TestCIEventRecordsResult(t *testing.T) {
	srv, gs := openTestServer(t, "")
	o := &domain.Outcome{ID: "oc_1", DecisionID: "dec_0123456789ab", Status: domain.OutcomePending}
	require.NoError(t, gs.PutOutcome(o))

	body, _ := json.Marshal(map[string]any{
		"decision_id": "dec_0123456789ab", "event_type": "deploy", "passed": true,
	})
	req := httptest.NewRequest(http.MethodPost, "/ci/event", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	reloaded, err := gs.GetOutcome("oc_1")
	require.NoError(t, err)
	require.NotEmpty(t, reloaded.Signals)
}

func TestCIEventIsIdempotent(t *testing.T) {
	srv, gs := openTestServer(t, "")
	body, _ := json.Marshal(map[string]any{
		"decision_id": "dec_0123456789ab", "event_type": "deploy", "passed": true,
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/ci/event", strings.NewReader(string(body)))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	o, err := gs.GetOutcomeByDecision("dec_0123456789ab")
	require.NoError(t, err)
	require.Len(t, o.Signals, 1)
}

func TestCIEventWithNoDecisionIDIsIgnored(t *testing.T) {
	srv, _ := openTestServer(t, "")
	body, _ := json.Marshal(map[string]any{"event_type": "deploy", "passed": true})
	req := httptest.NewRequest(http.MethodPost, "/ci/event", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ignored")
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv, _ := openTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
