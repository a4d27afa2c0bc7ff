// Package webhook implements the webhook ingestion surface of spec.md
// §4.K: GitHub and generic CI events arrive over HTTP, are translated
// into §4.C outcome signals, and acknowledged idempotently. Routing and
// middleware follow go-chi/chi/v5's standard idiom (the pack carries no
// concrete chi route-registration file to port from — see DESIGN.md);
// the translator itself (decision-id extraction, signature verification,
// idempotency) is grounded directly on spec.md §4.K's prose and on
// original_source/src/membria/webhook_server.py's six-endpoint surface.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/membria/membria-core/internal/apperr"
	"github.com/membria/membria-core/internal/config"
	"github.com/membria/membria-core/internal/domain"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/metrics"
	"github.com/membria/membria-core/internal/outcome"
	"github.com/membria/membria-core/internal/store"
)

var decisionIDPattern = regexp.MustCompile(`dec_[0-9a-f]+`)

// Server is the HTTP listener for GitHub and CI webhooks (§4.K).
type Server struct {
	gs      *store.GraphStore
	tracker *outcome.Tracker
	cfg     *config.Store

	mu   sync.Mutex
	seen map[string]struct{} // idempotency: "eventID|outcomeID|signalType"
}

// New constructs a webhook Server. cfg supplies webhook.hmac_secret; when
// unset, signature verification is skipped and a warning is logged per
// request.
func New(gs *store.GraphStore, tracker *outcome.Tracker, cfg *config.Store) *Server {
	return &Server{gs: gs, tracker: tracker, cfg: cfg, seen: make(map[string]struct{})}
}

// Router builds the chi mux exposing the endpoints of §4.K plus
// GET /health and GET /metrics (the daemon's Prometheus scrape surface).
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Hub-Signature-256"},
	}))

	r.Post("/github/push", s.handleGitHub("push"))
	r.Post("/github/pull_request", s.handleGitHub("pull_request"))
	r.Post("/github/workflow_run", s.handleGitHub("workflow_run"))
	r.Post("/github/check_run", s.handleGitHub("check_run"))
	r.Post("/ci/event", s.handleCIEvent)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleGitHub(eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawBody, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "unreadable body"})
			return
		}

		if !s.verifySignature(rawBody, r.Header.Get("X-Hub-Signature-256")) {
			metrics.WebhookEvents.WithLabelValues("github", "rejected").Inc()
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": "signature verification failed"})
			return
		}

		var payload map[string]any
		if err := json.Unmarshal(rawBody, &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "invalid json"})
			return
		}

		result, err := s.translateGitHub(r.Context(), eventType, payload, eventIDFor(r, rawBody))
		s.respond(w, "github", result, err)
	}
}

func (s *Server) handleCIEvent(w http.ResponseWriter, r *http.Request) {
	var payload ciEventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "invalid json"})
		return
	}
	result, err := s.translateCIEvent(r.Context(), payload)
	s.respond(w, "ci", result, err)
}

func (s *Server) respond(w http.ResponseWriter, source string, result translateResult, err error) {
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(source, "error").Inc()
		status := http.StatusInternalServerError
		if apperr.KindOf(err) == apperr.InvalidArgument || apperr.KindOf(err) == apperr.NotFound {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	if result.Ignored {
		metrics.WebhookEvents.WithLabelValues(source, "ignored").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	metrics.WebhookEvents.WithLabelValues(source, "ok").Inc()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "outcome_id": result.OutcomeID})
}

type translateResult struct {
	Ignored   bool
	OutcomeID string
}

type ciEventPayload struct {
	DecisionID string         `json:"decision_id"`
	EventType  string         `json:"event_type"`
	Passed     bool           `json:"passed"`
	Details    map[string]any `json:"details"`
}

// verifySignature checks X-Hub-Signature-256 (a "sha256=<hex>" prefixed
// HMAC over the raw body) when webhook.hmac_secret is configured.
// Verification is skipped, with a logged warning, when it is not.
func (s *Server) verifySignature(rawBody []byte, signatureHeader string) bool {
	secret := ""
	if s.cfg != nil {
		secret = s.cfg.GetString("webhook.hmac_secret")
	}
	if secret == "" {
		logging.Get(logging.CategoryWebhook).Warn("webhook.hmac_secret not configured; skipping signature verification")
		return true
	}
	const prefix = "sha256="
	if len(signatureHeader) <= len(prefix) || signatureHeader[:len(prefix)] != prefix {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader[len(prefix):]))
}

// eventIDFor derives a stable idempotency key for a GitHub event: its
// X-GitHub-Delivery header when present, else a hash of the raw body.
func eventIDFor(r *http.Request, rawBody []byte) string {
	if id := r.Header.Get("X-GitHub-Delivery"); id != "" {
		return id
	}
	sum := sha256.Sum256(rawBody)
	return hex.EncodeToString(sum[:8])
}

// markSeen reports whether (eventID, outcomeID, signalType) was already
// processed, recording it if not (§4.K: "idempotent per (event id,
// outcome id, signal type)").
func (s *Server) markSeen(eventID, outcomeID, signalType string) bool {
	key := eventID + "|" + outcomeID + "|" + signalType
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return true
	}
	s.seen[key] = struct{}{}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// extractDecisionID looks for a dec_<hex> token in any of the supplied
// candidate strings (commit message body, PR title/body), in order,
// returning the first match.
func extractDecisionID(candidates ...string) string {
	for _, c := range candidates {
		if m := decisionIDPattern.FindString(c); m != "" {
			return m
		}
	}
	return ""
}

// locateOrCreateOutcome finds the Outcome for decisionID, creating a
// fresh pending one if none exists yet.
func (s *Server) locateOrCreateOutcome(decisionID string) (*domain.Outcome, error) {
	o, err := s.gs.GetOutcomeByDecision(decisionID)
	if err == nil {
		return o, nil
	}
	if apperr.KindOf(err) != apperr.NotFound {
		return nil, err
	}
	o = &domain.Outcome{
		ID:         "outcome_" + decisionID,
		DecisionID: decisionID,
		Status:     domain.OutcomePending,
	}
	if err := s.gs.PutOutcome(o); err != nil {
		return nil, err
	}
	return o, nil
}
