// Package webhook receives GitHub webhook deliveries, evaluates trigger
// rules, and publishes accepted events as run requests. It also serves a
// small read API over the run store.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gantry-runner/src/broker"
	"gantry-runner/src/contracts"
	"gantry-runner/src/logger"
	"gantry-runner/src/pipeline"
	"gantry-runner/src/store"
	"gantry-runner/src/trigger"
)

// FileLister resolves the changed-file list for a pull request. The GitHub
// API client implements it; tests stub it.
type FileLister interface {
	ListPullRequestFiles(ctx context.Context, repo string, number int) ([]string, error)
}

// Server is the webhook receiver.
type Server struct {
	router *chi.Mux
	rules  trigger.Rules
	broker broker.Broker
	store  store.Store
	files  FileLister
	secret string
	log    logger.Logger
}

// NewServer creates a webhook server. files may be nil, in which case pull
// request events are rejected for lack of a changed-file source. secret
// enables signature verification when non-empty.
func NewServer(rules trigger.Rules, b broker.Broker, st store.Store, files FileLister, secret string, log logger.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		rules:  rules,
		broker: b,
		store:  st,
		files:  files,
		secret: secret,
		log:    log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)

	s.router.Post("/webhook/github", s.handleGithub)
	s.router.Get("/runs", s.handleListRuns)
	s.router.Get("/runs/{runID}", s.handleGetRun)
	s.router.Get("/healthz", s.handleHealth)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// triggerResponse is the body returned for a webhook delivery.
type triggerResponse struct {
	Triggered bool   `json:"triggered"`
	RunID     string `json:"run_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) handleGithub(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if s.secret != "" && !s.verifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
		s.log.Error("Rejected webhook delivery with bad signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	switch eventType {
	case "ping":
		writeJSON(w, http.StatusOK, triggerResponse{Triggered: false, Reason: "pong"})
	case "push":
		s.handlePush(w, r, body)
	case "pull_request":
		s.handlePullRequest(w, r, body)
	default:
		writeJSON(w, http.StatusOK, triggerResponse{
			Triggered: false,
			Reason:    fmt.Sprintf("event type %q not handled", eventType),
		})
	}
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request, body []byte) {
	event, err := trigger.ParsePushEvent(body)
	if err != nil {
		s.log.Info("Ignoring push delivery: %v", err)
		writeJSON(w, http.StatusOK, triggerResponse{Triggered: false, Reason: err.Error()})
		return
	}
	s.evaluate(w, r, event)
}

func (s *Server) handlePullRequest(w http.ResponseWriter, r *http.Request, body []byte) {
	event, number, ok, err := trigger.ParsePullRequestEvent(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, triggerResponse{Triggered: false, Reason: "pull request action not handled"})
		return
	}
	if s.files == nil {
		http.Error(w, "no GitHub API client configured for pull request events", http.StatusNotImplemented)
		return
	}

	paths, err := s.files.ListPullRequestFiles(r.Context(), event.Repo, number)
	if err != nil {
		s.log.Error("Failed to list files for %s#%d: %v", event.Repo, number, err)
		http.Error(w, "failed to resolve changed files", http.StatusBadGateway)
		return
	}
	event.ChangedPaths = paths

	s.evaluate(w, r, event)
}

// evaluate applies the trigger rules and, for an accepted event, records the
// run and publishes the request for a runner agent to pick up.
func (s *Server) evaluate(w http.ResponseWriter, r *http.Request, event contracts.TriggerEvent) {
	if !s.rules.ShouldRun(event) {
		s.log.Debug("Event on %s did not match trigger rules", event.Ref())
		writeJSON(w, http.StatusOK, triggerResponse{Triggered: false, Reason: "trigger rules not matched"})
		return
	}

	runID := pipeline.NewRunID()
	ctx := r.Context()

	if s.store != nil {
		if err := s.store.CreateRun(ctx, runID, event); err != nil {
			s.log.Error("Failed to record run %s: %v", runID, err)
			http.Error(w, "failed to record run", http.StatusInternalServerError)
			return
		}
	}

	request := contracts.RunRequest{RunID: runID, Event: event}
	payload, err := json.Marshal(request)
	if err != nil {
		http.Error(w, "failed to encode run request", http.StatusInternalServerError)
		return
	}
	if err := s.broker.Publish(ctx, contracts.TopicTriggers, runID, payload); err != nil {
		s.log.Error("Failed to publish run request %s: %v", runID, err)
		http.Error(w, "failed to publish run request", http.StatusInternalServerError)
		return
	}

	s.log.Info("Accepted %s on %s as %s", event.Kind, event.Ref(), runID)
	writeJSON(w, http.StatusAccepted, triggerResponse{Triggered: true, RunID: runID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no run store configured", http.StatusNotImplemented)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("Failed to list runs: %v", err)
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no run store configured", http.StatusNotImplemented)
		return
	}

	runID := chi.URLParam(r, "runID")
	result, err := s.store.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("Failed to get run %s: %v", runID, err)
		http.Error(w, "failed to get run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// verifySignature checks the X-Hub-Signature-256 header against the shared
// secret.
func (s *Server) verifySignature(header string, body []byte) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header[len(prefix):]))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
