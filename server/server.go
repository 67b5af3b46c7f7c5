// server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sammcj/agentloop/agent"
	"github.com/sammcj/agentloop/types"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/semaphore"
)

const (
	defaultInstruction = "Explain this file"
	suggestMaxTokens   = 150
	suggestTemperature = 0.2
	maxRequestBody     = 4 << 20
)

// Runner starts agent runs. *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, req agent.Request) <-chan agent.Chunk
}

// Options configures the HTTP server
type Options struct {
	Host          string
	Port          int
	MaxConcurrent int
	// InlineModel overrides the model used by /suggest.
	InlineModel string
	// StuckAfter is the age at which an in-flight run is reported.
	StuckAfter time.Duration
}

// Server exposes the agent over HTTP
type Server struct {
	opts    Options
	runner  Runner
	model   agent.Model
	sem     *semaphore.Weighted
	tracker *RunTracker
	logger  logrus.FieldLogger
	srv     *http.Server
}

// ChatRequest represents an incoming chat request
type ChatRequest struct {
	Message       string          `json:"message"`
	History       []types.Message `json:"history"`
	WorkspacePath string          `json:"workspace_path"`
}

// FileRequest asks the agent about one file
type FileRequest struct {
	FileContent string  `json:"file_content"`
	FilePath    string  `json:"file_path"`
	Instruction *string `json:"instruction"`
}

// SuggestRequest asks for an inline completion
type SuggestRequest struct {
	CodeBeforeCursor string `json:"code_before_cursor"`
	Language         string `json:"language"`
}

// SuggestResponse is the inline completion result
type SuggestResponse struct {
	Suggestion string `json:"suggestion"`
	Error      string `json:"error,omitempty"`
}

// New creates a new server instance
func New(opts Options, runner Runner, model agent.Model, logger logrus.FieldLogger) *Server {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.StuckAfter <= 0 {
		opts.StuckAfter = 5 * time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		opts:    opts,
		runner:  runner,
		model:   model,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		tracker: NewRunTracker(opts.StuckAfter, time.Minute, logger),
		logger:  logger,
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routes wrapped with CORS and tracing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/explain-file", s.handleExplainFile)
	mux.HandleFunc("/suggest", s.handleSuggest)
	mux.HandleFunc("/health", s.handleHealth)

	return otelhttp.NewHandler(withCORS(mux), "agentloop.http")
}

// Start listens and serves until the server is shut down
func (s *Server) Start() error {
	s.logger.WithField("addr", s.srv.Addr).Info("Starting server")
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// HTTPServer returns the underlying server.
func (s *Server) HTTPServer() *http.Server {
	return s.srv
}

// Tracker returns the in-flight run tracker.
func (s *Server) Tracker() *RunTracker {
	return s.tracker
}

// handleChat streams an agent run for a chat message
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.stream(w, r, "chat", agent.Request{
		Message:       req.Message,
		History:       req.History,
		WorkspacePath: req.WorkspacePath,
	})
}

// handleExplainFile streams an agent run about a single file
func (s *Server) handleExplainFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req FileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	instruction := defaultInstruction
	if req.Instruction != nil {
		instruction = *req.Instruction
	}
	s.stream(w, r, "explain-file", agent.Request{Message: ExplainPrompt(req.FilePath, req.FileContent, instruction)})
}

// ExplainPrompt builds the user message for /explain-file.
func ExplainPrompt(path, content, instruction string) string {
	return fmt.Sprintf("File: %s\n```\n%s\n```\n%s", path, content, instruction)
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, label string, req agent.Request) {
	if !s.sem.TryAcquire(1) {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "Too many concurrent requests", http.StatusServiceUnavailable)
		return
	}
	defer s.sem.Release(1)

	id := s.tracker.Track(label)
	defer s.tracker.Done(id)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	// Cancelling on return stops the run if the client goes away mid-stream.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for chunk := range s.runner.Run(ctx, req) {
		if _, err := w.Write([]byte(chunk.Text)); err != nil {
			s.logger.WithError(err).Debug("client disconnected")
			cancel()
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleSuggest returns a short inline completion without tools
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SuggestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	temperature := suggestTemperature
	msgs := []types.Message{
		{Role: types.RoleSystem, Content: agent.InlinePrompt},
		{Role: types.RoleUser, Content: fmt.Sprintf("Language: %s\nCode:\n%s", req.Language, req.CodeBeforeCursor)},
	}

	var resp SuggestResponse
	reply, err := s.model.Complete(r.Context(), msgs, types.CompletionOptions{
		Model:       s.opts.InlineModel,
		MaxTokens:   suggestMaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		s.logger.WithError(err).Warn("inline suggestion failed")
		resp.Error = err.Error()
	} else {
		resp.Suggestion = strings.TrimSpace(reply)
	}

	s.writeJSON(w, resp)
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, map[string]string{
		"status":  "ok",
		"message": "Agent backend is running",
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Debug("failed to write response")
	}
}

// withCORS allows the editor webview, which runs on its own origin, to call
// the server.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
