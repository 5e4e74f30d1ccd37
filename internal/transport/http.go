// Package transport implements the relayserve HTTP surface: a thin
// net/http layer that hands prompts to the engine and formats its
// replies, leaving all batching/scheduling/dispatch semantics to
// internal/engine.
package transport

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/relayserve/relayserve/internal/config"
	"github.com/relayserve/relayserve/internal/engine"
)

// Server is the relayserve HTTP front end.
type Server struct {
	settings config.Settings
	engine   *engine.Engine
	mux      *http.ServeMux
}

// New builds a Server wired to engine using settings for pretty-printing
// defaults and the model id reported at /v1/models.
func New(settings config.Settings, eng *engine.Engine) *Server {
	s := &Server{settings: settings, engine: eng, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ListenAndServe starts the HTTP server on addr with explicit timeouts
// rather than net/http.ListenAndServe's bare defaults.
func (s *Server) ListenAndServe(addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return httpServer.ListenAndServe()
}

// Handler exposes the underlying mux, e.g. for tests via httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/models", s.handleModels)
	s.mux.HandleFunc("/metrics", s.handleMetrics)
	s.mux.HandleFunc("/debug/shard", s.handleShardDebug)
	s.mux.HandleFunc("/v1/chat/completions", s.handleChat)
	s.mux.HandleFunc("/v1/chat/pretty", s.handleChat)
	s.registerPrometheus()
}

// registerPrometheus mounts the Prometheus exposition format at
// /metrics/prom, separate from the JSON /metrics report. A private
// registry is used so repeated Server
// construction in tests never collides with prometheus.DefaultRegisterer.
func (s *Server) registerPrometheus() {
	reg := prometheus.NewRegistry()
	if err := s.engine.Collector().RegisterPrometheus(reg); err != nil {
		logrus.Warnf("transport: prometheus registration failed: %v", err)
		return
	}
	s.mux.Handle("/metrics/prom", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"data": []map[string]string{{"id": s.settings.ModelID, "object": "model"}},
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.MetricsReport())
}

func (s *Server) handleShardDebug(w http.ResponseWriter, r *http.Request) {
	report := s.engine.MetricsReport()
	s.writeJSON(w, http.StatusOK, report.ShardPlan)
}

type chatPayload struct {
	Messages []chatMessage `json:"messages"`
	Format   string        `json:"format"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		return
	}

	var payload chatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_json"})
		return
	}

	prompt := extractPrompt(payload.Messages)
	if prompt == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing_prompt"})
		return
	}

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		var b [16]byte
		_, _ = rand.Read(b[:])
		requestID = hex.EncodeToString(b[:])
	}
	w.Header().Set("X-Request-ID", requestID)

	if payload.Stream {
		s.handleChatStream(w, r, prompt, requestID)
		return
	}

	result := s.engine.HandleChat(r.Context(), prompt, requestID)
	if r.URL.Path == "/v1/chat/pretty" || s.preferPretty(r, payload) {
		s.writeText(w, http.StatusOK, formatPrettyText(result))
		return
	}

	response := formatChatResponse(requestID, s.settings.ModelID, prompt, result)
	s.writeJSON(w, http.StatusOK, response)
}

// handleChatStream writes prompt's reply as an SSE chunk sequence, one
// `data: <json>\n\n` frame per chunk from the engine's streaming path,
// terminated by a `data: [DONE]\n\n` sentinel.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request, prompt, requestID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming_unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for chunk := range s.engine.HandleChatStream(r.Context(), prompt, requestID) {
		data, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// preferPretty mirrors relay/internal/server/http_server.py's
// `_prefer_pretty`: only kicks in when PRETTY_DEFAULT is set, and is
// overridden by an explicit Accept: application/json header or a
// `"format": "json"` field in the request body.
func (s *Server) preferPretty(r *http.Request, payload chatPayload) bool {
	if !s.settings.PrettyDefault {
		return false
	}
	accept := strings.ToLower(r.Header.Get("Accept"))
	if strings.Contains(accept, "application/json") {
		return false
	}
	if payload.Format == "json" {
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if s.settings.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(payload)
}

func (s *Server) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func extractPrompt(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

func formatChatResponse(requestID, modelID, prompt string, result engine.Result) map[string]any {
	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(result.Reply))
	return map[string]any{
		"id":     requestID,
		"object": "chat.completion",
		"model":  modelID,
		"relay":  result.Meta,
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": result.Reply},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
		},
	}
}

func formatPrettyText(result engine.Result) string {
	var b strings.Builder
	b.WriteString("\033[1;36mRelay Response\033[0m\n")
	b.WriteString("\033[1;32mReply:\033[0m " + result.Reply + "\n")
	b.WriteString("\033[1;34mDevice:\033[0m " + result.Meta.Device + "\n")
	b.WriteString("\033[1;35mBackend:\033[0m " + result.Meta.Backend + "\n")
	b.WriteString("\033[1;33mQueue:\033[0m " + strconv.FormatFloat(result.Meta.QueueMs, 'f', 2, 64) + " ms | ")
	b.WriteString("\033[1;33mTTFT:\033[0m " + strconv.FormatFloat(result.Meta.TTFTMs, 'f', 2, 64) + " ms | ")
	b.WriteString("\033[1;33mBatch:\033[0m " + strconv.Itoa(result.Meta.BatchSize) + "\n")
	return b.String()
}
