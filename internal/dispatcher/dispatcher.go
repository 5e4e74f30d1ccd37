// Package dispatcher forwards chat requests to upstream llama.cpp-style
// backends, round-robin across configured endpoints, with unary and
// streaming (SSE) variants.
package dispatcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"
)

const requestTimeout = 60 * time.Second

// Chunk is a streaming chat-completion chunk. It is kept as a generic map
// rather than a fixed struct because the dispatcher must preserve
// whatever fields an upstream backend sends while only overwriting `id`
// and conditionally filling `model`.
type Chunk map[string]any

// Dispatcher round-robins chat requests across a fixed set of endpoints.
type Dispatcher struct {
	endpoints []string
	modelID   string
	client    *http.Client

	mu    sync.Mutex
	index int
}

// New returns a Dispatcher targeting endpoints (may be empty) using
// modelID in unary chat payloads.
func New(endpoints []string, modelID string) *Dispatcher {
	return &Dispatcher{
		endpoints: endpoints,
		modelID:   modelID,
		client:    &http.Client{Timeout: requestTimeout},
	}
}

// HasBackends reports whether any endpoint is configured.
func (d *Dispatcher) HasBackends() bool {
	return len(d.endpoints) > 0
}

// NextEndpoint returns the next endpoint in round-robin order, or "" if
// none are configured.
func (d *Dispatcher) NextEndpoint() string {
	if len(d.endpoints) == 0 {
		return ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	endpoint := d.endpoints[d.index%len(d.endpoints)]
	d.index = (d.index + 1) % len(d.endpoints)
	return endpoint
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Chat sends a non-streaming chat request to the next endpoint. Returns
// "", false on no configured endpoints, any transport/decode failure, or
// an empty choices list — callers fall back to the echo runner in all of
// these cases.
func (d *Dispatcher) Chat(ctx context.Context, prompt string) (string, bool) {
	endpoint := d.NextEndpoint()
	if endpoint == "" {
		return "", false
	}

	body, err := json.Marshal(chatRequest{
		Model:    d.modelID,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpoint, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false
	}
	if len(parsed.Choices) == 0 {
		return "", false
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), true
}

// ChatStream streams chat completion chunks from the next endpoint onto
// the returned channel, closing it when the backend's response is
// exhausted, a [DONE] sentinel is seen, or ctx is cancelled. The consumer
// can stop early by cancelling ctx; the producer goroutine then closes
// the upstream response body without leaking the connection.
func (d *Dispatcher) ChatStream(ctx context.Context, prompt, requestID, modelID string) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	endpoint := d.NextEndpoint()
	if endpoint == "" {
		close(chunks)
		close(errs)
		return chunks, errs
	}

	go func() {
		defer close(chunks)
		defer close(errs)

		body, err := json.Marshal(chatRequest{
			Model:    modelID,
			Messages: []chatMessage{{Role: "user", Content: prompt}},
			Stream:   true,
		})
		if err != nil {
			errs <- err
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpoint, "/")+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		contentType := strings.ToLower(resp.Header.Get("Content-Type"))
		if strings.Contains(contentType, "application/json") {
			emitSyntheticChunk(ctx, resp, requestID, modelID, chunks)
			return
		}

		scanLinesAsSSE(ctx, resp, requestID, modelID, chunks)
	}()

	return chunks, errs
}

// emitSyntheticChunk handles a backend that ignored stream:true and
// replied with a plain unary JSON body: parse it and emit exactly one
// synthetic chunk.
func emitSyntheticChunk(ctx context.Context, resp *http.Response, requestID, modelID string, chunks chan<- Chunk) {
	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return
	}
	if len(parsed.Choices) == 0 {
		return
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	chunk := Chunk{
		"id":     requestID,
		"object": "chat.completion.chunk",
		"model":  modelID,
		"choices": []any{
			map[string]any{
				"index": 0,
				"delta": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
	}
	select {
	case chunks <- chunk:
	case <-ctx.Done():
	}
}

// scanLinesAsSSE parses resp's body as line-oriented SSE: `data: <json>`
// frames and a terminal `data: [DONE]` line. Malformed JSON frames are
// skipped without aborting the stream.
func scanLinesAsSSE(ctx context.Context, resp *http.Response, requestID, modelID string, chunks chan<- Chunk) {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		if payload == "[DONE]" {
			return
		}

		var chunk Chunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		chunk["id"] = requestID
		if model, ok := chunk["model"]; !ok || model == "" || model == nil {
			chunk["model"] = modelID
		}

		select {
		case chunks <- chunk:
		case <-ctx.Done():
			return
		}
	}
}
