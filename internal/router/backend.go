package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

const backendTimeout = 120 * time.Second

// httpBackend is a Backend that talks the same OpenAI-compatible
// /v1/chat/completions wire protocol as the core dispatcher, used by
// both the "local" and "vllm" router backend types (the Python originals
// differ only in response-shape tolerance; this port folds both into one
// lenient extractor).
type httpBackend struct {
	baseURL string
	client  *http.Client
}

func newHTTPBackend(url string) *httpBackend {
	return &httpBackend{
		baseURL: strings.TrimRight(url, "/"),
		client:  &http.Client{Timeout: backendTimeout},
	}
}

func (b *httpBackend) buildRequest(prompt string, stream bool) []byte {
	payload := map[string]any{
		"model":    "default",
		"messages": []map[string]string{{"role": "user", "content": prompt}},
		"stream":   stream,
	}
	data, _ := json.Marshal(payload)
	return data
}

func (b *httpBackend) Generate(ctx context.Context, prompt string) (string, error) {
	body := b.buildRequest(prompt, false)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return textFromResponse(out), nil
}

func (b *httpBackend) GenerateStream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	contents := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(contents)
		defer close(errs)

		body := b.buildRequest(prompt, true)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.client.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			part := strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			if part == "[DONE]" {
				return
			}
			var obj map[string]any
			if err := json.Unmarshal([]byte(part), &obj); err != nil {
				continue
			}
			choices, _ := obj["choices"].([]any)
			for _, c := range choices {
				choice, ok := c.(map[string]any)
				if !ok {
					continue
				}
				delta, _ := choice["delta"].(map[string]any)
				content, _ := delta["content"].(string)
				if content != "" {
					select {
					case contents <- content:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return contents, errs
}

// textFromResponse mirrors backends/local_backend.py's lenient
// extractor: prefer a top-level "content" field, else the first
// choice's message/delta content or text field.
func textFromResponse(obj map[string]any) string {
	if content, ok := obj["content"].(string); ok && content != "" {
		return strings.TrimSpace(content)
	}
	choices, _ := obj["choices"].([]any)
	for _, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		msg, _ := choice["message"].(map[string]any)
		if msg == nil {
			msg, _ = choice["delta"].(map[string]any)
		}
		if msg == nil {
			continue
		}
		if text, ok := msg["content"].(string); ok && text != "" {
			return strings.TrimSpace(text)
		}
		if text, ok := msg["text"].(string); ok && text != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}
