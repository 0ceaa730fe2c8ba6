// Package llmclient implements a non-streaming and streaming chat-completion
// client against an OpenAI-compatible LLM endpoint, with output-length and
// temperature banding, SSE stream normalization, and chain-of-thought
// artifact stripping.
package llmclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ferg-cod3s/docuforge/internal/docgen/errs"
)

// ContentType selects the temperature band and system-prompt structure.
type ContentType string

const (
	ContentCode ContentType = "code"
	ContentText ContentType = "text"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (tests use this to
// point at an httptest.Server with a tight timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New constructs a Client for the given base URL and model.
func New(baseURL, model, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxOutputTokens bands max_tokens by input length in characters, per the
// fixed thresholds in the external interfaces contract.
func MaxOutputTokens(inputChars int) int {
	switch {
	case inputChars <= 2000:
		return 2500
	case inputChars <= 5000:
		return 3000
	case inputChars <= 10000:
		return 4000
	case inputChars <= 20000:
		return 5000
	case inputChars <= 50000:
		return 6000
	default:
		return 8000
	}
}

// Temperature bands by content type.
func Temperature(contentType ContentType) float64 {
	if contentType == ContentCode {
		return 0.15
	}
	return 0.20
}

// LLMClient is the external generation collaborator abstraction that
// outline, chapter, and engine depend on in place of the concrete HTTP
// client, so callers can substitute a fake in tests without touching
// transport code.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	ChatStream(ctx context.Context, messages []Message, temperature, topP float64) (<-chan string, <-chan error)
}

// GenerateOptions configures a non-streaming generate call.
type GenerateOptions struct {
	ContentType ContentType
	Title       string
	FileCount   int
	Timeout     time.Duration
	Temperature *float64 // overrides the content-type band when set
}

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p,omitempty"`
	MaxTokens        int       `json:"max_tokens"`
	Stream           bool      `json:"stream"`
	FrequencyPenalty float64   `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64   `json:"presence_penalty,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate issues a single non-streaming chat completion and returns
// cleaned, thinking-artifact-free text.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	temp := Temperature(opts.ContentType)
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	maxTokens := MaxOutputTokens(len(prompt))

	req := chatRequest{
		Model:            c.model,
		Messages:         []Message{{Role: "user", Content: prompt}},
		Temperature:      temp,
		TopP:             0.9,
		MaxTokens:        maxTokens,
		Stream:           false,
		FrequencyPenalty: 0.1,
		PresencePenalty:  0.1,
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, status, err := c.post(reqCtx, "/v1/chat/completions", req)
	if err != nil {
		return "", classifyTransportError(err, timeout)
	}

	content, err := parseChatResponse(body, status)
	if err != nil {
		return "", err
	}

	cleaned := StripThinking(content)
	return cleaned, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(buf)))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

func parseChatResponse(body []byte, status int) (string, error) {
	var resp chatResponse
	_ = json.Unmarshal(body, &resp)

	switch status {
	case http.StatusOK:
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return "", errs.New(errs.ErrUpstreamUnavailable, "llm", "empty response from chat endpoint")
		}
		return resp.Choices[0].Message.Content, nil
	case http.StatusBadRequest:
		msg := "model not loaded or request invalid"
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return "", errs.New(errs.ErrUpstreamUnavailable, "llm", msg)
	case http.StatusNotFound:
		return "", errs.New(errs.ErrUpstreamUnavailable, "llm", "chat model not available")
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return "", errs.New(errs.ErrTransient, "llm", fmt.Sprintf("upstream returned %d", status))
	default:
		return "", errs.New(errs.ErrUpstreamUnavailable, "llm", fmt.Sprintf("unexpected status %d", status))
	}
}

func classifyTransportError(err error, timeout time.Duration) error {
	if isTimeoutError(err) {
		return errs.Wrap(errs.ErrTransient, "llm", fmt.Sprintf("timeout after %.0fs", timeout.Seconds()), err)
	}
	return errs.Wrap(errs.ErrTransient, "llm", "connection error", err)
}

func isTimeoutError(err error) bool {
	type timeoutter interface{ Timeout() bool }
	var t timeoutter
	for e := err; e != nil; {
		if tt, ok := e.(timeoutter); ok {
			t = tt
			break
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return t != nil && t.Timeout()
}

// ChatStream issues a streaming chat completion and returns a channel of
// normalized plain-text fragments. The channel is closed when the stream
// ends or ctx is cancelled; a single error (if any) is sent on errCh.
func (c *Client) ChatStream(ctx context.Context, messages []Message, temperature, topP float64) (<-chan string, <-chan error) {
	fragments := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(fragments)
		defer close(errCh)

		req := chatRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: temperature,
			TopP:        topP,
			MaxTokens:   MaxOutputTokens(totalContentLen(messages)),
			Stream:      true,
		}
		buf, err := json.Marshal(req)
		if err != nil {
			errCh <- err
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", strings.NewReader(string(buf)))
		if err != nil {
			errCh <- err
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			errCh <- classifyTransportError(err, c.http.Timeout)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errCh <- errs.New(errs.ErrUpstreamUnavailable, "llm", fmt.Sprintf("stream status %d: %s", resp.StatusCode, string(body)))
			return
		}

		var pending strings.Builder
		for text := range NormalizeSSE(ctx, resp.Body) {
			pending.WriteString(text)
			select {
			case fragments <- text:
			case <-ctx.Done():
				return
			}
		}
		_ = pending.String() // accumulated for callers who want full text via draining fragments
	}()

	return fragments, errCh
}

func totalContentLen(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total
}

// NormalizeSSE reads upstream frames in SSE form (`data: {json}\n\n`), bare
// JSON lines, or raw text, and emits a stream of normalized plain-text
// fragments. Reading stops at `data: [DONE]`, EOF, or ctx cancellation.
func NormalizeSSE(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line := scanner.Text()
			if line == "" {
				continue
			}

			var payload string
			switch {
			case strings.HasPrefix(line, "data:"):
				payload = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			default:
				payload = line
			}
			if payload == "[DONE]" {
				return
			}

			if frag, ok := extractDeltaContent(payload); ok {
				if frag != "" {
					out <- frag
				}
				continue
			}
			// not JSON at all: treat as raw text passthrough
			out <- payload
		}
	}()
	return out
}

func extractDeltaContent(payload string) (string, bool) {
	if payload == "" || (payload[0] != '{' && payload[0] != '[') {
		return "", false
	}
	var frame struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return "", false
	}
	if len(frame.Choices) == 0 {
		return "", true
	}
	return frame.Choices[0].Delta.Content, true
}
