// Package embedclient implements a text-embedding client against an
// OpenAI-compatible /v1/embeddings endpoint, with model auto-discovery and
// exponential-backoff retry, matching the embedding.Embedder shape used
// elsewhere in this module.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ferg-cod3s/docuforge/internal/docgen/errs"
)

const maxRetries = 3

// Client embeds text against an LM-Studio-compatible server.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	sleep   func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleep overrides the backoff sleep function (tests use this to skip
// real delays).
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Client) { c.sleep = fn }
}

// New constructs a Client. If model is empty, DiscoverModel should be called
// first to populate it from the server's catalog.
func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the embedding model currently configured.
func (c *Client) Model() string { return c.model }

// Dimensions is unknown until the first embedding is produced; callers that
// need it ahead of time should embed a probe string.
func (c *Client) Dimensions() int { return 0 }

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// DiscoverModel scans the server's /v1/models catalog for an entry whose id
// contains "embed" (case-insensitive), and sets it as the active model.
// Returns an error if the server is unreachable or no embedding model is
// listed.
func (c *Client) DiscoverModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.ErrTransient, "embed", "cannot reach embedding host", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.ErrUpstreamUnavailable, "embed", fmt.Sprintf("model catalog returned %d", resp.StatusCode))
	}

	var catalog modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return errs.Wrap(errs.ErrUpstreamUnavailable, "embed", "malformed model catalog", err)
	}

	for _, m := range catalog.Data {
		lower := strings.ToLower(m.ID)
		if strings.Contains(lower, "embed") {
			c.model = m.ID
			return nil
		}
	}
	return errs.New(errs.ErrUpstreamUnavailable, "embed", "no embedding model found in catalog")
}

// EmbedBatch embeds each non-blank text in order. Blank entries are skipped,
// matching the reference implementation's behavior, so the result length
// may be shorter than the input.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		vec, err := c.embedWithRetry(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// Embed embeds a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.embedWithRetry(ctx, text)
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *Client) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	req := embedRequest{Model: c.model, Input: text}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		vec, retryable, err := c.attemptEmbed(ctx, body)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !retryable || attempt == maxRetries-1 {
			break
		}
		c.sleep(backoffDelay(attempt))
	}
	return nil, lastErr
}

func backoffDelay(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// attemptEmbed makes one HTTP round trip. The bool return reports whether
// the error is worth retrying.
func (c *Client) attemptEmbed(ctx context.Context, body []byte) ([]float32, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, true, errs.Wrap(errs.ErrTransient, "embed", "connection error", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errs.Wrap(errs.ErrTransient, "embed", "failed reading response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var parsed embedResponse
		if err := json.Unmarshal(data, &parsed); err != nil || len(parsed.Data) == 0 {
			return nil, false, errs.New(errs.ErrUpstreamUnavailable, "embed", "invalid response from embedding host")
		}
		return parsed.Data[0].Embedding, false, nil
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, true, errs.New(errs.ErrTransient, "embed", fmt.Sprintf("embedding host returned %d", resp.StatusCode))
	default:
		return nil, false, errs.New(errs.ErrUpstreamUnavailable, "embed",
			fmt.Sprintf("embedding model %q not loaded or request invalid: %d", c.model, resp.StatusCode))
	}
}
