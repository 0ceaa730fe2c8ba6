// Package engine implements the RAG Engine: index build, multi-tier
// retrieval, and chat-query synthesis (single-shot or multipart) over an
// embedding client, vector index, and LLM client.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/ferg-cod3s/docuforge/internal/docgen/errs"
	"github.com/ferg-cod3s/docuforge/internal/llmclient"
	"github.com/ferg-cod3s/docuforge/internal/observability"
	"github.com/ferg-cod3s/docuforge/internal/rag/chunker"
	"github.com/ferg-cod3s/docuforge/internal/rag/vectorindex"
)

// Tier is a retrieval fallback stage, tried in order until one yields at
// least one chunk.
type Tier int

const (
	TierNormal Tier = iota
	TierLow
	TierZero
	TierHeadOfIndex
)

func (t Tier) String() string {
	switch t {
	case TierNormal:
		return "normal"
	case TierLow:
		return "low"
	case TierZero:
		return "zero"
	case TierHeadOfIndex:
		return "head_of_index"
	default:
		return "unknown"
	}
}

const (
	minSimilaritySpecific = 0.2
	minSimilarityGeneric  = 0.0
	minSimilarityLow      = 0.1
	minSimilarityZero     = 0.0

	// MaxCtxTokens bounds the context a single chat call may inline before
	// the engine switches to multipart synthesis.
	MaxCtxTokens = 5000
	// synthesisOverhead reserves room for the system prompt scaffolding and
	// the question itself when partitioning context into multipart batches.
	synthesisOverhead = 300

	smallIndexFileThreshold = 3
	genericQueryWordLimit   = 5
)

var genericStopwords = map[string]bool{
	"hi": true, "hello": true, "hey": true, "thanks": true, "thank": true,
	"what": true, "who": true, "when": true, "where": true, "why": true, "how": true,
}

// Embedder embeds a single query string.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine ties together an embedder, a vector index, and an LLM client.
type Engine struct {
	embedder Embedder
	llm      llmclient.LLMClient
	chunkerC *chunker.TextChunker
	log      *observability.Logger
	metrics  *observability.MetricsCollector
}

// New constructs an Engine.
func New(embedder Embedder, llm llmclient.LLMClient, chunkSizeWords, overlapWords int) *Engine {
	return &Engine{
		embedder: embedder,
		llm:      llm,
		chunkerC: chunker.New(chunkSizeWords, overlapWords),
	}
}

// WithObservability attaches a logger and metrics collector used to record
// which retrieval tier served each query. Either argument may be nil.
func (e *Engine) WithObservability(log *observability.Logger, metrics *observability.MetricsCollector) *Engine {
	e.log = log
	e.metrics = metrics
	return e
}

// Build chunks each corpus file, embeds every chunk sequentially, and adds
// it to idx with chunk IDs continuing from the index's current size.
// Empty-after-filter corpora (no chunks at all) fail with a typed error.
func (e *Engine) Build(ctx context.Context, idx *vectorindex.Index, files map[string]string) error {
	var vecs [][]float32
	var metas []vectorindex.Metadata
	offset := idx.Len()

	for path, content := range files {
		chunks := e.chunkerC.Chunk(content)
		for i, text := range chunks {
			vec, err := e.embedder.Embed(ctx, text)
			if err != nil {
				return err
			}
			vecs = append(vecs, vec)
			metas = append(metas, vectorindex.Metadata{
				ChunkID:    offset + len(metas),
				Text:       text,
				FilePath:   path,
				Filename:   baseName(path),
				ChunkIndex: i,
			})
		}
	}

	if len(vecs) == 0 {
		return errs.New(errs.ErrValidationFailure, "rag_engine", "corpus produced no chunks after filtering")
	}
	return idx.Add(vecs, metas)
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// Query embeds each input query, searches idx under the tiered fallback
// policy, and returns distinct chunks in order of first appearance.
func (e *Engine) Query(ctx context.Context, idx *vectorindex.Index, queries []string, topK int) ([]vectorindex.Metadata, error) {
	distinctFiles := countDistinctFiles(idx)

	seen := make(map[int]bool)
	var out []vectorindex.Metadata

	for _, q := range queries {
		queryStart := time.Now()
		vec, err := e.embedder.Embed(ctx, q)
		if err != nil {
			return nil, err
		}
		matches, tier, err := retrieveWithFallback(idx, vec, topK, q, distinctFiles)
		if err != nil {
			return nil, err
		}
		if e.metrics != nil {
			e.metrics.RecordRetrievalTier(tier.String())
		}
		if e.log != nil {
			e.log.LogRetrievalTier(ctx, q, tier.String(), len(matches), time.Since(queryStart))
		}
		for _, m := range matches {
			if seen[m.ChunkID] {
				continue
			}
			seen[m.ChunkID] = true
			out = append(out, m.Metadata)
		}
	}
	return out, nil
}

// retrieveWithFallback runs the four-tier fallback policy for a single
// query vector.
func retrieveWithFallback(idx *vectorindex.Index, vec []float32, topK int, query string, distinctFiles int) ([]vectorindex.Match, Tier, error) {
	normalThreshold := minSimilaritySpecific
	if isGenericQuery(query) || distinctFiles <= smallIndexFileThreshold {
		normalThreshold = minSimilarityGeneric
	}

	if matches, err := idx.Search(vec, topK, normalThreshold); err == nil && len(matches) > 0 {
		return matches, TierNormal, nil
	} else if err != nil {
		return nil, TierNormal, err
	}

	if matches, err := idx.Search(vec, topK, minSimilarityLow); err == nil && len(matches) > 0 {
		return matches, TierLow, nil
	} else if err != nil {
		return nil, TierLow, err
	}

	if matches, err := idx.Search(vec, topK, minSimilarityZero); err == nil && len(matches) > 0 {
		return matches, TierZero, nil
	} else if err != nil {
		return nil, TierZero, err
	}

	matches, err := headOfIndex(idx, topK)
	if err != nil {
		return nil, TierHeadOfIndex, err
	}
	if len(matches) == 0 {
		return nil, TierHeadOfIndex, errs.New(errs.ErrNotFound, "rag_engine", "index has no content to retrieve")
	}
	return matches, TierHeadOfIndex, nil
}

// headOfIndex returns the first up to topK chunks by position, used as the
// last-resort retrieval tier and as the chapter generator's
// randomized-fallback source.
func headOfIndex(idx *vectorindex.Index, topK int) ([]vectorindex.Match, error) {
	zeroVec := make([]float32, idx.Dim())
	if idx.Dim() == 0 {
		return nil, nil
	}
	matches, err := idx.Search(zeroVec, idx.Len(), -1)
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ChunkID < matches[j].ChunkID })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// RandomFallback returns up to topK arbitrary chunks from the index,
// matching the chapter generator's "retrieval came back empty" recovery.
func RandomFallback(idx *vectorindex.Index, topK int) ([]vectorindex.Match, error) {
	matches, err := headOfIndex(idx, idx.Len())
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(matches), func(i, j int) { matches[i], matches[j] = matches[j], matches[i] })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func isGenericQuery(q string) bool {
	words := strings.Fields(strings.ToLower(q))
	if len(words) <= genericQueryWordLimit {
		return true
	}
	for _, w := range words {
		if genericStopwords[strings.Trim(w, ".,!?")] {
			return true
		}
	}
	return false
}

func countDistinctFiles(idx *vectorindex.Index) int {
	if idx.Len() == 0 {
		return 0
	}
	matches, err := headOfIndex(idx, idx.Len())
	if err != nil {
		return idx.Len()
	}
	paths := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		paths[m.Metadata.FilePath] = struct{}{}
	}
	return len(paths)
}

// Ask answers a question against idx, inlining retrieved context into a
// single streaming call when it fits MaxCtxTokens, or performing multipart
// synthesis otherwise.
func (e *Engine) Ask(ctx context.Context, idx *vectorindex.Index, question, systemPrompt string, temperature, topP float64, topK int) (<-chan string, <-chan error) {
	errCh := make(chan error, 1)

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		errCh <- err
		close(errCh)
		return closedStringChan(), errCh
	}
	matches, _, err := retrieveWithFallback(idx, vec, topK, question, countDistinctFiles(idx))
	if err != nil {
		errCh <- err
		close(errCh)
		return closedStringChan(), errCh
	}

	contextBlock := formatContext(matches)
	estimatedTokens := (len(systemPrompt) + len(contextBlock) + len(question)) / 4

	if estimatedTokens <= MaxCtxTokens {
		prompt := buildPrompt(systemPrompt, contextBlock, question)
		return e.llm.ChatStream(ctx, []llmclient.Message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: question},
		}, temperature, topP)
	}

	return e.multipartSynthesize(ctx, matches, systemPrompt, question, temperature, topP)
}

func closedStringChan() <-chan string {
	ch := make(chan string)
	close(ch)
	return ch
}

func formatContext(matches []vectorindex.Match) string {
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, fmt.Sprintf("[%d] %s", m.ChunkID, m.Metadata.Text))
	}
	return strings.Join(parts, "\n\n")
}

func buildPrompt(systemPrompt, context, question string) string {
	return fmt.Sprintf("%s\n\nContext:\n%s\n\nUser question: %s\nAnswer with citations for each fact.",
		strings.TrimSpace(systemPrompt), context, question)
}

// multipartSynthesize partitions matches into batches that each fit within
// MaxCtxTokens minus overhead, generates one non-streaming partial answer
// per batch, then issues a final streaming synthesis call over the
// concatenation of partial answers.
func (e *Engine) multipartSynthesize(ctx context.Context, matches []vectorindex.Match, systemPrompt, question string, temperature, topP float64) (<-chan string, <-chan error) {
	errCh := make(chan error, 1)
	budgetChars := (MaxCtxTokens - synthesisOverhead) * 4
	batches := partitionByBudget(matches, budgetChars)

	var partials []string
	for i, batch := range batches {
		prompt := fmt.Sprintf("%s\n\nPart %d of %d.\n\nContext:\n%s\n\nUser question: %s\n",
			strings.TrimSpace(systemPrompt), i+1, len(batches), formatContext(batch), question)
		answer, err := e.llm.Generate(ctx, prompt, llmclient.GenerateOptions{ContentType: llmclient.ContentText})
		if err != nil {
			errCh <- err
			close(errCh)
			return closedStringChan(), errCh
		}
		partials = append(partials, answer)
	}

	synthesisPrompt := fmt.Sprintf(
		"Combine the following partial answers into a single coherent response without redundancy.\n\n%s",
		strings.Join(partials, "\n\n---\n\n"))

	return e.llm.ChatStream(ctx, []llmclient.Message{
		{Role: "system", Content: synthesisPrompt},
		{Role: "user", Content: question},
	}, temperature, topP)
}

func partitionByBudget(matches []vectorindex.Match, budgetChars int) [][]vectorindex.Match {
	if budgetChars <= 0 {
		budgetChars = 1
	}
	var batches [][]vectorindex.Match
	var current []vectorindex.Match
	currentChars := 0

	for _, m := range matches {
		chunkChars := len(m.Metadata.Text)
		if currentChars > 0 && currentChars+chunkChars > budgetChars {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}
		current = append(current, m)
		currentChars += chunkChars
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
