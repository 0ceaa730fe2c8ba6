// Package chunker splits source text into overlapping word-budgeted chunks
// on sentence boundaries, falling back to a pure word-window split when no
// sentence boundaries are found.
package chunker

import (
	"regexp"
	"strings"
)

const (
	// DefaultChunkSizeWords is the default word budget per chunk.
	DefaultChunkSizeWords = 500
	// DefaultOverlapWords is the default overlap carried into the next chunk.
	DefaultOverlapWords = 100
)

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// TextChunker splits text into overlapping chunks bounded by word count.
type TextChunker struct {
	chunkSizeWords int
	overlapWords   int
}

// New creates a TextChunker with the given word budget and overlap.
func New(chunkSizeWords, overlapWords int) *TextChunker {
	if chunkSizeWords <= 0 {
		chunkSizeWords = DefaultChunkSizeWords
	}
	if overlapWords < 0 || overlapWords >= chunkSizeWords {
		overlapWords = DefaultOverlapWords
	}
	return &TextChunker{chunkSizeWords: chunkSizeWords, overlapWords: overlapWords}
}

// Chunk splits text into an ordered sequence of non-empty chunks.
//
// Sentences are accumulated until adding the next one would exceed the word
// budget; the emitted chunk is then re-seeded with the smallest trailing
// suffix of its own sentences whose word count is at least overlapWords. If
// the text carries no sentence boundaries at all, a pure word-window split
// is used instead.
func (c *TextChunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return c.windowChunk(text)
	}

	var chunks []string
	var current []string
	currentWords := 0

	flush := func() {
		joined := strings.TrimSpace(strings.Join(current, " "))
		if joined != "" {
			chunks = append(chunks, joined)
		}
	}

	for _, sentence := range sentences {
		words := wordCount(sentence)
		if currentWords > 0 && currentWords+words > c.chunkSizeWords {
			flush()
			current = overlapSuffix(current, c.overlapWords)
			currentWords = sumWords(current)
		}
		current = append(current, sentence)
		currentWords += words
	}
	flush()

	return filterEmpty(chunks)
}

// windowChunk performs a pure word-window split with overlap, used when no
// sentence boundary was found anywhere in the text.
func (c *TextChunker) windowChunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end := start + c.chunkSizeWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.TrimSpace(strings.Join(words[start:end], " "))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(words) {
			break
		}
		start = end - c.overlapWords
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

// splitSentences splits text on '.', '!' or '?' followed by whitespace,
// keeping the terminator attached to the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	last := 0
	locs := sentenceBoundary.FindAllStringIndex(text, -1)
	for _, loc := range locs {
		sentence := strings.TrimSpace(text[last:loc[0]+1])
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// overlapSuffix returns the smallest trailing suffix of sentences whose
// cumulative word count is at least minWords.
func overlapSuffix(sentences []string, minWords int) []string {
	if minWords <= 0 || len(sentences) == 0 {
		return nil
	}
	words := 0
	start := len(sentences)
	for start > 0 {
		words += wordCount(sentences[start-1])
		start--
		if words >= minWords {
			break
		}
	}
	out := make([]string, len(sentences)-start)
	copy(out, sentences[start:])
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func sumWords(sentences []string) int {
	total := 0
	for _, s := range sentences {
		total += wordCount(s)
	}
	return total
}

func filterEmpty(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}
