package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_EmptyText(t *testing.T) {
	c := New(DefaultChunkSizeWords, DefaultOverlapWords)
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t  "))
}

func TestChunk_SingleSentenceUnderBudget(t *testing.T) {
	c := New(50, 10)
	chunks := c.Chunk("This is a short sentence.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "This is a short sentence.", chunks[0])
}

func TestChunk_SplitsOnSentenceBoundaryWhenOverBudget(t *testing.T) {
	c := New(5, 2)
	text := "One two three. Four five six. Seven eight nine."
	chunks := c.Chunk(text)
	require.True(t, len(chunks) >= 2)
	for _, chunk := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(chunk))
	}
}

func TestChunk_OverlapCarriesSuffixIntoNextChunk(t *testing.T) {
	c := New(4, 2)
	text := "Alpha bravo charlie delta. Echo foxtrot golf hotel. India juliet kilo lima."
	chunks := c.Chunk(text)
	require.True(t, len(chunks) >= 2)
	// the second chunk should begin with trailing words of the first (overlap):
	// the smallest run of trailing sentences holding at least 2 words, which
	// here is the whole 4-word sentence "Alpha bravo charlie delta."
	firstWords := strings.Fields(chunks[0])
	secondWords := strings.Fields(chunks[1])
	assert.Equal(t, firstWords[len(firstWords)-4:], secondWords[:4])
}

func TestChunk_FallsBackToWordWindowWithoutSentenceBoundaries(t *testing.T) {
	c := New(3, 1)
	text := "one two three four five six seven eight nine ten"
	chunks := c.Chunk(text)
	require.True(t, len(chunks) >= 2)
	for _, chunk := range chunks {
		words := strings.Fields(chunk)
		assert.True(t, len(words) <= 3)
	}
}

func TestChunk_NoEmptyChunksEmitted(t *testing.T) {
	c := New(500, 100)
	chunks := c.Chunk("Hello world. ")
	for _, chunk := range chunks {
		assert.NotEqual(t, "", strings.TrimSpace(chunk))
	}
}

func TestNew_InvalidOverlapFallsBackToDefault(t *testing.T) {
	c := New(10, 10)
	assert.Equal(t, DefaultOverlapWords, c.overlapWords)
	c2 := New(10, -1)
	assert.Equal(t, DefaultOverlapWords, c2.overlapWords)
}
