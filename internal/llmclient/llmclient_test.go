package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxOutputTokens_Bands(t *testing.T) {
	assert.Equal(t, 2500, MaxOutputTokens(100))
	assert.Equal(t, 2500, MaxOutputTokens(2000))
	assert.Equal(t, 3000, MaxOutputTokens(2001))
	assert.Equal(t, 3000, MaxOutputTokens(5000))
	assert.Equal(t, 4000, MaxOutputTokens(5001))
	assert.Equal(t, 4000, MaxOutputTokens(10000))
	assert.Equal(t, 5000, MaxOutputTokens(10001))
	assert.Equal(t, 6000, MaxOutputTokens(50000))
	assert.Equal(t, 8000, MaxOutputTokens(50001))
}

func TestTemperature_Bands(t *testing.T) {
	assert.Equal(t, 0.15, Temperature(ContentCode))
	assert.Equal(t, 0.20, Temperature(ContentText))
}

func TestGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := chatResponse{}
		resp.Choices = []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{{Message: struct {
			Content string `json:"content"`
		}{Content: "<think>reasoning here</think>The answer is 42."}}}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := New(server.URL, "test-model", "")
	out, err := c.Generate(context.Background(), "what is the answer?", GenerateOptions{ContentType: ContentText})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", out)
}

func TestGenerate_BadRequestIsUpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"no model loaded"}}`))
	}))
	defer server.Close()

	c := New(server.URL, "test-model", "")
	_, err := c.Generate(context.Background(), "hi", GenerateOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model loaded")
}

func TestGenerate_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(server.URL, "test-model", "")
	_, err := c.Generate(context.Background(), "hi", GenerateOptions{})
	require.Error(t, err)
}

func TestGenerate_TimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := New(server.URL, "test-model", "", WithHTTPClient(&http.Client{Timeout: 5 * time.Millisecond}))
	_, err := c.Generate(context.Background(), "hi", GenerateOptions{})
	require.Error(t, err)
}

func TestStripThinking_RemovesTagBlock(t *testing.T) {
	out := StripThinking("<think>\nhmm let me consider\n</think>\nFinal text here.")
	assert.Equal(t, "Final text here.", out)
}

func TestStripThinking_RemovesLeadingNarrationLines(t *testing.T) {
	in := "Let me look at this repository structure first.\nI need to check the main entry point.\n\nThe project exposes a CLI."
	out := StripThinking(in)
	assert.Equal(t, "The project exposes a CLI.", out)
}

func TestStripThinking_LeavesMidAnswerNarrationAlone(t *testing.T) {
	in := "The project exposes a CLI.\n\nLet me know if you want more detail."
	out := StripThinking(in)
	assert.Contains(t, out, "Let me know if you want more detail.")
}

func TestStripThinking_CollapsesWhitespace(t *testing.T) {
	out := StripThinking("Para one.\n\n\n\nPara two.   with   spaces.")
	assert.NotContains(t, out, "\n\n\n")
	assert.Equal(t, "Para one.\n\nPara two. with spaces.", out)
}

func TestNormalizeSSE_DataPrefixedJSON(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
		"data: [DONE]\n\n"
	ch := NormalizeSSE(context.Background(), strings.NewReader(body))
	var out []string
	for frag := range ch {
		out = append(out, frag)
	}
	require.Equal(t, []string{"Hello", " world"}, out)
}

func TestNormalizeSSE_BareJSONLines(t *testing.T) {
	body := "{\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n{\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n"
	ch := NormalizeSSE(context.Background(), strings.NewReader(body))
	var out []string
	for frag := range ch {
		out = append(out, frag)
	}
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestNormalizeSSE_RawTextPassthrough(t *testing.T) {
	body := "just some plain text\nmore text\n"
	ch := NormalizeSSE(context.Background(), strings.NewReader(body))
	var out []string
	for frag := range ch {
		out = append(out, frag)
	}
	assert.Equal(t, []string{"just some plain text", "more text"}, out)
}
