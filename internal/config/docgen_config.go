package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RAGConfig holds retrieval-augmented-generation pipeline tunables.
type RAGConfig struct {
	ChunkSizeWords      int     `json:"chunk_size_words" yaml:"chunk_size_words"`
	OverlapWords        int     `json:"overlap_words" yaml:"overlap_words"`
	MaxCtxTokens        int     `json:"max_ctx_tokens" yaml:"max_ctx_tokens"`
	TopK                int     `json:"top_k" yaml:"top_k"`
	MinSimilarityNormal float64 `json:"min_similarity_normal" yaml:"min_similarity_normal"`
	MinSimilarityLow    float64 `json:"min_similarity_low" yaml:"min_similarity_low"`
}

// CorpusConfig holds corpus-fetch filter and budget configuration.
type CorpusConfig struct {
	MaxFiles           int      `json:"max_files" yaml:"max_files"`
	MaxTotalBytes      int      `json:"max_total_bytes" yaml:"max_total_bytes"`
	MaxSingleFileBytes int      `json:"max_single_file_bytes" yaml:"max_single_file_bytes"`
	IgnoredPatterns    []string `json:"ignored_patterns" yaml:"ignored_patterns"`
	AllowedExtensions  []string `json:"allowed_extensions" yaml:"allowed_extensions"`
}

// LLMConfig holds the documentation LLM endpoint configuration.
type LLMConfig struct {
	BaseURL        string        `json:"base_url" yaml:"base_url"`
	Model          string        `json:"model" yaml:"model"`
	APIKey         string        `json:"api_key" yaml:"api_key"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	ChapterTimeout time.Duration `json:"chapter_timeout" yaml:"chapter_timeout"`
}

// EmbedClientConfig holds the embedding endpoint configuration.
type EmbedClientConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// CheckpointConfig holds checkpoint-store persistence configuration.
type CheckpointConfig struct {
	DriverPath string `json:"driver_path" yaml:"driver_path"`
	RedisAddr  string `json:"redis_addr" yaml:"redis_addr"` // empty disables the hot-cache decorator
}

// GitHubConfig holds corpus-fetcher GitHub host configuration.
type GitHubConfig struct {
	Token   string        `json:"token" yaml:"token"`
	APIBase string        `json:"api_base" yaml:"api_base"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Default values for the documentation pipeline.
const (
	DefaultChunkSizeWords      = 500
	DefaultOverlapWords        = 100
	DefaultMaxCtxTokens        = 5000
	DefaultRAGTopK             = 5
	DefaultMinSimilarityNormal = 0.2
	DefaultMinSimilarityLow    = 0.1

	DefaultCorpusMaxFiles           = 100
	DefaultCorpusMaxTotalBytes      = 200000
	DefaultCorpusMaxSingleFileBytes = 200000

	DefaultLLMBaseURL        = "http://localhost:1234"
	DefaultLLMTimeout        = 120 * time.Second
	DefaultChapterTimeout    = 45 * time.Minute
	DefaultEmbedClientBaseURL = "http://localhost:1234"
	DefaultEmbedClientTimeout = 60 * time.Second

	DefaultCheckpointDriverPath = "./data/checkpoints.db"

	DefaultGitHubAPIBase = "https://api.github.com"
	DefaultGitHubTimeout = 60 * time.Second
)

// DefaultIgnoredPatterns mirrors the fixed filter config in the external interfaces contract.
func DefaultIgnoredPatterns() []string {
	return []string{
		`node_modules`, `\.git`, `dist`, `build`, `\.next`, `venv`,
		`__pycache__`, `\.env`, `\.DS_Store`, `\.idea`, `\.vscode`,
		`\.pytest_cache`, `\.mypy_cache`, `\.tox`, `\.cache`,
	}
}

// DefaultAllowedExtensions mirrors the fixed filter config in the external interfaces contract.
func DefaultAllowedExtensions() []string {
	return []string{
		"py", "js", "jsx", "ts", "tsx", "java", "kt", "dart", "go", "rs", "cpp", "c", "h", "cs",
		"html", "css", "md", "txt", "json", "yaml", "yml", "xml",
		"pdf", "doc", "docx",
	}
}

func docgenDefaults() (RAGConfig, CorpusConfig, LLMConfig, EmbedClientConfig, CheckpointConfig, GitHubConfig) {
	rag := RAGConfig{
		ChunkSizeWords:      DefaultChunkSizeWords,
		OverlapWords:        DefaultOverlapWords,
		MaxCtxTokens:        DefaultMaxCtxTokens,
		TopK:                DefaultRAGTopK,
		MinSimilarityNormal: DefaultMinSimilarityNormal,
		MinSimilarityLow:    DefaultMinSimilarityLow,
	}
	corpus := CorpusConfig{
		MaxFiles:           DefaultCorpusMaxFiles,
		MaxTotalBytes:      DefaultCorpusMaxTotalBytes,
		MaxSingleFileBytes: DefaultCorpusMaxSingleFileBytes,
		IgnoredPatterns:    DefaultIgnoredPatterns(),
		AllowedExtensions:  DefaultAllowedExtensions(),
	}
	llm := LLMConfig{
		BaseURL:        DefaultLLMBaseURL,
		Timeout:        DefaultLLMTimeout,
		ChapterTimeout: DefaultChapterTimeout,
	}
	embed := EmbedClientConfig{
		BaseURL: DefaultEmbedClientBaseURL,
		Timeout: DefaultEmbedClientTimeout,
	}
	checkpoint := CheckpointConfig{
		DriverPath: DefaultCheckpointDriverPath,
	}
	github := GitHubConfig{
		APIBase: DefaultGitHubAPIBase,
		Timeout: DefaultGitHubTimeout,
	}
	return rag, corpus, llm, embed, checkpoint, github
}

func applyDocgenDefaults(cfg *Config) {
	cfg.RAG, cfg.Corpus, cfg.LLM, cfg.Embed, cfg.Checkpoint, cfg.GitHub = docgenDefaults()
}

// loadDocgenEnv overrides documentation-pipeline config fields from CONEXUS_* env vars.
func loadDocgenEnv(cfg *Config) {
	if v := os.Getenv("CONEXUS_RAG_CHUNK_SIZE_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RAG.ChunkSizeWords = n
		}
	}
	if v := os.Getenv("CONEXUS_RAG_OVERLAP_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RAG.OverlapWords = n
		}
	}
	if v := os.Getenv("CONEXUS_RAG_MAX_CTX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RAG.MaxCtxTokens = n
		}
	}
	if v := os.Getenv("CONEXUS_RAG_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RAG.TopK = n
		}
	}
	if v := os.Getenv("CONEXUS_RAG_MIN_SIMILARITY_NORMAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RAG.MinSimilarityNormal = f
		}
	}
	if v := os.Getenv("CONEXUS_RAG_MIN_SIMILARITY_LOW"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RAG.MinSimilarityLow = f
		}
	}

	if v := os.Getenv("CONEXUS_CORPUS_MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Corpus.MaxFiles = n
		}
	}
	if v := os.Getenv("CONEXUS_CORPUS_MAX_TOTAL_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Corpus.MaxTotalBytes = n
		}
	}
	if v := os.Getenv("CONEXUS_CORPUS_MAX_SINGLE_FILE_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Corpus.MaxSingleFileBytes = n
		}
	}
	if v := os.Getenv("CONEXUS_CORPUS_ALLOWED_EXTENSIONS"); v != "" {
		cfg.Corpus.AllowedExtensions = splitCSV(v)
	}

	if v := os.Getenv("CONEXUS_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("CONEXUS_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CONEXUS_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("CONEXUS_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("CONEXUS_LLM_CHAPTER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.ChapterTimeout = d
		}
	}

	if v := os.Getenv("CONEXUS_EMBED_BASE_URL"); v != "" {
		cfg.Embed.BaseURL = v
	}
	if v := os.Getenv("CONEXUS_EMBED_MODEL"); v != "" {
		cfg.Embed.Model = v
	}
	if v := os.Getenv("CONEXUS_EMBED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Embed.Timeout = d
		}
	}

	if v := os.Getenv("CONEXUS_CHECKPOINT_DRIVER_PATH"); v != "" {
		cfg.Checkpoint.DriverPath = v
	}
	if v := os.Getenv("CONEXUS_CHECKPOINT_REDIS_ADDR"); v != "" {
		cfg.Checkpoint.RedisAddr = v
	}

	if v := os.Getenv("CONEXUS_GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("CONEXUS_GITHUB_API_BASE"); v != "" {
		cfg.GitHub.APIBase = v
	}
	if v := os.Getenv("CONEXUS_GITHUB_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.GitHub.Timeout = d
		}
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// validateDocgen checks the documentation-pipeline config sections.
func validateDocgen(c *Config) error {
	if c.RAG.ChunkSizeWords < 1 {
		return fmt.Errorf("rag chunk size words must be positive: %d", c.RAG.ChunkSizeWords)
	}
	if c.RAG.OverlapWords < 0 || c.RAG.OverlapWords >= c.RAG.ChunkSizeWords {
		return fmt.Errorf("rag overlap words (%d) must be non-negative and less than chunk size (%d)",
			c.RAG.OverlapWords, c.RAG.ChunkSizeWords)
	}
	if c.RAG.MaxCtxTokens < 1 {
		return fmt.Errorf("rag max ctx tokens must be positive: %d", c.RAG.MaxCtxTokens)
	}
	if c.RAG.TopK < 1 {
		return fmt.Errorf("rag top_k must be positive: %d", c.RAG.TopK)
	}
	if c.Corpus.MaxFiles < 1 {
		return fmt.Errorf("corpus max files must be positive: %d", c.Corpus.MaxFiles)
	}
	if c.Corpus.MaxTotalBytes < 1 {
		return fmt.Errorf("corpus max total bytes must be positive: %d", c.Corpus.MaxTotalBytes)
	}
	if c.Corpus.MaxSingleFileBytes < 1 {
		return fmt.Errorf("corpus max single file bytes must be positive: %d", c.Corpus.MaxSingleFileBytes)
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm base url cannot be empty")
	}
	if c.Embed.BaseURL == "" {
		return fmt.Errorf("embed base url cannot be empty")
	}
	if c.Checkpoint.DriverPath == "" {
		return fmt.Errorf("checkpoint driver path cannot be empty")
	}
	return nil
}
