package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ferg-cod3s/docuforge/internal/config"
	"github.com/ferg-cod3s/docuforge/internal/corpus"
	"github.com/ferg-cod3s/docuforge/internal/docgen/chapter"
	"github.com/ferg-cod3s/docuforge/internal/docgen/checkpoint"
	"github.com/ferg-cod3s/docuforge/internal/docgen/model"
	"github.com/ferg-cod3s/docuforge/internal/docgen/orchestrator"
	"github.com/ferg-cod3s/docuforge/internal/docgen/outline"
	"github.com/ferg-cod3s/docuforge/internal/docgen/progress"
	"github.com/ferg-cod3s/docuforge/internal/llmclient"
	"github.com/ferg-cod3s/docuforge/internal/middleware"
	"github.com/ferg-cod3s/docuforge/internal/observability"
	"github.com/ferg-cod3s/docuforge/internal/profiling"
	"github.com/ferg-cod3s/docuforge/internal/rag/embedclient"
	"github.com/ferg-cod3s/docuforge/internal/rag/engine"
	securityauth "github.com/ferg-cod3s/docuforge/internal/security/auth"
	"github.com/ferg-cod3s/docuforge/internal/security/ratelimit"
	"github.com/ferg-cod3s/docuforge/internal/tls"
)

const Version = "0.1.0-alpha"

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        os.Stderr,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})

	logger.Info("docuforge starting",
		"version", Version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"llm_base_url", cfg.LLM.BaseURL,
		"embed_base_url", cfg.Embed.BaseURL,
	)

	var metrics *observability.MetricsCollector
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetricsCollector("docuforge")
		metrics.SetSystemStartTime(time.Now())
		go startMetricsServer(cfg.Observability.Metrics, logger)
	}

	errHandler := observability.NewErrorHandler(logger, metrics, cfg.Observability.Sentry.Enabled)

	if cfg.Observability.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Observability.Sentry.DSN,
			Environment:      cfg.Observability.Sentry.Environment,
			Release:          cfg.Observability.Sentry.Release,
			TracesSampleRate: cfg.Observability.Sentry.SampleRate,
			EnableTracing:    true,
		}); err != nil {
			logger.Error("Failed to initialize Sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	embedder := embedclient.New(cfg.Embed.BaseURL, cfg.Embed.Model, embedclient.WithHTTPClient(&http.Client{Timeout: cfg.Embed.Timeout}))
	if cfg.Embed.Model == "" {
		if err := embedder.DiscoverModel(ctx); err != nil {
			logger.Warn("Embedding model auto-discovery failed, continuing with empty model", "error", err)
		} else {
			logger.Info("Embedding model discovered", "model", embedder.Model())
		}
	}

	llm := llmclient.New(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.APIKey, llmclient.WithHTTPClient(&http.Client{Timeout: cfg.LLM.Timeout}))

	ragEngine := engine.New(embedder, llm, cfg.RAG.ChunkSizeWords, cfg.RAG.OverlapWords).WithObservability(logger, metrics)
	outlineGen := outline.New(llm)
	chapterGen := chapter.New(llm, ragEngine, cfg.RAG.TopK)

	filters, err := corpus.NewFilterConfig(
		cfg.Corpus.IgnoredPatterns, cfg.Corpus.AllowedExtensions,
		cfg.Corpus.MaxFiles, cfg.Corpus.MaxTotalBytes, cfg.Corpus.MaxSingleFileBytes,
	)
	if err != nil {
		logger.Error("Invalid corpus filter configuration", "error", err)
		os.Exit(1)
	}
	githubSource := corpus.NewGitHubSource(cfg.GitHub.Token, filters, cfg.GitHub.Timeout)

	store, err := checkpoint.NewStore(cfg.Checkpoint.DriverPath)
	if err != nil {
		logger.Error("Failed to initialize checkpoint store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var checkpoints orchestrator.Checkpointer = store
	if cfg.Checkpoint.RedisAddr != "" {
		cached := checkpoint.NewCachedStore(store, cfg.Checkpoint.RedisAddr, logger)
		defer cached.Close()
		checkpoints = cached
	}

	var sink progress.Sink
	if statusURL := os.Getenv("CONEXUS_STATUS_CALLBACK_URL"); statusURL != "" {
		sink = progress.NewHTTPSink(statusURL, []byte(cfg.Auth.PrivateKey), logger)
	} else {
		sink = progress.NewMemorySink()
	}

	indexDir := "./data/indexes"
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		logger.Error("Failed to create index directory", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(githubSource, outlineGen, ragEngine, chapterGen, checkpoints, sink, nil, indexDir, cfg.RAG.TopK, logger, metrics)

	if cfg.Observability.Metrics.Enabled {
		sysMetrics := profiling.NewMetricsCollector(30 * time.Second)
		sysMetrics.Start()
		defer sysMetrics.Stop()
		registerDebugRoute(sysMetrics)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, orch, logger, errHandler)

	handler := buildMiddlewareChain(mux, cfg, logger, metrics)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Minute, // chapter generation can run long against slow local models
		IdleTimeout:  120 * time.Second,
	}

	if cfg.TLS.Enabled {
		tlsMgr, err := tls.NewManager(&cfg.TLS, logger)
		if err != nil {
			logger.Error("Failed to initialize TLS manager", "error", err)
			os.Exit(1)
		}
		server.TLSConfig = tlsMgr.GetTLSConfig()
		if cfg.TLS.HTTPRedirectPort != 0 {
			go func() {
				redirectSrv := tlsMgr.CreateHTTPRedirectServer(cfg.Server.Port)
				if err := redirectSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Warn("HTTP redirect server failed", "error", err)
				}
			}()
		}
		logger.Info("HTTPS server listening", "addr", addr)
		if err := server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("HTTP server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// buildMiddlewareChain wraps mux in security headers, then CORS, then rate
// limiting, then auth, each stage only applied when its config section is
// enabled; a request therefore passes auth → rate limiting → CORS →
// security headers before it reaches mux.
func buildMiddlewareChain(mux http.Handler, cfg *config.Config, logger *observability.Logger, metrics *observability.MetricsCollector) http.Handler {
	handler := mux

	if cfg.Security.XFrameOptions != "" || cfg.Security.CSP.Enabled || cfg.Security.HSTS.Enabled {
		secMw := middleware.NewSecurityMiddleware(middleware.SecurityConfig{
			CSP: middleware.CSPConfig{
				Enabled: cfg.Security.CSP.Enabled, Default: cfg.Security.CSP.Default, Script: cfg.Security.CSP.Script,
				Style: cfg.Security.CSP.Style, Image: cfg.Security.CSP.Image, Font: cfg.Security.CSP.Font,
				Connect: cfg.Security.CSP.Connect, Media: cfg.Security.CSP.Media, Object: cfg.Security.CSP.Object,
				Frame: cfg.Security.CSP.Frame, Report: cfg.Security.CSP.Report,
			},
			HSTS: middleware.HSTSConfig{
				Enabled: cfg.Security.HSTS.Enabled, MaxAge: cfg.Security.HSTS.MaxAge,
				IncludeSubdomains: cfg.Security.HSTS.IncludeSubdomains, Preload: cfg.Security.HSTS.Preload,
			},
			XFrameOptions:       cfg.Security.XFrameOptions,
			XContentTypeOptions: cfg.Security.XContentTypeOptions,
			ReferrerPolicy:      cfg.Security.ReferrerPolicy,
			PermissionsPolicy:   cfg.Security.PermissionsPolicy,
		}, logger)
		handler = secMw.Middleware(handler)
	}

	if cfg.CORS.Enabled {
		corsMw := middleware.NewCORSMiddleware(middleware.CORSConfig{
			Enabled: cfg.CORS.Enabled, AllowedOrigins: cfg.CORS.AllowedOrigins, AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders, ExposedHeaders: cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials, MaxAge: cfg.CORS.MaxAge,
		}, logger)
		handler = corsMw.Middleware(handler)
	}

	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.NewRateLimiter(ratelimit.Config{
			Enabled:   cfg.RateLimit.Enabled,
			Algorithm: ratelimit.Algorithm(cfg.RateLimit.Algorithm),
			Redis: ratelimit.RedisConfig{
				Enabled: cfg.RateLimit.Redis.Enabled, Addr: cfg.RateLimit.Redis.Addr,
				Password: cfg.RateLimit.Redis.Password, DB: cfg.RateLimit.Redis.DB, KeyPrefix: cfg.RateLimit.Redis.KeyPrefix,
			},
			Default: ratelimit.LimitConfig{Requests: cfg.RateLimit.Default.Requests, Window: cfg.RateLimit.Default.Window},
			Health:  ratelimit.LimitConfig{Requests: cfg.RateLimit.Health.Requests, Window: cfg.RateLimit.Health.Window},
			Webhook: ratelimit.LimitConfig{Requests: cfg.RateLimit.Webhook.Requests, Window: cfg.RateLimit.Webhook.Window},
			Auth:    ratelimit.LimitConfig{Requests: cfg.RateLimit.Auth.Requests, Window: cfg.RateLimit.Auth.Window},
			BurstMultiplier: cfg.RateLimit.BurstMultiplier,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		})
		if err != nil {
			logger.Warn("Rate limiter initialization failed, continuing without rate limiting", "error", err)
		} else {
			rlMw := middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
				RateLimiter: limiter, MetricsCollector: metrics,
				SkipPaths: cfg.RateLimit.SkipPaths, SkipIPs: cfg.RateLimit.SkipIPs, TrustedProxies: cfg.RateLimit.TrustedProxies,
			}, logger)
			handler = rlMw.Middleware(handler)
		}
	}

	if cfg.Auth.Enabled {
		jwtMgr, err := securityauth.NewJWTManager(cfg.Auth.PrivateKey, cfg.Auth.PublicKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenExpiry)
		if err != nil {
			logger.Warn("JWT auth middleware initialization failed, continuing without request authentication", "error", err)
		} else {
			authMw := middleware.NewAuthMiddleware(jwtMgr)
			handler = authMw.Middleware(handler)
		}
	}

	return handler
}

func startMetricsServer(cfg config.MetricsConfig, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	// forward the debug route that registerDebugRoute puts on the default mux
	mux.Handle("/debug/system", http.DefaultServeMux)
	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("Starting metrics server", "addr", addr, "path", cfg.Path)
	server := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server failed", "error", err)
	}
}

// registerDebugRoute wires the profiling system-metrics collector behind a
// handler registered on the default mux for operational visibility; it is
// kept on DefaultServeMux rather than the application mux so it never
// shares the request-serving middleware chain.
func registerDebugRoute(sysMetrics *profiling.MetricsCollector) {
	http.HandleFunc("/debug/system", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"latest":  sysMetrics.GetLatestSnapshot(),
			"average": sysMetrics.GetAverageMetrics(),
			"trend":   sysMetrics.GetMemoryTrend(),
		})
	})
}

type generateRequest struct {
	RepoURL string `json:"repo_url"`
}

func registerRoutes(mux *http.ServeMux, orch *orchestrator.Orchestrator, logger *observability.Logger, errHandler *observability.ErrorHandler) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":"docuforge","version":"%s","generate_endpoint":"/generate","resume_endpoint":"/resume"}`, Version)
	})

	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		owner, repoName, err := parseGitHubURL(req.RepoURL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		repoID := fmt.Sprintf("%s_%s_%d", owner, repoName, time.Now().Unix())

		out, err := orch.GenerateFromGitHub(r.Context(), repoID, owner, repoName, req.RepoURL)
		if err != nil {
			errHandler.HandleError(r.Context(), err, observability.ErrorContext{
				Method: "generate", ErrorType: "generation_failure", Duration: time.Since(start),
				Extra: map[string]interface{}{"repo_id": repoID},
			})
			writeErrorResponse(w, errHandler, err, "generate")
			return
		}
		writeJSON(w, out)
	})

	mux.HandleFunc("/resume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()
		repoID := r.URL.Query().Get("repo_id")
		if repoID == "" {
			http.Error(w, "repo_id query parameter is required", http.StatusBadRequest)
			return
		}
		out, err := orch.Resume(r.Context(), repoID)
		if err != nil {
			errHandler.HandleError(r.Context(), err, observability.ErrorContext{
				Method: "resume", ErrorType: "resume_failure", Duration: time.Since(start),
				Extra: map[string]interface{}{"repo_id": repoID},
			})
			writeErrorResponse(w, errHandler, err, "resume")
			return
		}
		writeJSON(w, out)
	})
}

func writeErrorResponse(w http.ResponseWriter, errHandler *observability.ErrorHandler, err error, method string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(errHandler.CreateErrorResponse(err, observability.ErrorContext{Method: method}))
}

func writeJSON(w http.ResponseWriter, v model.JobOutput) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// parseGitHubURL extracts owner/repo from a "https://github.com/owner/repo"
// URL, tolerating a trailing ".git" or slash.
func parseGitHubURL(repoURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(repoURL, "/"), ".git")
	idx := strings.Index(trimmed, "github.com/")
	if idx < 0 {
		return "", "", fmt.Errorf("repo_url must be a github.com URL: %q", repoURL)
	}
	parts := strings.Split(trimmed[idx+len("github.com/"):], "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo_url must be in the form https://github.com/owner/repo: %q", repoURL)
	}
	return parts[0], parts[1], nil
}
