// Package main is the entry point for the insights API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shadowseller/insights-api/internal/agent"
	"github.com/shadowseller/insights-api/internal/config"
	"github.com/shadowseller/insights-api/internal/handler"
	"github.com/shadowseller/insights-api/internal/history"
	"github.com/shadowseller/insights-api/internal/llm"
	"github.com/shadowseller/insights-api/internal/middleware"
	natsclient "github.com/shadowseller/insights-api/internal/nats"
	"github.com/shadowseller/insights-api/internal/search"
	"github.com/shadowseller/insights-api/internal/stream"
	"github.com/shadowseller/insights-api/internal/usage"
	"github.com/shadowseller/insights-api/pkg/logger"
	"github.com/shadowseller/insights-api/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting insights API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "insights-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Transcript store: JetStream when NATS is configured, in-memory otherwise.
	var store history.Store
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		transcripts := natsclient.NewTranscriptStore(natsClient)
		if err := transcripts.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure transcript stream", zap.Error(err))
			os.Exit(1)
		}
		store = transcripts
	} else {
		log.Warn("NATS_URL not set, transcripts held in memory only")
		store = history.NewMemoryStore()
	}

	// Embeddings always come from OpenAI; chat can come from either provider.
	var openaiClient *llm.OpenAIClient
	if cfg.OpenAIAPIKey != "" {
		openaiClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Error("failed to create OpenAI client", zap.Error(err))
			os.Exit(1)
		}
	}

	var chatClient llm.Client
	switch llm.Provider(cfg.DefaultProvider) {
	case llm.ProviderAnthropic:
		chatClient, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
	default:
		if openaiClient == nil {
			err = fmt.Errorf("OPENAI_API_KEY is required for provider %q", cfg.DefaultProvider)
		} else {
			chatClient = openaiClient
		}
	}
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}

	// Retrieval tools need both a search endpoint and an embedder.
	var registry *agent.Registry
	if cfg.SearchEndpoint != "" && openaiClient != nil {
		newCorpus := func(index, corpus string) *search.Client {
			return search.NewClient(search.Config{
				Endpoint:   cfg.SearchEndpoint,
				APIKey:     cfg.SearchAPIKey,
				Index:      index,
				Corpus:     corpus,
				EmbedModel: cfg.EmbeddingModel,
				TopK:       cfg.SearchTopK,
			}, openaiClient, log)
		}
		registry = agent.NewRegistry(agent.NewRetrievalTools(
			newCorpus(cfg.SalesIndex, "sales"),
			newCorpus(cfg.AccountIndex, "account"),
			newCorpus(cfg.ClientIndex, "client"),
		)...)
	} else {
		log.Warn("search not configured, retrieval tools disabled")
		registry = agent.NewRegistry()
	}

	ledger := usage.NewLedger()
	runner := agent.NewRunner(chatClient, registry, store, log, cfg.Model, cfg.MaxTokens)
	driver := stream.NewDriver(runner, ledger, log)

	healthHandler := handler.NewHealthHandler(store, ledger)
	streamHandler := handler.NewStreamHandler(driver, log)
	statsHandler := handler.NewStatsHandler(ledger, cfg.UsageRetention)
	historyHandler := handler.NewHistoryHandler(store, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/insights/stream", streamHandler.Stream)
		r.Get("/conversations/{id}/messages", historyHandler.Messages)
		r.Get("/usage/stats", statsHandler.Stats)
	})

	// Background eviction keeps the ledger bounded between stats requests.
	evictInterval := cfg.UsageRetention / 4
	if evictInterval < time.Minute {
		evictInterval = time.Minute
	}
	evictDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-evictDone:
				return
			case <-ticker.C:
				if n := ledger.EvictOlderThan(cfg.UsageRetention); n > 0 {
					log.Info("evicted stale usage entries", zap.Int("count", n))
				}
			}
		}
	}()
	defer close(evictDone)

	// WriteTimeout stays zero so long-lived SSE streams are not cut off.
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
