// Package main implements the Verity API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/VerityAI/verity-mvp/engine/answer"
	"github.com/VerityAI/verity-mvp/engine/domain"
	"github.com/VerityAI/verity-mvp/engine/ingest"
	"github.com/VerityAI/verity-mvp/engine/retrieval"
	"github.com/VerityAI/verity-mvp/engine/semantic"
	"github.com/VerityAI/verity-mvp/pkg/fn"
	"github.com/VerityAI/verity-mvp/pkg/metrics"
	"github.com/VerityAI/verity-mvp/pkg/mid"
	"github.com/VerityAI/verity-mvp/pkg/ollama"
	"github.com/VerityAI/verity-mvp/pkg/resilience"
)

// Config holds all environment-based configuration.
type Config struct {
	Port             string
	OllamaURL        string
	EmbedModel       string
	ChatModel        string
	EmbedRPS         float64
	VectorDims       int
	QdrantAddr       string
	CollectionPrefix string
	Neo4jURL         string
	Neo4jUser        string
	Neo4jPass        string
	DataRoot         string
	CORSOrigin       string
}

func loadConfig() Config {
	return Config{
		Port:             envOr("PORT", "8080"),
		OllamaURL:        envOr("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:       envOr("EMBED_MODEL", "nomic-embed-text"),
		ChatModel:        envOr("CHAT_MODEL", "llama3.1"),
		EmbedRPS:         envFloat("EMBED_RPS", 20),
		VectorDims:       envInt("VECTOR_DIMS", 768),
		QdrantAddr:       envOr("QDRANT_ADDR", "localhost:6334"),
		CollectionPrefix: envOr("COLLECTION_PREFIX", "verity"),
		Neo4jURL:         envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:        envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:        envOr("NEO4J_PASS", "password"),
		DataRoot:         envOr("DATA_ROOT", "/var/lib/verity/documents"),
		CORSOrigin:       envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Vector store ---
	store, err := semantic.New(cfg.QdrantAddr, cfg.CollectionPrefix)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	for _, ns := range []string{
		domain.NamespaceDefault,
		domain.NamespaceReports,
		domain.DomainNamespace(domain.DomainTravel),
		domain.DomainNamespace(domain.DomainRealEstate),
	} {
		if err := store.EnsureNamespace(ctx, ns, cfg.VectorDims); err != nil {
			return fmt.Errorf("ensure namespace %s: %w", ns, err)
		}
	}

	// --- Neo4j report catalog ---
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(ctx)
	reports := ingest.NewNeo4jReportStore(driver)

	// --- Model clients ---
	embedder := ollama.NewEmbedClient(cfg.OllamaURL, cfg.EmbedModel, cfg.EmbedRPS)
	chat := ollama.NewChatClient(cfg.OllamaURL, cfg.ChatModel, 0.3)
	breaker := resilience.NewBreaker(resilience.DefaultBreakerOpts)

	met := metrics.New()

	// --- Services ---
	pipelineOpts := ingest.DefaultOptions()
	pipelineOpts.ExpectDims = cfg.VectorDims
	pipeline := ingest.New(embedder, store, pipelineOpts, logger)

	orchestrator := retrieval.New(newGuardedEmbedder(embedder, resilience.NewBreaker(resilience.DefaultBreakerOpts)), store, logger)
	composer := answer.New(&guardedLLM{chat: chat, breaker: breaker}, logger)

	s := &server{
		pipeline:     pipeline,
		orchestrator: orchestrator,
		composer:     composer,
		reports:      reports,
		loader:       &ingest.FileLoader{Root: cfg.DataRoot},
		vectors:      store,
		metrics:      met,
		logger:       logger,
	}

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/ingest/retry", s.handleRetry)
	mux.HandleFunc("DELETE /api/documents/{id...}", s.handleDeleteDocument)
	mux.HandleFunc("GET /api/reports", s.handleListReports)
	mux.HandleFunc("GET /api/reports/{id}", s.handleGetReport)
	mux.Handle("GET /metrics", met.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.OTel("verity-api"),
		mid.Logger(logger),
		mid.Metrics(met),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// guardedEmbedder runs query embedding through its own circuit breaker so
// an embedding-service outage fails queries fast instead of stalling them.
type guardedEmbedder struct {
	stage fn.Stage[string, []float32]
}

func newGuardedEmbedder(c *ollama.EmbedClient, b *resilience.Breaker) *guardedEmbedder {
	return &guardedEmbedder{
		stage: resilience.BreakerStage(b, fn.Stage[string, []float32](
			func(ctx context.Context, text string) fn.Result[[]float32] {
				return fn.FromPair(c.Embed(ctx, text))
			})),
	}
}

func (g *guardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return g.stage(ctx, text).Unwrap()
}

// guardedLLM runs chat calls through the circuit breaker so a struggling
// model fails fast instead of queueing requests.
type guardedLLM struct {
	chat    *ollama.ChatClient
	breaker *resilience.Breaker
}

func (g *guardedLLM) Chat(ctx context.Context, system, prompt string) (string, error) {
	return resilience.Do(g.breaker, ctx, func(ctx context.Context) (string, error) {
		return g.chat.Chat(ctx, system, prompt)
	})
}
