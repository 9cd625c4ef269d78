// Command ingest-worker consumes documents from NATS and runs them through
// the ingestion pipeline into the vector store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/VerityAI/verity-mvp/engine/domain"
	"github.com/VerityAI/verity-mvp/engine/ingest"
	"github.com/VerityAI/verity-mvp/engine/semantic"
	"github.com/VerityAI/verity-mvp/pkg/ollama"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	natsURL := envOr("NATS_URL", nats.DefaultURL)
	ollamaURL := envOr("OLLAMA_URL", "http://localhost:11434")
	embedModel := envOr("EMBED_MODEL", "nomic-embed-text")
	qdrantAddr := envOr("QDRANT_ADDR", "localhost:6334")
	prefix := envOr("COLLECTION_PREFIX", "verity")
	dims := 768

	store, err := semantic.New(qdrantAddr, prefix)
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
		if err := store.EnsureNamespace(ctx, ns, dims); err != nil {
			return fmt.Errorf("ensure namespace %s: %w", ns, err)
		}
	}

	embedder := ollama.NewEmbedClient(ollamaURL, embedModel, 10)
	opts := ingest.DefaultOptions()
	opts.ExpectDims = dims
	pipeline := ingest.New(embedder, store, opts, logger)

	nc, err := nats.Connect(natsURL, nats.Name("verity-ingest-worker"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := ingest.StartConsumer(nc, pipeline, logger)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info("ingest worker running", "subject", ingest.IngestSubject)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
