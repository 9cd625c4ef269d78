// Command bulk-ingest walks a directory tree of documents and runs every
// file through the ingestion pipeline. Directory layout supplies the tags:
// <root>/<domain>/<category>/file.txt. A summary report is printed and,
// when Neo4j is configured, persisted for later retry.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/VerityAI/verity-mvp/engine/domain"
	"github.com/VerityAI/verity-mvp/engine/ingest"
	"github.com/VerityAI/verity-mvp/engine/semantic"
	"github.com/VerityAI/verity-mvp/pkg/ollama"
)

func main() {
	var (
		dataDir    = flag.String("dir", "./data", "root directory of documents to ingest")
		namespace  = flag.String("namespace", domain.NamespaceDefault, "target namespace")
		ollamaURL  = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel = flag.String("model", "nomic-embed-text", "embedding model")
		embedRPS   = flag.Float64("rps", 10, "max embedding requests per second")
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		prefix     = flag.String("prefix", "verity", "collection name prefix")
		dims       = flag.Int("dims", 768, "expected embedding dimensions")
		workers    = flag.Int("workers", 4, "concurrent documents")
		neo4jURL   = flag.String("neo4j", "", "Neo4j bolt URL for report persistence (optional)")
		neo4jUser  = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass  = flag.String("neo4j-pass", "password", "Neo4j password")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, config{
		dataDir: *dataDir, namespace: *namespace,
		ollamaURL: *ollamaURL, embedModel: *embedModel, embedRPS: *embedRPS,
		qdrantAddr: *qdrantAddr, prefix: *prefix, dims: *dims, workers: *workers,
		neo4jURL: *neo4jURL, neo4jUser: *neo4jUser, neo4jPass: *neo4jPass,
	}, logger); err != nil {
		logger.Error("bulk ingest failed", "err", err)
		os.Exit(1)
	}
}

type config struct {
	dataDir, namespace                string
	ollamaURL, embedModel             string
	embedRPS                          float64
	qdrantAddr, prefix                string
	dims, workers                     int
	neo4jURL, neo4jUser, neo4jPass    string
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	loader := &ingest.FileLoader{Root: cfg.dataDir}
	ids, err := loader.Walk()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no ingestable files under %s", cfg.dataDir)
	}
	logger.Info("found documents", "count", len(ids), "root", cfg.dataDir)

	store, err := semantic.New(cfg.qdrantAddr, cfg.prefix)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	namespaces := []string{
		cfg.namespace,
		domain.DomainNamespace(domain.DomainTravel),
		domain.DomainNamespace(domain.DomainRealEstate),
	}
	for _, ns := range namespaces {
		if err := store.EnsureNamespace(ctx, ns, cfg.dims); err != nil {
			return fmt.Errorf("ensure namespace %s: %w", ns, err)
		}
	}

	embedder := ollama.NewEmbedClient(cfg.ollamaURL, cfg.embedModel, cfg.embedRPS)
	opts := ingest.DefaultOptions()
	opts.Namespace = cfg.namespace
	opts.ExpectDims = cfg.dims
	opts.Workers = cfg.workers
	pipeline := ingest.New(embedder, store, opts, logger)

	docs := make([]domain.SourceDocument, 0, len(ids))
	for _, id := range ids {
		doc, err := loader.Load(ctx, id)
		if err != nil {
			logger.Warn("skipping unreadable file", "id", id, "err", err)
			continue
		}
		docs = append(docs, doc)
	}

	start := time.Now()
	report := pipeline.Ingest(ctx, docs)

	fmt.Printf("\nIngestion report %s\n", report.ID)
	fmt.Printf("  submitted: %d\n", report.TotalSubmitted)
	fmt.Printf("  succeeded: %d\n", report.Succeeded)
	fmt.Printf("  failed:    %d\n", report.Failed)
	fmt.Printf("  chunks:    %d\n", report.TotalChunks)
	fmt.Printf("  elapsed:   %s\n", time.Since(start).Round(time.Millisecond))
	for _, f := range report.Failures {
		fmt.Printf("  FAIL %-40s %s: %s\n", f.ID, f.ErrorKind, f.Message)
	}

	if cfg.neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.neo4jURL, neo4j.BasicAuth(cfg.neo4jUser, cfg.neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer driver.Close(ctx)
		if err := ingest.NewNeo4jReportStore(driver).Save(ctx, report); err != nil {
			return fmt.Errorf("persist report: %w", err)
		}
		logger.Info("report persisted", "report_id", report.ID)
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", report.Failed, report.TotalSubmitted)
	}
	return nil
}
