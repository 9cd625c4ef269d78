package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/VerityAI/verity-mvp/engine/domain"
	"github.com/VerityAI/verity-mvp/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// IngestSubject carries SourceDocuments to ingest.
	IngestSubject = "verity.ingest"
	// ResultSubject carries per-document outcomes.
	ResultSubject = "verity.ingest.result"
	// DLQSubject is the dead letter queue for documents that exhausted retries.
	DLQSubject = "verity.ingest.dlq"
	// ConsumerMaxRetries before a message is sent to the DLQ.
	ConsumerMaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// ResultMessage is published to ResultSubject after each document.
type ResultMessage struct {
	SourceID string `json:"source_id"`
	Chunks   int    `json:"chunks,omitempty"`
	Error    string `json:"error,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Document domain.SourceDocument `json:"document"`
	Error    string                `json:"error"`
	Kind     string                `json:"kind"`
	Retries  int                   `json:"retries"`
}

// StartConsumer subscribes to IngestSubject and runs each received document
// through the pipeline. Transient failures are re-published with an
// incremented retry count; exhausted or permanent failures go to the DLQ.
func StartConsumer(nc *nats.Conn, p *Pipeline, logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}

	return nc.Subscribe(IngestSubject, func(msg *nats.Msg) {
		var doc domain.SourceDocument
		if err := json.Unmarshal(msg.Data, &doc); err != nil {
			logger.Error("ingest consumer: unmarshal failed", "err", err)
			return
		}

		ctx := context.Background()

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		chunks, err := p.processDocument(ctx, doc)
		if err == nil {
			logger.Info("ingest consumer: success", "source_id", doc.ID, "chunks", chunks)
			if perr := natsutil.Publish(ctx, nc, ResultSubject, ResultMessage{SourceID: doc.ID, Chunks: chunks}); perr != nil {
				logger.Warn("ingest consumer: result publish failed", "err", perr)
			}
			ack(msg)
			return
		}

		kind := domain.FailureKind(err)
		retries++
		logger.Error("ingest consumer: document failed",
			"source_id", doc.ID,
			"kind", kind,
			"retry", retries,
			"err", err,
		)

		// Only transient failures are worth re-queueing.
		if kind == domain.KindTransientExhausted && retries < ConsumerMaxRetries {
			retryMsg := nats.NewMsg(IngestSubject)
			retryMsg.Data = msg.Data
			retryMsg.Header = nats.Header{}
			retryMsg.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
			if perr := nc.PublishMsg(retryMsg); perr != nil {
				logger.Error("ingest consumer: retry publish failed", "err", perr)
			}
			ack(msg)
			return
		}

		dlq := dlqMessage{Document: doc, Error: err.Error(), Kind: kind, Retries: retries}
		if perr := natsutil.Publish(ctx, nc, DLQSubject, dlq); perr != nil {
			logger.Error("ingest consumer: DLQ publish failed", "err", perr)
		}
		if perr := natsutil.Publish(ctx, nc, ResultSubject, ResultMessage{SourceID: doc.ID, Error: err.Error(), Kind: kind}); perr != nil {
			logger.Warn("ingest consumer: result publish failed", "err", perr)
		}
		ack(msg)
	})
}

// ack acknowledges JetStream-delivered messages; plain messages have no reply.
func ack(msg *nats.Msg) {
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}
