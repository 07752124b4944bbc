package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/openschoolmap/georesolver/internal/core/domain"
)

const (
	subjectProgress        = "georesolver.pipeline.progress"
	subjectCheckpointSaved = "georesolver.checkpoint.saved"
)

// Publisher implements ports.EventPublisher on NATS. Checkpoint-saved events
// are retained in a JetStream stream so downstream consumers (indexers,
// dashboards) can pick up new batches; progress events are plain
// fire-and-forget.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS with aggressive reconnects, so multi-hour
// batch runs survive broker restarts, and ensures the checkpoint stream
// exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	if err := ensureCheckpointStream(conn); err != nil {
		// events published to the subject are simply not retained until the
		// stream exists; publishing itself still works
		slog.Warn("could not ensure checkpoint stream", "error", err)
	}

	return &Publisher{conn: conn}, nil
}

func ensureCheckpointStream(conn *nats.Conn) error {
	js, err := conn.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}

	cfg := nats.StreamConfig{
		Name:      "GEORESOLVER_CHECKPOINTS",
		Subjects:  []string{"georesolver.checkpoint.>"},
		Retention: nats.InterestPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist — try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// PublishProgress announces a progress snapshot. Publishes buffer client-side
// while the broker is away, so a slow broker never stalls the pipeline.
func (p *Publisher) PublishProgress(ctx context.Context, progress domain.PipelineProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	return p.conn.Publish(subjectProgress, data)
}

// PublishCheckpointSaved announces a durable checkpoint write.
func (p *Publisher) PublishCheckpointSaved(ctx context.Context, saved domain.CheckpointSaved) error {
	data, err := json.Marshal(saved)
	if err != nil {
		return err
	}
	return p.conn.Publish(subjectCheckpointSaved, data)
}

// IsConnected reports broker connectivity, for readiness checks.
func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
