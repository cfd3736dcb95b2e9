// Package feed publishes ledger entries to a NATS JetStream stream so
// other services can follow coin movement in real time.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/auctionhub/coin-auction/internal/config"
	"github.com/auctionhub/coin-auction/internal/store"
)

// Publisher publishes ledger entries to JetStream.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream string
	logger *slog.Logger
}

// Connect dials NATS and ensures the ledger stream exists.
func Connect(ctx context.Context, cfg config.FeedConfig, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("auctionhub-ledger-feed"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{"ledger.>"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensuring stream %s: %w", cfg.Stream, err)
	}

	return &Publisher{nc: nc, js: js, stream: cfg.Stream, logger: logger}, nil
}

// Subject maps a transaction kind to its feed subject.
func Subject(kind string) string {
	return "ledger." + kind
}

// Publish sends a ledger entry to the feed. Failures are returned to the
// caller; the ledger writer decides whether they are fatal.
func (p *Publisher) Publish(ctx context.Context, tx *store.Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encoding ledger entry: %w", err)
	}
	if _, err := p.js.Publish(ctx, Subject(tx.Kind), data); err != nil {
		return fmt.Errorf("publishing ledger entry: %w", err)
	}
	return nil
}

// Close drains the NATS connection.
func (p *Publisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}
