// Package ledger records coin movement as an append-only transaction
// trail. The trail is advisory: balances are owned by the balance
// Authority, and ReplayBalance exists to reconcile the two.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/auctionhub/coin-auction/internal/store"
)

// Feed publishes recorded entries to an external stream. Implementations
// must tolerate being called concurrently.
type Feed interface {
	Publish(ctx context.Context, tx *store.Transaction) error
}

// Writer appends ledger entries. Append failures are logged, never
// surfaced: a lost advisory entry must not fail the coin movement that
// already happened.
type Writer struct {
	txs    store.TransactionRepository
	feed   Feed
	logger *slog.Logger
	tracer trace.Tracer
}

// NewWriter returns a ledger Writer. feed may be nil when no stream is
// configured.
func NewWriter(txs store.TransactionRepository, feed Feed, logger *slog.Logger, tp trace.TracerProvider) *Writer {
	return &Writer{
		txs:    txs,
		feed:   feed,
		logger: logger,
		tracer: tp.Tracer("github.com/auctionhub/coin-auction/internal/ledger"),
	}
}

// BidPlaced records the escrow debit for a bid.
func (w *Writer) BidPlaced(ctx context.Context, userID, auctionID string, amount int, auctionTitle string) {
	w.record(ctx, &store.Transaction{
		Kind:        store.TxBidPlaced,
		UserID:      userID,
		AuctionID:   &auctionID,
		Amount:      -amount,
		Description: fmt.Sprintf("Bid on %s", auctionTitle),
	})
}

// Refund records the escrow release for an outbid bidder.
func (w *Writer) Refund(ctx context.Context, userID, auctionID string, amount int, auctionTitle string) {
	w.record(ctx, &store.Transaction{
		Kind:        store.TxRefund,
		UserID:      userID,
		AuctionID:   &auctionID,
		Amount:      amount,
		Description: fmt.Sprintf("Outbid on %s", auctionTitle),
	})
}

// AuctionWin records the seller's settlement credit.
func (w *Writer) AuctionWin(ctx context.Context, sellerID, winnerID, auctionID string, amount int, auctionTitle string) {
	w.record(ctx, &store.Transaction{
		Kind:           store.TxAuctionWin,
		UserID:         sellerID,
		CounterpartyID: &winnerID,
		AuctionID:      &auctionID,
		Amount:         amount,
		Description:    fmt.Sprintf("Sold %s", auctionTitle),
	})
}

// CoinPurchase records coins bought for real money or granted as a bonus.
// price is nil for bonus grants.
func (w *Writer) CoinPurchase(ctx context.Context, userID string, amount int, price *float64, description string) {
	w.record(ctx, &store.Transaction{
		Kind:        store.TxCoinPurchase,
		UserID:      userID,
		Amount:      amount,
		Price:       price,
		Description: description,
	})
}

func (w *Writer) record(ctx context.Context, tx *store.Transaction) {
	ctx, span := w.tracer.Start(ctx, "Writer.record",
		trace.WithAttributes(
			attribute.String("kind", tx.Kind),
			attribute.String("user_id", tx.UserID),
			attribute.Int("amount", tx.Amount),
		),
	)
	defer span.End()

	if err := w.txs.Append(ctx, tx); err != nil {
		w.logger.ErrorContext(ctx, "failed to append ledger entry",
			slog.String("kind", tx.Kind),
			slog.String("user_id", tx.UserID),
			slog.Any("error", err),
		)
		return
	}

	if w.feed == nil {
		return
	}
	if err := w.feed.Publish(ctx, tx); err != nil {
		w.logger.ErrorContext(ctx, "failed to publish ledger entry",
			slog.String("kind", tx.Kind),
			slog.Any("error", err),
		)
	}
}

// ForUser returns a user's ledger entries, newest first.
func (w *Writer) ForUser(ctx context.Context, userID string) ([]store.Transaction, error) {
	ctx, span := w.tracer.Start(ctx, "Writer.ForUser")
	defer span.End()

	return w.txs.ListByUser(ctx, userID)
}

// Recent returns the newest entries across all users.
func (w *Writer) Recent(ctx context.Context, limit int) ([]store.Transaction, error) {
	ctx, span := w.tracer.Start(ctx, "Writer.Recent")
	defer span.End()

	return w.txs.ListRecent(ctx, limit)
}

// ReplayBalance folds a user's ledger into the balance it implies. It is
// a reconciliation aid: the ledger is advisory and an entry can be lost,
// so a mismatch with the authoritative balance is a signal, not an error.
func (w *Writer) ReplayBalance(ctx context.Context, userID string) (int, error) {
	ctx, span := w.tracer.Start(ctx, "Writer.ReplayBalance",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	txs, err := w.txs.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("replaying ledger for user %s: %w", userID, err)
	}

	total := 0
	for _, tx := range txs {
		total += tx.Amount
	}
	return total, nil
}
