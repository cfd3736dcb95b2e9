package ledger_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/auctionhub/coin-auction/internal/clock"
	"github.com/auctionhub/coin-auction/internal/ledger"
	"github.com/auctionhub/coin-auction/internal/store"
	"github.com/auctionhub/coin-auction/internal/store/memstore"
	"github.com/auctionhub/coin-auction/internal/telemetry"
)

type captureFeed struct {
	published []store.Transaction
	err       error
}

func (f *captureFeed) Publish(_ context.Context, tx *store.Transaction) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, *tx)
	return nil
}

func newWriter(t *testing.T, feed ledger.Feed) (*ledger.Writer, *store.Repositories) {
	t.Helper()
	repos := memstore.New(clock.Real{})
	w := ledger.NewWriter(repos.Transactions, feed, slog.Default(), telemetry.NewNopProvider().TracerProvider)
	return w, repos
}

func TestWriter_RecordsAndPublishes(t *testing.T) {
	feed := &captureFeed{}
	w, repos := newWriter(t, feed)
	ctx := context.Background()

	w.BidPlaced(ctx, "user-1", "auction-1", 150, "Morgan Dollar")
	w.Refund(ctx, "user-2", "auction-1", 100, "Morgan Dollar")
	w.AuctionWin(ctx, "seller-1", "user-1", "auction-1", 150, "Morgan Dollar")

	txs, err := repos.Transactions.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("user-1 has %d entries, want 1", len(txs))
	}
	if txs[0].Kind != store.TxBidPlaced {
		t.Errorf("kind = %q, want %q", txs[0].Kind, store.TxBidPlaced)
	}
	if txs[0].Amount != -150 {
		t.Errorf("amount = %d, want -150", txs[0].Amount)
	}

	if len(feed.published) != 3 {
		t.Errorf("published %d entries, want 3", len(feed.published))
	}
}

func TestWriter_FeedFailureDoesNotLoseEntry(t *testing.T) {
	feed := &captureFeed{err: errors.New("nats down")}
	w, repos := newWriter(t, feed)
	ctx := context.Background()

	w.CoinPurchase(ctx, "user-1", 1000, nil, "Welcome bonus")

	txs, err := repos.Transactions.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d entries, want 1 despite feed failure", len(txs))
	}
}

func TestWriter_NilFeed(t *testing.T) {
	w, repos := newWriter(t, nil)
	ctx := context.Background()

	w.CoinPurchase(ctx, "user-1", 500, nil, "Starter pack")

	txs, _ := repos.Transactions.ListByUser(ctx, "user-1")
	if len(txs) != 1 {
		t.Fatalf("got %d entries, want 1", len(txs))
	}
}

func TestWriter_ReplayBalance(t *testing.T) {
	w, _ := newWriter(t, nil)
	ctx := context.Background()

	price := 4.99
	w.CoinPurchase(ctx, "user-1", 1000, &price, "Starter pack")
	w.BidPlaced(ctx, "user-1", "auction-1", 300, "Gold Sovereign")
	w.Refund(ctx, "user-1", "auction-1", 300, "Gold Sovereign")
	w.BidPlaced(ctx, "user-1", "auction-1", 400, "Gold Sovereign")

	got, err := w.ReplayBalance(ctx, "user-1")
	if err != nil {
		t.Fatalf("ReplayBalance: %v", err)
	}
	if got != 600 {
		t.Errorf("replayed balance = %d, want 600", got)
	}

	// Sellers accumulate positive auction_win entries.
	w.AuctionWin(ctx, "seller-1", "user-1", "auction-1", 400, "Gold Sovereign")
	got, err = w.ReplayBalance(ctx, "seller-1")
	if err != nil {
		t.Fatalf("ReplayBalance(seller): %v", err)
	}
	if got != 400 {
		t.Errorf("seller replayed balance = %d, want 400", got)
	}
}
