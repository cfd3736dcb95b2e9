package auction_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/auctionhub/coin-auction/internal/auction"
	"github.com/auctionhub/coin-auction/internal/balance"
	"github.com/auctionhub/coin-auction/internal/ledger"
	"github.com/auctionhub/coin-auction/internal/store"
	"github.com/auctionhub/coin-auction/internal/telemetry"
)

// seedExpiredWithBid creates an expired auction carrying one escrowed
// bid, bypassing the engine so the sweeper is exercised in isolation.
func seedExpiredWithBid(t *testing.T, env *testEnv, seller, bidder *store.User, amount int) *store.Auction {
	t.Helper()
	ctx := context.Background()
	a := env.auction(t, seller.ID, seller.Name, 10, fixedNow.Add(-time.Minute))
	if err := env.repos.Auctions.ApplyBid(ctx, a.ID, 0, &store.Bid{
		BidderID: bidder.ID, BidderName: bidder.Name, Amount: amount,
	}); err != nil {
		t.Fatalf("seeding bid: %v", err)
	}
	if _, err := env.repos.Users.Debit(ctx, bidder.ID, amount); err != nil {
		t.Fatalf("seeding escrow: %v", err)
	}
	return a
}

func TestSweeper_SettlesExpiredAuction(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()
	seller := env.user(t, "Seller", "s@example.com", 500)
	bidder := env.user(t, "Bidder", "b@example.com", 1000)
	a := seedExpiredWithBid(t, env, seller, bidder, 210)

	n, err := env.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("finalized = %d, want 1", n)
	}

	got, _ := env.repos.Auctions.GetByID(ctx, a.ID)
	if got.Status != store.StatusEnded {
		t.Errorf("Status = %q, want ended", got.Status)
	}
	if got.WinnerID == nil || *got.WinnerID != bidder.ID {
		t.Errorf("WinnerID = %v, want %q", got.WinnerID, bidder.ID)
	}

	// Escrowed coins reached the seller; the winner stays debited.
	if gotCoins := env.coins(t, seller.ID); gotCoins != 710 {
		t.Errorf("seller balance = %d, want 710", gotCoins)
	}
	if gotCoins := env.coins(t, bidder.ID); gotCoins != 790 {
		t.Errorf("winner balance = %d, want 790", gotCoins)
	}

	txs, _ := env.repos.Transactions.ListByUser(ctx, seller.ID)
	if len(txs) != 1 || txs[0].Kind != store.TxAuctionWin || txs[0].Amount != 210 {
		t.Errorf("seller ledger = %v, want one auction_win of 210", txs)
	}
	if txs[0].CounterpartyID == nil || *txs[0].CounterpartyID != bidder.ID {
		t.Errorf("counterparty = %v, want winner %q", txs[0].CounterpartyID, bidder.ID)
	}
}

func TestSweeper_SecondSweepIsNoop(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()
	seller := env.user(t, "Seller", "s@example.com", 0)
	bidder := env.user(t, "Bidder", "b@example.com", 1000)
	seedExpiredWithBid(t, env, seller, bidder, 100)

	if n, err := env.sweeper.Sweep(ctx); err != nil || n != 1 {
		t.Fatalf("first Sweep = (%d, %v), want (1, nil)", n, err)
	}
	if n, err := env.sweeper.Sweep(ctx); err != nil || n != 0 {
		t.Fatalf("second Sweep = (%d, %v), want (0, nil)", n, err)
	}

	// Seller credited exactly once.
	if got := env.coins(t, seller.ID); got != 100 {
		t.Errorf("seller balance = %d, want 100", got)
	}
	txs, _ := env.repos.Transactions.ListByUser(ctx, seller.ID)
	if len(txs) != 1 {
		t.Errorf("seller ledger entries = %d, want 1", len(txs))
	}
}

func TestSweeper_ZeroBidExpiry(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()
	seller := env.user(t, "Seller", "s@example.com", 300)
	env.auction(t, seller.ID, seller.Name, 50, fixedNow.Add(-time.Minute))

	n, err := env.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("finalized = %d, want 1", n)
	}

	auctions, _ := env.repos.Auctions.ListBySeller(ctx, seller.ID)
	if len(auctions) != 1 {
		t.Fatalf("got %d auctions, want 1", len(auctions))
	}
	if auctions[0].Status != store.StatusEnded {
		t.Errorf("Status = %q, want ended", auctions[0].Status)
	}
	if auctions[0].WinnerID != nil {
		t.Errorf("WinnerID = %v, want nil", auctions[0].WinnerID)
	}

	// No coin movement and no ledger entry.
	if got := env.coins(t, seller.ID); got != 300 {
		t.Errorf("seller balance = %d, want 300 unchanged", got)
	}
	txs, _ := env.repos.Transactions.ListByUser(ctx, seller.ID)
	if len(txs) != 0 {
		t.Errorf("seller ledger entries = %d, want 0", len(txs))
	}
}

func TestSweeper_AuctionAtExactDeadlineNotSwept(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()
	seller := env.user(t, "Seller", "s@example.com", 0)
	env.auction(t, seller.ID, seller.Name, 50, fixedNow)

	n, err := env.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("finalized = %d, want 0 at the deadline instant", n)
	}
}

// failingFinalize rejects finalization for one auction to prove a bad
// auction cannot take the batch down with it.
type failingFinalize struct {
	store.AuctionRepository
	failID string
}

func (f *failingFinalize) Finalize(ctx context.Context, id, winnerID, winnerName string) error {
	if id == f.failID {
		return context.DeadlineExceeded
	}
	return f.AuctionRepository.Finalize(ctx, id, winnerID, winnerName)
}

func TestSweeper_OneFailureDoesNotStopBatch(t *testing.T) {
	env := newEnv(t, nil)
	ctx := context.Background()
	seller := env.user(t, "Seller", "s@example.com", 0)
	bidder := env.user(t, "Bidder", "b@example.com", 1000)
	bad := seedExpiredWithBid(t, env, seller, bidder, 100)
	good := seedExpiredWithBid(t, env, seller, bidder, 200)

	logger := slog.Default()
	tp := telemetry.NewNopProvider().TracerProvider
	auth := balance.NewAuthority(env.repos.Users, logger, tp)
	lw := ledger.NewWriter(env.repos.Transactions, nil, logger, tp)
	sweeper := auction.NewSweeper(
		&failingFinalize{AuctionRepository: env.repos.Auctions, failID: bad.ID},
		auth, lw, auction.NewLockTable(),
		time.Minute, 5*time.Second, logger, tp, env.clk,
	)

	n, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("finalized = %d, want 1 (the healthy auction)", n)
	}

	gotGood, _ := env.repos.Auctions.GetByID(ctx, good.ID)
	if gotGood.Status != store.StatusEnded {
		t.Errorf("healthy auction status = %q, want ended", gotGood.Status)
	}
	gotBad, _ := env.repos.Auctions.GetByID(ctx, bad.ID)
	if gotBad.Status != store.StatusActive {
		t.Errorf("failing auction status = %q, want still active", gotBad.Status)
	}
}

func TestSweeper_RaceWithBid_LockDefersSettlement(t *testing.T) {
	// A bid holding the auction lock makes the sweeper skip the auction
	// for this cycle instead of blocking the batch.
	env := newEnv(t, nil)
	ctx := context.Background()
	seller := env.user(t, "Seller", "s@example.com", 0)
	bidder := env.user(t, "Bidder", "b@example.com", 1000)
	a := seedExpiredWithBid(t, env, seller, bidder, 100)

	logger := slog.Default()
	tp := telemetry.NewNopProvider().TracerProvider
	auth := balance.NewAuthority(env.repos.Users, logger, tp)
	lw := ledger.NewWriter(env.repos.Transactions, nil, logger, tp)
	locks := auction.NewLockTable()
	sweeper := auction.NewSweeper(env.repos.Auctions, auth, lw, locks,
		time.Minute, 20*time.Millisecond, logger, tp, env.clk)

	release, err := locks.Acquire(ctx, a.ID, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	n, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("finalized = %d, want 0 while the lock is held", n)
	}
	release()

	// Next sweep settles normally.
	if n, err := sweeper.Sweep(ctx); err != nil || n != 1 {
		t.Fatalf("Sweep after release = (%d, %v), want (1, nil)", n, err)
	}
}
