package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/auctionhub/coin-auction/internal/balance"
	"github.com/auctionhub/coin-auction/internal/clock"
	"github.com/auctionhub/coin-auction/internal/ledger"
	"github.com/auctionhub/coin-auction/internal/store"
)

// Sweeper finalizes expired auctions: winner declaration, seller
// credit, and the auction_win ledger entry. It shares the Engine's
// lock table so settlement cannot interleave with a bid at the expiry
// boundary, and the store's conditional finalize predicate makes each
// settlement exactly-once even across overlapping sweeps.
type Sweeper struct {
	auctions store.AuctionRepository
	balance  *balance.Authority
	ledger   *ledger.Writer
	locks    *LockTable

	interval    time.Duration
	lockTimeout time.Duration

	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewSweeper returns an expiry Sweeper. locks must be the Engine's table.
func NewSweeper(
	auctions store.AuctionRepository,
	auth *balance.Authority,
	lw *ledger.Writer,
	locks *LockTable,
	interval, lockTimeout time.Duration,
	logger *slog.Logger,
	tp trace.TracerProvider,
	clk clock.Clock,
) *Sweeper {
	return &Sweeper{
		auctions:    auctions,
		balance:     auth,
		ledger:      lw,
		locks:       locks,
		interval:    interval,
		lockTimeout: lockTimeout,
		logger:      logger,
		tracer:      tp.Tracer("github.com/auctionhub/coin-auction/internal/auction"),
		clock:       clk,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. Sweep errors
// are logged; the loop never stops on them.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "expiry sweeper started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep finalizes every auction whose deadline has passed and returns
// how many were moved to ended. One auction's failure never stops the
// rest of the batch.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "Sweeper.Sweep")
	defer span.End()

	expired, err := s.auctions.ListExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("listing expired auctions: %w", err)
	}

	finalized := 0
	for i := range expired {
		if s.settle(ctx, &expired[i]) {
			finalized++
		}
	}

	if finalized > 0 {
		s.logger.InfoContext(ctx, "sweep complete",
			slog.Int("expired", len(expired)),
			slog.Int("finalized", finalized),
		)
	}
	span.SetAttributes(attribute.Int("finalized", finalized))
	return finalized, nil
}

// settle finalizes one expired auction and reports whether it moved to
// ended in this call. A lock timeout just defers the auction to the
// next sweep.
func (s *Sweeper) settle(ctx context.Context, stale *store.Auction) bool {
	release, err := s.locks.Acquire(ctx, stale.ID, s.lockTimeout)
	if err != nil {
		s.logger.WarnContext(ctx, "skipping contended auction, next sweep retries",
			slog.String("auction_id", stale.ID),
			slog.Any("error", err),
		)
		return false
	}
	defer release()

	// Re-read under the lock: a bid may have landed between the listing
	// and here.
	a, err := s.auctions.GetByID(ctx, stale.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to re-read expired auction",
			slog.String("auction_id", stale.ID),
			slog.Any("error", err),
		)
		return false
	}
	if a.Status != store.StatusActive {
		return false
	}

	// Zero-bid expiry: end with no winner, no coin movement.
	if a.NumberOfBids == 0 {
		if err := s.auctions.End(ctx, a.ID); err != nil {
			if !errors.Is(err, store.ErrAlreadyFinalized) {
				s.logger.ErrorContext(ctx, "failed to end zero-bid auction",
					slog.String("auction_id", a.ID),
					slog.Any("error", err),
				)
			}
			return false
		}
		s.logger.InfoContext(ctx, "auction expired with no bids",
			slog.String("auction_id", a.ID),
			slog.String("title", a.Title),
		)
		return true
	}

	if a.LastBidderID == nil || a.LastBidderName == nil {
		s.logger.ErrorContext(ctx, "integrity: expired auction has bids but no last bidder, flagged for reconciliation",
			slog.String("auction_id", a.ID),
			slog.Int("number_of_bids", a.NumberOfBids),
		)
		return false
	}
	winnerID, winnerName := *a.LastBidderID, *a.LastBidderName

	// The conditional predicate (active, winner unset) is the
	// exactly-once gate: losing it means another sweep settled first.
	if err := s.auctions.Finalize(ctx, a.ID, winnerID, winnerName); err != nil {
		if !errors.Is(err, store.ErrAlreadyFinalized) {
			s.logger.ErrorContext(ctx, "failed to finalize auction",
				slog.String("auction_id", a.ID),
				slog.Any("error", err),
			)
		}
		return false
	}

	// Settlement: escrowed coins reach the seller. The winner was
	// debited at bid time, so failure here is an integrity error for
	// manual reconciliation, not a reason to unwind the finalization.
	if _, err := s.balance.Credit(ctx, a.SellerID, a.CurrentBid, "auction settlement"); err != nil {
		s.logger.ErrorContext(ctx, "integrity: winner declared but seller credit failed, flagged for reconciliation",
			slog.String("auction_id", a.ID),
			slog.String("seller_id", a.SellerID),
			slog.Int("amount", a.CurrentBid),
			slog.Any("error", err),
		)
		return true
	}

	s.ledger.AuctionWin(ctx, a.SellerID, winnerID, a.ID, a.CurrentBid, a.Title)

	s.logger.InfoContext(ctx, "auction settled",
		slog.String("auction_id", a.ID),
		slog.String("title", a.Title),
		slog.String("winner_id", winnerID),
		slog.Int("amount", a.CurrentBid),
	)
	return true
}
