// Package auction implements the bid placement and expiry settlement
// engine: bid validation, coin escrow, serialized per-auction state
// transitions, and exactly-once finalization.
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

// Placement reports the auction state after an accepted bid.
type Placement struct {
	NewCurrentBid int `json:"new_current_bid"`
	NumberOfBids  int `json:"number_of_bids"`
}

// Engine coordinates bid placement. Bids on one auction are serialized
// through a per-auction lock shared with the Sweeper, and the auction
// update itself is a conditional write keyed on the record version, so
// no bid is ever validated against a stale current bid.
type Engine struct {
	auctions store.AuctionRepository
	users    store.UserRepository
	balance  *balance.Authority
	ledger   *ledger.Writer
	locks    *LockTable

	lockTimeout time.Duration
	retries     int

	logger *slog.Logger
	tracer trace.Tracer
	clock  clock.Clock
}

// NewEngine returns a bid placement Engine. locks must be the same table
// the Sweeper uses.
func NewEngine(
	auctions store.AuctionRepository,
	users store.UserRepository,
	auth *balance.Authority,
	lw *ledger.Writer,
	locks *LockTable,
	lockTimeout time.Duration,
	retries int,
	logger *slog.Logger,
	tp trace.TracerProvider,
	clk clock.Clock,
) *Engine {
	return &Engine{
		auctions:    auctions,
		users:       users,
		balance:     auth,
		ledger:      lw,
		locks:       locks,
		lockTimeout: lockTimeout,
		retries:     retries,
		logger:      logger,
		tracer:      tp.Tracer("github.com/auctionhub/coin-auction/internal/auction"),
		clock:       clk,
	}
}

// PlaceBid validates and applies one bid. The bidder is debited up
// front (escrow), the previous highest bidder is fully refunded, and
// the auction record advances under an optimistic version check. Any
// failure after the debit is compensated so no coins are lost.
func (e *Engine) PlaceBid(ctx context.Context, auctionID, bidderID string, amount int) (*Placement, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.PlaceBid",
		trace.WithAttributes(
			attribute.String("auction_id", auctionID),
			attribute.String("bidder_id", bidderID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	release, err := e.locks.Acquire(ctx, auctionID, e.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	for attempt := 0; attempt < e.retries; attempt++ {
		placement, err := e.tryPlaceBid(ctx, auctionID, bidderID, amount)
		if errors.Is(err, store.ErrVersionConflict) {
			e.logger.WarnContext(ctx, "bid hit version conflict, retrying",
				slog.String("auction_id", auctionID),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		return placement, nil
	}
	return nil, ErrConcurrentModification
}

// tryPlaceBid runs one validate-debit-apply cycle against a fresh
// snapshot. A store.ErrVersionConflict return means the snapshot went
// stale and the caller should retry; all coin movement from this
// attempt has been compensated by then.
func (e *Engine) tryPlaceBid(ctx context.Context, auctionID, bidderID string, amount int) (*Placement, error) {
	a, err := e.auctions.GetByID(ctx, auctionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading auction: %w", err)
	}

	bidder, err := e.users.GetByID(ctx, bidderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading bidder: %w", err)
	}

	if err := Validate(e.clock.Now(), a, bidderID, amount, bidder.Coins); err != nil {
		return nil, err
	}

	// Escrow the new bid.
	if _, err := e.balance.Debit(ctx, bidderID, amount, "bid escrow"); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return nil, ErrInsufficientFunds
		}
		return nil, fmt.Errorf("escrowing bid: %w", err)
	}

	// Release the previous highest bidder's escrow in full.
	refunded := false
	var prevBidderID string
	prevAmount := a.CurrentBid
	if a.NumberOfBids > 0 && a.LastBidderID != nil {
		prevBidderID = *a.LastBidderID
		if _, err := e.balance.Credit(ctx, prevBidderID, prevAmount, "outbid refund"); err != nil {
			e.compensate(ctx, bidderID, amount, "", 0)
			return nil, fmt.Errorf("refunding previous bidder: %w", err)
		}
		refunded = true
	}

	bid := &store.Bid{BidderID: bidderID, BidderName: bidder.Name, Amount: amount}
	if err := e.auctions.ApplyBid(ctx, a.ID, a.Version, bid); err != nil {
		if refunded {
			e.compensate(ctx, bidderID, amount, prevBidderID, prevAmount)
		} else {
			e.compensate(ctx, bidderID, amount, "", 0)
		}
		if errors.Is(err, store.ErrVersionConflict) {
			return nil, store.ErrVersionConflict
		}
		return nil, fmt.Errorf("applying bid: %w", err)
	}

	e.ledger.BidPlaced(ctx, bidderID, a.ID, amount, a.Title)
	if refunded {
		e.ledger.Refund(ctx, prevBidderID, a.ID, prevAmount, a.Title)
	}

	e.logger.InfoContext(ctx, "bid accepted",
		slog.String("auction_id", a.ID),
		slog.String("bidder_id", bidderID),
		slog.Int("amount", amount),
		slog.Int("number_of_bids", a.NumberOfBids+1),
	)
	return &Placement{NewCurrentBid: amount, NumberOfBids: a.NumberOfBids + 1}, nil
}

// compensate unwinds the coin movement of a failed attempt: the bidder
// gets the escrow back and, when the previous bidder was already
// refunded, that refund is re-escrowed. A compensation failure is an
// integrity error: it is logged for manual reconciliation, never
// propagated, so the caller still sees the original failure.
func (e *Engine) compensate(ctx context.Context, bidderID string, amount int, prevBidderID string, prevAmount int) {
	if _, err := e.balance.Credit(ctx, bidderID, amount, "bid compensation"); err != nil {
		e.logger.ErrorContext(ctx, "integrity: failed to return escrow after aborted bid",
			slog.String("user_id", bidderID),
			slog.Int("amount", amount),
			slog.Any("error", err),
		)
	}
	if prevBidderID == "" {
		return
	}
	if _, err := e.balance.Debit(ctx, prevBidderID, prevAmount, "refund reversal"); err != nil {
		e.logger.ErrorContext(ctx, "integrity: failed to re-escrow refunded bid after aborted bid",
			slog.String("user_id", prevBidderID),
			slog.Int("amount", prevAmount),
			slog.Any("error", err),
		)
	}
}

// CreateAuction lists a new auction for the seller. The starting bid
// becomes CurrentBid until the first accepted bid replaces it.
func (e *Engine) CreateAuction(ctx context.Context, sellerID, title, description, category string, startingBid, durationHours int, imageURL string) (*store.Auction, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.CreateAuction",
		trace.WithAttributes(
			attribute.String("seller_id", sellerID),
			attribute.String("category", category),
		),
	)
	defer span.End()

	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidListing)
	}
	if !ValidCategory(category) {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidListing, category)
	}
	if startingBid < 1 {
		return nil, fmt.Errorf("%w: starting bid must be at least 1 coin", ErrInvalidListing)
	}
	if durationHours < 1 {
		return nil, fmt.Errorf("%w: duration must be at least 1 hour", ErrInvalidListing)
	}

	seller, err := e.users.GetByID(ctx, sellerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading seller: %w", err)
	}

	a := &store.Auction{
		Title:       title,
		Description: description,
		Category:    category,
		CurrentBid:  startingBid,
		EndTime:     e.clock.Now().Add(time.Duration(durationHours) * time.Hour).UTC(),
		ImageURL:    imageURL,
		SellerID:    seller.ID,
		SellerName:  seller.Name,
	}
	if err := e.auctions.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("creating auction: %w", err)
	}

	e.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", a.ID),
		slog.String("seller_id", sellerID),
		slog.String("title", title),
		slog.Time("end_time", a.EndTime),
	)
	return a, nil
}

// GetAuction returns one auction snapshot.
func (e *Engine) GetAuction(ctx context.Context, id string) (*store.Auction, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.GetAuction")
	defer span.End()

	a, err := e.auctions.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	return a, err
}

// ListAuctions returns auctions matching the filter, newest first.
func (e *Engine) ListAuctions(ctx context.Context, f store.AuctionFilter) ([]store.Auction, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.ListAuctions")
	defer span.End()

	return e.auctions.List(ctx, f)
}

// BidHistory returns an auction's bids in chronological order.
func (e *Engine) BidHistory(ctx context.Context, auctionID string) ([]store.Bid, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.BidHistory")
	defer span.End()

	if _, err := e.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return e.auctions.ListBids(ctx, auctionID)
}

// CancelAuction withdraws a listing before any bid is accepted. Only
// the seller may cancel.
func (e *Engine) CancelAuction(ctx context.Context, auctionID, sellerID string) error {
	ctx, span := e.tracer.Start(ctx, "Engine.CancelAuction",
		trace.WithAttributes(attribute.String("auction_id", auctionID)),
	)
	defer span.End()

	release, err := e.locks.Acquire(ctx, auctionID, e.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	a, err := e.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}
	if a.SellerID != sellerID {
		return fmt.Errorf("%w: only the seller can cancel a listing", store.ErrCannotCancel)
	}
	if err := e.auctions.Cancel(ctx, auctionID); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "auction cancelled",
		slog.String("auction_id", auctionID),
		slog.String("seller_id", sellerID),
	)
	return nil
}

// Winnings returns the auctions a user has won.
func (e *Engine) Winnings(ctx context.Context, userID string) ([]store.Auction, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Winnings")
	defer span.End()

	return e.auctions.ListWonBy(ctx, userID)
}

// Listings returns the auctions a user is selling or has sold.
func (e *Engine) Listings(ctx context.Context, userID string) ([]store.Auction, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Listings")
	defer span.End()

	return e.auctions.ListBySeller(ctx, userID)
}
