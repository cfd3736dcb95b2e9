package auction

import (
	"errors"
	"time"

	"github.com/auctionhub/coin-auction/internal/store"
)

// Rejection kinds surfaced to callers. Validation errors are final;
// ErrConcurrentModification means the caller may retry with a fresh
// snapshot.
var (
	ErrAuctionNotFound        = errors.New("auction not found")
	ErrUserNotFound           = errors.New("user not found")
	ErrAuctionEnded           = errors.New("auction has ended")
	ErrSelfBid                = errors.New("sellers cannot bid on their own auctions")
	ErrBidTooLow              = errors.New("bid must exceed the current bid by at least 1 coin")
	ErrInsufficientFunds      = errors.New("insufficient coins")
	ErrConcurrentModification = errors.New("auction was modified concurrently")
	ErrInvalidListing         = errors.New("invalid listing")
)

// Categories lists the accepted auction categories.
var Categories = []string{"ancient", "modern", "commemorative", "bullion", "other"}

// ValidCategory reports whether c is an accepted category.
func ValidCategory(c string) bool {
	for _, cat := range Categories {
		if c == cat {
			return true
		}
	}
	return false
}

// Validate checks a proposed bid against an auction snapshot and the
// bidder's balance. It is pure: no clock reads, no store access.
//
// An auction with zero bids treats CurrentBid as the seller's starting
// bid; the first bid must still exceed it by at least 1.
func Validate(now time.Time, a *store.Auction, bidderID string, amount, balance int) error {
	if a.Status != store.StatusActive || !now.Before(a.EndTime) {
		return ErrAuctionEnded
	}
	if bidderID == a.SellerID {
		return ErrSelfBid
	}
	if amount < a.CurrentBid+1 {
		return ErrBidTooLow
	}
	if amount > balance {
		return ErrInsufficientFunds
	}
	return nil
}
