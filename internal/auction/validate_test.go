package auction_test

import (
	"errors"
	"testing"
	"time"

	"github.com/auctionhub/coin-auction/internal/auction"
	"github.com/auctionhub/coin-auction/internal/store"
)

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func activeAuction() *store.Auction {
	return &store.Auction{
		ID:         "a1",
		Title:      "Gold Sovereign",
		CurrentBid: 50,
		EndTime:    fixedNow.Add(time.Hour),
		SellerID:   "seller-1",
		Status:     store.StatusActive,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *store.Auction)
		now     time.Time
		bidder  string
		amount  int
		balance int
		wantErr error
	}{
		{
			name:    "accepted",
			now:     fixedNow,
			bidder:  "bidder-1",
			amount:  51,
			balance: 100,
		},
		{
			name:    "exact current bid rejected",
			now:     fixedNow,
			bidder:  "bidder-1",
			amount:  50,
			balance: 100,
			wantErr: auction.ErrBidTooLow,
		},
		{
			name:    "below current bid rejected",
			now:     fixedNow,
			bidder:  "bidder-1",
			amount:  30,
			balance: 100,
			wantErr: auction.ErrBidTooLow,
		},
		{
			name:    "self bid rejected",
			now:     fixedNow,
			bidder:  "seller-1",
			amount:  60,
			balance: 100,
			wantErr: auction.ErrSelfBid,
		},
		{
			name:    "insufficient funds",
			now:     fixedNow,
			bidder:  "bidder-1",
			amount:  60,
			balance: 59,
			wantErr: auction.ErrInsufficientFunds,
		},
		{
			name:    "bid equal to full balance accepted",
			now:     fixedNow,
			bidder:  "bidder-1",
			amount:  60,
			balance: 60,
		},
		{
			name:    "past deadline rejected",
			now:     fixedNow.Add(2 * time.Hour),
			bidder:  "bidder-1",
			amount:  60,
			balance: 100,
			wantErr: auction.ErrAuctionEnded,
		},
		{
			name:    "exactly at deadline rejected",
			now:     fixedNow.Add(time.Hour),
			bidder:  "bidder-1",
			amount:  60,
			balance: 100,
			wantErr: auction.ErrAuctionEnded,
		},
		{
			name:    "ended status rejected",
			mutate:  func(a *store.Auction) { a.Status = store.StatusEnded },
			now:     fixedNow,
			bidder:  "bidder-1",
			amount:  60,
			balance: 100,
			wantErr: auction.ErrAuctionEnded,
		},
		{
			name:    "cancelled status rejected",
			mutate:  func(a *store.Auction) { a.Status = store.StatusCancelled },
			now:     fixedNow,
			bidder:  "bidder-1",
			amount:  60,
			balance: 100,
			wantErr: auction.ErrAuctionEnded,
		},
		{
			name: "first bid must exceed starting bid",
			mutate: func(a *store.Auction) {
				a.CurrentBid = 100
				a.NumberOfBids = 0
			},
			now:     fixedNow,
			bidder:  "bidder-1",
			amount:  100,
			balance: 500,
			wantErr: auction.ErrBidTooLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := activeAuction()
			if tt.mutate != nil {
				tt.mutate(a)
			}
			err := auction.Validate(tt.now, a, tt.bidder, tt.amount, tt.balance)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range auction.Categories {
		if !auction.ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = false, want true", c)
		}
	}
	for _, c := range []string{"", "all", "rare", "ANCIENT"} {
		if auction.ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = true, want false", c)
		}
	}
}
