package feed_test

import (
	"testing"

	"github.com/auctionhub/coin-auction/internal/feed"
	"github.com/auctionhub/coin-auction/internal/store"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{store.TxBidPlaced, "ledger.bid_placed"},
		{store.TxAuctionWin, "ledger.auction_win"},
		{store.TxRefund, "ledger.refund"},
		{store.TxCoinPurchase, "ledger.coin_purchase"},
	}
	for _, tt := range tests {
		if got := feed.Subject(tt.kind); got != tt.want {
			t.Errorf("Subject(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
