package store

import (
	"context"
	"errors"
	"time"
)

// Errors shared by all store drivers. Callers match them with errors.Is.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned by a conditional write whose
	// expected version no longer matches the stored record.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInsufficientFunds is returned by Debit when the balance would
	// go negative.
	ErrInsufficientFunds = errors.New("insufficient coins")
	// ErrDuplicateEmail is returned when a user's email is taken.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrAlreadyFinalized is returned when finalizing an auction that is
	// no longer active or already has a winner.
	ErrAlreadyFinalized = errors.New("auction already finalized")
	// ErrCannotCancel is returned when cancelling an auction that is not
	// active or has accepted bids.
	ErrCannotCancel = errors.New("auction cannot be cancelled")
)

// Auction status values. Transitions are forward-only:
// active -> ended | cancelled.
const (
	StatusActive    = "active"
	StatusEnded     = "ended"
	StatusCancelled = "cancelled"
)

// Transaction kinds for the append-only audit ledger.
const (
	TxCoinPurchase = "coin_purchase"
	TxBidPlaced    = "bid_placed"
	TxAuctionWin   = "auction_win"
	TxRefund       = "refund"
)

// User represents a registered participant. Coins is the authoritative
// balance and is mutated only through Debit/Credit.
type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Coins     int       `db:"coins" json:"coins"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Auction represents an auction record. CurrentBid equals the amount of
// the most recent accepted bid, or the starting bid while NumberOfBids
// is zero. Version guards conditional writes.
type Auction struct {
	ID             string    `db:"id" json:"id"`
	Title          string    `db:"title" json:"title"`
	Description    string    `db:"description" json:"description"`
	Category       string    `db:"category" json:"category"`
	CurrentBid     int       `db:"current_bid" json:"current_bid"`
	NumberOfBids   int       `db:"number_of_bids" json:"number_of_bids"`
	EndTime        time.Time `db:"end_time" json:"end_time"`
	ImageURL       string    `db:"image_url" json:"image_url"`
	SellerID       string    `db:"seller_id" json:"seller_id"`
	SellerName     string    `db:"seller_name" json:"seller_name"`
	Status         string    `db:"status" json:"status"`
	LastBidderID   *string   `db:"last_bidder_id" json:"last_bidder_id,omitempty"`
	LastBidderName *string   `db:"last_bidder_name" json:"last_bidder_name,omitempty"`
	WinnerID       *string   `db:"winner_id" json:"winner_id,omitempty"`
	WinnerName     *string   `db:"winner_name" json:"winner_name,omitempty"`
	Version        int       `db:"version" json:"version"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Bid is an immutable entry in an auction's bid history.
type Bid struct {
	ID         string    `db:"id" json:"id"`
	AuctionID  string    `db:"auction_id" json:"auction_id"`
	BidderID   string    `db:"bidder_id" json:"bidder_id"`
	BidderName string    `db:"bidder_name" json:"bidder_name"`
	Amount     int       `db:"amount" json:"amount"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Transaction is an immutable audit entry for a coin movement. The
// ledger is advisory; it is never read to reconstruct live balances.
type Transaction struct {
	ID             string    `db:"id" json:"id"`
	Kind           string    `db:"kind" json:"kind"`
	UserID         string    `db:"user_id" json:"user_id"`
	CounterpartyID *string   `db:"counterparty_id" json:"counterparty_id,omitempty"`
	AuctionID      *string   `db:"auction_id" json:"auction_id,omitempty"`
	Amount         int       `db:"amount" json:"amount"`
	Price          *float64  `db:"price" json:"price,omitempty"`
	Description    string    `db:"description" json:"description"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// AuctionFilter narrows List queries.
type AuctionFilter struct {
	// Category filters by exact category; empty or "all" matches every
	// category.
	Category string
	// Search matches title or description, case-insensitively.
	Search string
}

// UserRepository defines user persistence operations. Debit and Credit
// are atomic per user with respect to each other.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	// Debit atomically decrements the balance and returns the new value.
	// Fails with ErrInsufficientFunds when the balance is too low.
	Debit(ctx context.Context, id string, amount int) (int, error)
	// Credit atomically increments the balance and returns the new value.
	Credit(ctx context.Context, id string, amount int) (int, error)
}

// AuctionRepository defines auction persistence operations.
type AuctionRepository interface {
	Create(ctx context.Context, a *Auction) error
	GetByID(ctx context.Context, id string) (*Auction, error)
	List(ctx context.Context, f AuctionFilter) ([]Auction, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Auction, error)
	ListWonBy(ctx context.Context, userID string) ([]Auction, error)
	// ListExpired returns active auctions whose end time has passed.
	ListExpired(ctx context.Context, now time.Time) ([]Auction, error)
	// ApplyBid appends the bid and advances the auction's bid state
	// (current bid, bid count, last bidder, version) as one atomic unit,
	// conditional on expectedVersion. Fails with ErrVersionConflict when
	// the stored version differs.
	ApplyBid(ctx context.Context, auctionID string, expectedVersion int, bid *Bid) error
	// Finalize declares the winner and ends the auction, conditional on
	// the auction being active with no winner set. Fails with
	// ErrAlreadyFinalized otherwise.
	Finalize(ctx context.Context, id, winnerID, winnerName string) error
	// End closes a zero-bid auction with no winner, conditional on the
	// auction being active with no accepted bids.
	End(ctx context.Context, id string) error
	// Cancel moves an active auction with no accepted bids to cancelled.
	Cancel(ctx context.Context, id string) error
	ListBids(ctx context.Context, auctionID string) ([]Bid, error)
}

// TransactionRepository defines operations on the append-only ledger.
type TransactionRepository interface {
	Append(ctx context.Context, t *Transaction) error
	ListByUser(ctx context.Context, userID string) ([]Transaction, error)
	ListRecent(ctx context.Context, limit int) ([]Transaction, error)
}
