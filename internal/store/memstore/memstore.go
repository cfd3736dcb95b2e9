// Package memstore provides an in-memory store.Driver used by engine
// tests and for local development without Postgres. Conditional writes
// match the semantics of the postgres driver: versioned bid application
// and predicate-guarded finalization.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auctionhub/coin-auction/internal/clock"
	"github.com/auctionhub/coin-auction/internal/config"
	"github.com/auctionhub/coin-auction/internal/store"
)

// closerFunc adapts a func() error into an io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func init() {
	store.Register("memory", openMemory)
}

// openMemory is the store.Driver for the "memory" backend.
func openMemory(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return New(clk), nil
}

// New returns in-memory Repositories. Exported directly so tests can
// build a store without going through the driver registry.
func New(clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Users:        &UserRepo{clk: clk, users: make(map[string]*store.User)},
		Auctions:     &AuctionRepo{clk: clk, auctions: make(map[string]*store.Auction), bids: make(map[string][]store.Bid)},
		Transactions: &TransactionRepo{clk: clk},
		Closer:       closerFunc(func() error { return nil }),
		Ping:         func(context.Context) error { return nil },
	}
}

// UserRepo implements store.UserRepository in memory.
type UserRepo struct {
	mu    sync.Mutex
	clk   clock.Clock
	users map[string]*store.User
}

func (r *UserRepo) Create(_ context.Context, u *store.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.users {
		if strings.EqualFold(other.Email, u.Email) {
			return store.ErrDuplicateEmail
		}
	}
	now := r.clk.Now().UTC()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (*store.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*store.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *UserRepo) List(_ context.Context) ([]store.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coins > out[j].Coins })
	return out, nil
}

func (r *UserRepo) Debit(_ context.Context, id string, amount int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if u.Coins < amount {
		return 0, store.ErrInsufficientFunds
	}
	u.Coins -= amount
	u.UpdatedAt = r.clk.Now().UTC()
	return u.Coins, nil
}

func (r *UserRepo) Credit(_ context.Context, id string, amount int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	u.Coins += amount
	u.UpdatedAt = r.clk.Now().UTC()
	return u.Coins, nil
}

// AuctionRepo implements store.AuctionRepository in memory.
type AuctionRepo struct {
	mu       sync.Mutex
	clk      clock.Clock
	auctions map[string]*store.Auction
	bids     map[string][]store.Bid
}

func (r *AuctionRepo) Create(_ context.Context, a *store.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = uuid.NewString()
	a.Status = store.StatusActive
	a.Version = 0
	a.CreatedAt = r.clk.Now().UTC()
	cp := *a
	r.auctions[a.ID] = &cp
	return nil
}

func (r *AuctionRepo) GetByID(_ context.Context, id string) (*store.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AuctionRepo) List(_ context.Context, f store.AuctionFilter) ([]store.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Auction
	for _, a := range r.auctions {
		if f.Category != "" && f.Category != "all" && a.Category != f.Category {
			continue
		}
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(a.Title), needle) &&
				!strings.Contains(strings.ToLower(a.Description), needle) {
				continue
			}
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *AuctionRepo) ListBySeller(_ context.Context, sellerID string) ([]store.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Auction
	for _, a := range r.auctions {
		if a.SellerID == sellerID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *AuctionRepo) ListWonBy(_ context.Context, userID string) ([]store.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Auction
	for _, a := range r.auctions {
		if a.WinnerID != nil && *a.WinnerID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.After(out[j].EndTime) })
	return out, nil
}

func (r *AuctionRepo) ListExpired(_ context.Context, now time.Time) ([]store.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Auction
	for _, a := range r.auctions {
		if a.Status == store.StatusActive && a.EndTime.Before(now) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	return out, nil
}

func (r *AuctionRepo) ApplyBid(_ context.Context, auctionID string, expectedVersion int, bid *store.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[auctionID]
	if !ok {
		return store.ErrNotFound
	}
	if a.Status != store.StatusActive || a.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	bid.ID = uuid.NewString()
	bid.AuctionID = auctionID
	bid.CreatedAt = r.clk.Now().UTC()
	r.bids[auctionID] = append(r.bids[auctionID], *bid)

	bidderID, bidderName := bid.BidderID, bid.BidderName
	a.CurrentBid = bid.Amount
	a.NumberOfBids = len(r.bids[auctionID])
	a.LastBidderID = &bidderID
	a.LastBidderName = &bidderName
	a.Version++
	return nil
}

func (r *AuctionRepo) Finalize(_ context.Context, id, winnerID, winnerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return store.ErrNotFound
	}
	if a.Status != store.StatusActive || a.WinnerID != nil {
		return store.ErrAlreadyFinalized
	}
	a.Status = store.StatusEnded
	a.WinnerID = &winnerID
	a.WinnerName = &winnerName
	a.Version++
	return nil
}

func (r *AuctionRepo) End(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return store.ErrNotFound
	}
	if a.Status != store.StatusActive || a.NumberOfBids != 0 {
		return store.ErrAlreadyFinalized
	}
	a.Status = store.StatusEnded
	a.Version++
	return nil
}

func (r *AuctionRepo) Cancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return store.ErrNotFound
	}
	if a.Status != store.StatusActive || a.NumberOfBids != 0 {
		return store.ErrCannotCancel
	}
	a.Status = store.StatusCancelled
	a.Version++
	return nil
}

func (r *AuctionRepo) ListBids(_ context.Context, auctionID string) ([]store.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.auctions[auctionID]; !ok {
		return nil, store.ErrNotFound
	}
	out := make([]store.Bid, len(r.bids[auctionID]))
	copy(out, r.bids[auctionID])
	return out, nil
}

// TransactionRepo implements store.TransactionRepository in memory.
type TransactionRepo struct {
	mu  sync.Mutex
	clk clock.Clock
	log []store.Transaction
}

func (r *TransactionRepo) Append(_ context.Context, t *store.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = uuid.NewString()
	t.CreatedAt = r.clk.Now().UTC()
	r.log = append(r.log, *t)
	return nil
}

func (r *TransactionRepo) ListByUser(_ context.Context, userID string) ([]store.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Transaction
	for i := len(r.log) - 1; i >= 0; i-- {
		if r.log[i].UserID == userID {
			out = append(out, r.log[i])
		}
	}
	return out, nil
}

func (r *TransactionRepo) ListRecent(_ context.Context, limit int) ([]store.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.Transaction
	for i := len(r.log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.log[i])
	}
	return out, nil
}
