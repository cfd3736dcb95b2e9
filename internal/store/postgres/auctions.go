package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/auctionhub/coin-auction/internal/clock"
	"github.com/auctionhub/coin-auction/internal/store"
)

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clk: clk}
}

const auctionColumns = `id, title, description, category, current_bid, number_of_bids,
	end_time, image_url, seller_id, seller_name, status,
	last_bidder_id, last_bidder_name, winner_id, winner_name, version, created_at`

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	query := `INSERT INTO auctions (title, description, category, current_bid, end_time,
	            image_url, seller_id, seller_name, status, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	           RETURNING id`
	a.Status = store.StatusActive
	a.Version = 0
	a.CreatedAt = r.clk.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		a.Title, a.Description, a.Category, a.CurrentBid, a.EndTime,
		a.ImageURL, a.SellerID, a.SellerName, a.Status, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("creating auction: %w", err)
	}
	return nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) List(ctx context.Context, f store.AuctionFilter) ([]store.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE 1=1`
	var args []interface{}
	if f.Category != "" && f.Category != "all" {
		args = append(args, f.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		query += fmt.Sprintf(` AND (title ILIKE $%d OR description ILIKE $%d)`, len(args), len(args))
	}
	query += ` ORDER BY created_at DESC`

	var auctions []store.Auction
	if err := r.db.SelectContext(ctx, &auctions, query, args...); err != nil {
		return nil, fmt.Errorf("listing auctions: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) ListBySeller(ctx context.Context, sellerID string) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT `+auctionColumns+` FROM auctions WHERE seller_id = $1 ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("listing auctions by seller: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) ListWonBy(ctx context.Context, userID string) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT `+auctionColumns+` FROM auctions WHERE winner_id = $1 ORDER BY end_time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing won auctions: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) ListExpired(ctx context.Context, now time.Time) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT `+auctionColumns+` FROM auctions
		 WHERE end_time < $1 AND status = $2
		 ORDER BY end_time ASC`, now.UTC(), store.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("listing expired auctions: %w", err)
	}
	return auctions, nil
}

// ApplyBid inserts the bid and advances the auction's bid state in one
// transaction, conditional on the expected version.
func (r *AuctionRepo) ApplyBid(ctx context.Context, auctionID string, expectedVersion int, bid *store.Bid) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE auctions
		 SET current_bid = $1, number_of_bids = number_of_bids + 1,
		     last_bidder_id = $2, last_bidder_name = $3, version = version + 1
		 WHERE id = $4 AND version = $5 AND status = $6`,
		bid.Amount, bid.BidderID, bid.BidderName, auctionID, expectedVersion, store.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("updating auction bid state: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrVersionConflict
	}

	bid.AuctionID = auctionID
	bid.CreatedAt = r.clk.Now().UTC()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO bids (auction_id, bidder_id, bidder_name, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		bid.AuctionID, bid.BidderID, bid.BidderName, bid.Amount, bid.CreatedAt,
	).Scan(&bid.ID)
	if err != nil {
		return fmt.Errorf("inserting bid: %w", err)
	}

	return tx.Commit()
}

// Finalize declares the winner exactly once. The predicate doubles as
// the idempotency gate for overlapping sweeps.
func (r *AuctionRepo) Finalize(ctx context.Context, id, winnerID, winnerName string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions
		 SET status = $1, winner_id = $2, winner_name = $3, version = version + 1
		 WHERE id = $4 AND status = $5 AND winner_id IS NULL`,
		store.StatusEnded, winnerID, winnerName, id, store.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("finalizing auction: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrAlreadyFinalized
	}
	return nil
}

func (r *AuctionRepo) End(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = $1, version = version + 1
		 WHERE id = $2 AND status = $3 AND number_of_bids = 0`,
		store.StatusEnded, id, store.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("ending auction: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrAlreadyFinalized
	}
	return nil
}

func (r *AuctionRepo) Cancel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET status = $1, version = version + 1
		 WHERE id = $2 AND status = $3 AND number_of_bids = 0`,
		store.StatusCancelled, id, store.StatusActive,
	)
	if err != nil {
		return fmt.Errorf("cancelling auction: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrCannotCancel
	}
	return nil
}

func (r *AuctionRepo) ListBids(ctx context.Context, auctionID string) ([]store.Bid, error) {
	var bids []store.Bid
	err := r.db.SelectContext(ctx, &bids,
		`SELECT id, auction_id, bidder_id, bidder_name, amount, created_at
		 FROM bids WHERE auction_id = $1 ORDER BY seq ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}
