package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/auctionhub/coin-auction/internal/clock"
	"github.com/auctionhub/coin-auction/internal/store"
)

// TransactionRepo implements store.TransactionRepository with sqlx.
type TransactionRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewTransactionRepo returns a new TransactionRepo.
func NewTransactionRepo(db *sqlx.DB, clk clock.Clock) *TransactionRepo {
	return &TransactionRepo{db: db, clk: clk}
}

const transactionColumns = `id, kind, user_id, counterparty_id, auction_id, amount, price, description, created_at`

func (r *TransactionRepo) Append(ctx context.Context, t *store.Transaction) error {
	t.CreatedAt = r.clk.Now().UTC()
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO transactions (kind, user_id, counterparty_id, auction_id, amount, price, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		t.Kind, t.UserID, t.CounterpartyID, t.AuctionID, t.Amount, t.Price, t.Description, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("appending transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepo) ListByUser(ctx context.Context, userID string) ([]store.Transaction, error) {
	var txs []store.Transaction
	err := r.db.SelectContext(ctx, &txs,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = $1 ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for user: %w", err)
	}
	return txs, nil
}

func (r *TransactionRepo) ListRecent(ctx context.Context, limit int) ([]store.Transaction, error) {
	var txs []store.Transaction
	err := r.db.SelectContext(ctx, &txs,
		`SELECT `+transactionColumns+` FROM transactions
		 ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent transactions: %w", err)
	}
	return txs, nil
}
