package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/auctionhub/coin-auction/internal/clock"
	"github.com/auctionhub/coin-auction/internal/store"
)

// pgUniqueViolation is the Postgres error code for unique_violation.
const pgUniqueViolation = "23505"

// UserRepo implements store.UserRepository with sqlx.
type UserRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewUserRepo returns a new UserRepo.
func NewUserRepo(db *sqlx.DB, clk clock.Clock) *UserRepo {
	return &UserRepo{db: db, clk: clk}
}

func (r *UserRepo) Create(ctx context.Context, u *store.User) error {
	query := `INSERT INTO users (name, email, coins, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5)
	           RETURNING id`
	now := r.clk.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	err := r.db.QueryRowContext(ctx, query, u.Name, u.Email, u.Coins, u.CreatedAt, u.UpdatedAt).Scan(&u.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return store.ErrDuplicateEmail
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*store.User, error) {
	var u store.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	var u store.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE lower(email) = lower($1)`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return &u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]store.User, error) {
	var users []store.User
	err := r.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY coins DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Debit decrements a balance in a single conditional statement so that
// concurrent debits and credits of the same user never lose updates.
func (r *UserRepo) Debit(ctx context.Context, id string, amount int) (int, error) {
	var balance int
	err := r.db.QueryRowContext(ctx,
		`UPDATE users SET coins = coins - $1, updated_at = $2
		 WHERE id = $3 AND coins >= $1
		 RETURNING coins`,
		amount, r.clk.Now().UTC(), id,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		// Disambiguate: user missing vs balance too low.
		var exists bool
		if checkErr := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id); checkErr != nil {
			return 0, fmt.Errorf("debiting user: %w", checkErr)
		}
		if !exists {
			return 0, store.ErrNotFound
		}
		return 0, store.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("debiting user: %w", err)
	}
	return balance, nil
}

func (r *UserRepo) Credit(ctx context.Context, id string, amount int) (int, error) {
	var balance int
	err := r.db.QueryRowContext(ctx,
		`UPDATE users SET coins = coins + $1, updated_at = $2
		 WHERE id = $3
		 RETURNING coins`,
		amount, r.clk.Now().UTC(), id,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("crediting user: %w", err)
	}
	return balance, nil
}
