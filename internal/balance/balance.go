// Package balance is the single authority for coin balance mutations.
// Every debit and credit in the system goes through an Authority so the
// conservation of coins can be reasoned about in one place.
package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/auctionhub/coin-auction/internal/store"
)

// ErrInvalidAmount is returned when a debit or credit amount is not positive.
var ErrInvalidAmount = errors.New("amount must be positive")

// Authority performs atomic coin balance mutations.
type Authority struct {
	users  store.UserRepository
	logger *slog.Logger
	tracer trace.Tracer
}

// NewAuthority returns a new balance Authority.
func NewAuthority(users store.UserRepository, logger *slog.Logger, tp trace.TracerProvider) *Authority {
	return &Authority{
		users:  users,
		logger: logger,
		tracer: tp.Tracer("github.com/auctionhub/coin-auction/internal/balance"),
	}
}

// Debit atomically removes amount coins from the user and returns the new
// balance. It fails with store.ErrInsufficientFunds when the balance would
// go negative, leaving the balance untouched.
func (a *Authority) Debit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	ctx, span := a.tracer.Start(ctx, "Authority.Debit",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := a.users.Debit(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("debiting %d coins from user %s: %w", amount, userID, err)
	}

	a.logger.InfoContext(ctx, "coins debited",
		slog.String("user_id", userID),
		slog.Int("amount", amount),
		slog.Int("balance", balance),
		slog.String("reason", reason),
	)
	return balance, nil
}

// Credit atomically adds amount coins to the user and returns the new balance.
func (a *Authority) Credit(ctx context.Context, userID string, amount int, reason string) (int, error) {
	ctx, span := a.tracer.Start(ctx, "Authority.Credit",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	balance, err := a.users.Credit(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("crediting %d coins to user %s: %w", amount, userID, err)
	}

	a.logger.InfoContext(ctx, "coins credited",
		slog.String("user_id", userID),
		slog.Int("amount", amount),
		slog.Int("balance", balance),
		slog.String("reason", reason),
	)
	return balance, nil
}
