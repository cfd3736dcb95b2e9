// Package account manages participant records and coin purchases. It
// stores no credentials and performs no authentication; identity is
// handled upstream.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/auctionhub/coin-auction/internal/balance"
	"github.com/auctionhub/coin-auction/internal/ledger"
	"github.com/auctionhub/coin-auction/internal/store"
)

// ErrInvalidAccount is returned when registration input is rejected.
var ErrInvalidAccount = errors.New("invalid account")

// Manager handles account operations.
type Manager struct {
	users        store.UserRepository
	balance      *balance.Authority
	ledger       *ledger.Writer
	welcomeBonus int
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewManager returns an account Manager. welcomeBonus coins are granted
// to every new registration.
func NewManager(users store.UserRepository, auth *balance.Authority, lw *ledger.Writer, welcomeBonus int, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		users:        users,
		balance:      auth,
		ledger:       lw,
		welcomeBonus: welcomeBonus,
		logger:       logger,
		tracer:       tp.Tracer("github.com/auctionhub/coin-auction/internal/account"),
	}
}

// Register creates a participant and credits the welcome bonus. The
// bonus goes through the balance Authority so the user record is never
// written with coins the Authority didn't grant.
func (m *Manager) Register(ctx context.Context, name, email string) (*store.User, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Register",
		trace.WithAttributes(attribute.String("email", email)),
	)
	defer span.End()

	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidAccount)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidAccount)
	}

	u := &store.User{Name: name, Email: email, Coins: 0}
	if err := m.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if m.welcomeBonus > 0 {
		coins, err := m.balance.Credit(ctx, u.ID, m.welcomeBonus, "welcome bonus")
		if err != nil {
			return nil, fmt.Errorf("granting welcome bonus: %w", err)
		}
		u.Coins = coins
		m.ledger.CoinPurchase(ctx, u.ID, m.welcomeBonus, nil, "Welcome bonus")
	}

	m.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", u.ID),
		slog.String("name", name),
		slog.Int("welcome_bonus", m.welcomeBonus),
	)
	return u, nil
}

// PurchaseCoins credits purchased coins and records the USD price paid.
func (m *Manager) PurchaseCoins(ctx context.Context, userID string, amount int, price float64) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PurchaseCoins",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	coins, err := m.balance.Credit(ctx, userID, amount, "coin purchase")
	if err != nil {
		return 0, fmt.Errorf("crediting purchase: %w", err)
	}
	m.ledger.CoinPurchase(ctx, userID, amount, &price, fmt.Sprintf("Purchased %d coins", amount))

	m.logger.InfoContext(ctx, "coins purchased",
		slog.String("user_id", userID),
		slog.Int("amount", amount),
		slog.Float64("price", price),
	)
	return coins, nil
}

// GetUser returns one user.
func (m *Manager) GetUser(ctx context.Context, id string) (*store.User, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.GetUser")
	defer span.End()

	return m.users.GetByID(ctx, id)
}

// ListUsers returns all users ordered by balance.
func (m *Manager) ListUsers(ctx context.Context) ([]store.User, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListUsers")
	defer span.End()

	return m.users.List(ctx)
}
