// Package api exposes the engine over HTTP. Handlers are thin glue:
// all auction and coin semantics live in the engine packages.
package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/auctionhub/coin-auction/internal/account"
	"github.com/auctionhub/coin-auction/internal/auction"
	"github.com/auctionhub/coin-auction/internal/bidcache"
	"github.com/auctionhub/coin-auction/internal/health"
	"github.com/auctionhub/coin-auction/internal/ledger"
	"github.com/auctionhub/coin-auction/internal/store"
)

// Server holds the handler dependencies.
type Server struct {
	engine   *auction.Engine
	sweeper  *auction.Sweeper
	accounts *account.Manager
	ledger   *ledger.Writer
	cache    *bidcache.Cache // nil when the cache is disabled
	health   *health.Handler
	logger   *slog.Logger
}

// NewServer returns an API Server. cache may be nil.
func NewServer(
	engine *auction.Engine,
	sweeper *auction.Sweeper,
	accounts *account.Manager,
	lw *ledger.Writer,
	cache *bidcache.Cache,
	hh *health.Handler,
	logger *slog.Logger,
) *Server {
	return &Server{
		engine:   engine,
		sweeper:  sweeper,
		accounts: accounts,
		ledger:   lw,
		cache:    cache,
		health:   hh,
		logger:   logger,
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))

	r.GET("/healthz", gin.WrapF(s.health.LivenessHandler()))
	r.GET("/readyz", gin.WrapF(s.health.ReadinessHandler()))

	api := r.Group("/api")
	{
		auctions := api.Group("/auctions")
		{
			auctions.POST("", s.createAuction)
			auctions.GET("", s.listAuctions)
			auctions.GET("/:id", s.getAuction)
			auctions.GET("/:id/bids", s.listBids)
			auctions.POST("/:id/bid", s.placeBid)
			auctions.POST("/:id/cancel", s.cancelAuction)
		}

		users := api.Group("/users")
		{
			users.POST("", s.register)
			users.GET("", s.listUsers)
			users.GET("/:id", s.getUser)
			users.GET("/:id/winnings", s.winnings)
			users.GET("/:id/listings", s.listings)
			users.GET("/:id/transactions", s.userTransactions)
			users.GET("/:id/reconciliation", s.reconciliation)
		}

		api.POST("/coins/purchase", s.purchaseCoins)
		api.GET("/transactions", s.recentTransactions)
		api.POST("/sweep", s.runSweep)
	}

	return r
}

type placeBidRequest struct {
	BidderID string `json:"bidder_id" binding:"required"`
	Amount   int    `json:"amount" binding:"required"`
}

func (s *Server) placeBid(c *gin.Context) {
	auctionID := c.Param("id")

	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	// Fast reject on the cached current bid, but only after verifying
	// against the store: the cache is advisory and may be stale.
	if s.cache != nil {
		if cached, err := s.cache.CurrentBid(c.Request.Context(), auctionID); err == nil && req.Amount < cached+1 {
			if a, err := s.engine.GetAuction(c.Request.Context(), auctionID); err == nil && req.Amount < a.CurrentBid+1 {
				respondError(c, auction.ErrBidTooLow)
				return
			}
		}
	}

	placement, err := s.engine.PlaceBid(c.Request.Context(), auctionID, req.BidderID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	if s.cache != nil {
		if err := s.cache.SetCurrentBid(c.Request.Context(), auctionID, placement.NewCurrentBid); err != nil {
			s.logger.WarnContext(c.Request.Context(), "failed to update bid cache",
				slog.String("auction_id", auctionID),
				slog.Any("error", err),
			)
		}
	}

	respond(c, http.StatusOK, "bid accepted", placement)
}

type createAuctionRequest struct {
	SellerID      string `json:"seller_id" binding:"required"`
	Title         string `json:"title" binding:"required"`
	Description   string `json:"description"`
	Category      string `json:"category" binding:"required"`
	StartingBid   int    `json:"starting_bid" binding:"required"`
	DurationHours int    `json:"duration_hours" binding:"required"`
	ImageURL      string `json:"image_url"`
}

func (s *Server) createAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	a, err := s.engine.CreateAuction(c.Request.Context(),
		req.SellerID, req.Title, req.Description, req.Category,
		req.StartingBid, req.DurationHours, req.ImageURL)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "auction created", a)
}

func (s *Server) listAuctions(c *gin.Context) {
	ctx := c.Request.Context()

	// Settle anything past its deadline first so listings never show a
	// stale active auction.
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.ErrorContext(ctx, "on-demand sweep failed", slog.Any("error", err))
	}

	auctions, err := s.engine.ListAuctions(ctx, store.AuctionFilter{
		Category: c.Query("category"),
		Search:   c.Query("search"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "auctions listed", auctions)
}

func (s *Server) getAuction(c *gin.Context) {
	a, err := s.engine.GetAuction(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "auction found", a)
}

func (s *Server) listBids(c *gin.Context) {
	bids, err := s.engine.BidHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "bids listed", bids)
}

type cancelAuctionRequest struct {
	SellerID string `json:"seller_id" binding:"required"`
}

func (s *Server) cancelAuction(c *gin.Context) {
	var req cancelAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if err := s.engine.CancelAuction(c.Request.Context(), c.Param("id"), req.SellerID); err != nil {
		respondError(c, err)
		return
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(c.Request.Context(), c.Param("id")); err != nil {
			s.logger.WarnContext(c.Request.Context(), "failed to invalidate bid cache",
				slog.String("auction_id", c.Param("id")),
				slog.Any("error", err),
			)
		}
	}
	respond(c, http.StatusOK, "auction cancelled", nil)
}

type registerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	u, err := s.accounts.Register(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "user registered", u)
}

func (s *Server) getUser(c *gin.Context) {
	u, err := s.accounts.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "user found", u)
}

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.accounts.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "users listed", users)
}

func (s *Server) winnings(c *gin.Context) {
	auctions, err := s.engine.Winnings(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "winnings listed", auctions)
}

func (s *Server) listings(c *gin.Context) {
	auctions, err := s.engine.Listings(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "listings listed", auctions)
}

func (s *Server) userTransactions(c *gin.Context) {
	txs, err := s.ledger.ForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "transactions listed", txs)
}

// reconciliation compares the authoritative balance with the balance the
// ledger implies. Drift flags a user for manual investigation; the
// ledger is never used to correct the balance.
func (s *Server) reconciliation(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("id")

	u, err := s.accounts.GetUser(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	replayed, err := s.ledger.ReplayBalance(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, "reconciliation computed", gin.H{
		"account_balance": u.Coins,
		"ledger_balance":  replayed,
		"drift":           u.Coins - replayed,
	})
}

type purchaseCoinsRequest struct {
	UserID string  `json:"user_id" binding:"required"`
	Amount int     `json:"amount" binding:"required"`
	Price  float64 `json:"price"`
}

func (s *Server) purchaseCoins(c *gin.Context) {
	var req purchaseCoinsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	coins, err := s.accounts.PurchaseCoins(c.Request.Context(), req.UserID, req.Amount, req.Price)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "coins purchased", gin.H{"balance": coins})
}

func (s *Server) recentTransactions(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	txs, err := s.ledger.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "transactions listed", txs)
}

func (s *Server) runSweep(c *gin.Context) {
	n, err := s.sweeper.Sweep(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "sweep complete", gin.H{"finalized_count": n})
}
