package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/auctionhub/coin-auction/internal/account"
	"github.com/auctionhub/coin-auction/internal/auction"
	"github.com/auctionhub/coin-auction/internal/store"
)

// respond sends the success envelope.
func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// respondError sends the error envelope with the status mapped from the
// error taxonomy.
func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

// statusFor maps engine and store errors onto HTTP status codes.
// Validation rejections are client errors; contention is 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound),
		errors.Is(err, auction.ErrUserNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrBidTooLow),
		errors.Is(err, auction.ErrSelfBid),
		errors.Is(err, auction.ErrAuctionEnded),
		errors.Is(err, auction.ErrInsufficientFunds),
		errors.Is(err, auction.ErrInvalidListing),
		errors.Is(err, account.ErrInvalidAccount),
		errors.Is(err, store.ErrCannotCancel):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, auction.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
