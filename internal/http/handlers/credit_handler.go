// Credit HTTP handlers.
//
// This file exposes the credit ledger:
//   - GET  /credits          (caller's balance)
//   - POST /billing/credits  (billing webhook: grant credits)
//
// The webhook collaborator is the only writer that increases balances; the
// generation workflow is the only one that decreases them, one credit per
// successful generation.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-music-backend/internal/repo"
)

// CreditBalanceResponse reports a user's remaining generation credits.
type CreditBalanceResponse struct {
	UserID  string `json:"user_id"`
	Credits int64  `json:"credits"`
}

// GrantCreditsRequest is the billing webhook payload.
type GrantCreditsRequest struct {
	UserID       string `json:"user_id" binding:"required"`
	CreditsToAdd int64  `json:"credits_to_add" binding:"required,gt=0"`
}

// GetCredits returns the caller's balance. A user with no ledger row has
// zero credits, not an error.
func (h *Handlers) GetCredits(c *gin.Context) {
	uid := userID(c)
	credits, err := repo.GetCredits(c.Request.Context(), h.db, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, CreditBalanceResponse{UserID: uid, Credits: credits})
}

// GrantCredits applies a billing webhook delivery: an atomic upsert that
// increments the user's balance. Returns the new balance.
func (h *Handlers) GrantCredits(c *gin.Context) {
	var req GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	balance, err := repo.AddCredits(c.Request.Context(), h.db, req.UserID, req.CreditsToAdd)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, CreditBalanceResponse{UserID: req.UserID, Credits: balance})
}
