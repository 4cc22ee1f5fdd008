package handlers

import (
	"errors"
	"net/http"

	"mining_webapp/internal/mining"
	"mining_webapp/internal/service"

	"github.com/gin-gonic/gin"
)

// GetMiningState returns the live session view: pending balance, tier,
// contract window and lifetime total.
func (h *Handler) GetMiningState(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	state, err := h.Mining.State(c.Request.Context(), userID)
	if err != nil {
		// a fabricated session would mask data loss; surface it and let the
		// client retry
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable, try again"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// GetTiers returns the plan table.
func (h *Handler) GetTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tiers":          mining.Tiers(),
		"contract_hours": mining.DefaultContractHours,
	})
}

// GetProjections returns flat monthly/annual projections per tier.
func (h *Handler) GetProjections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"projections": h.Mining.Projections()})
}

// ClaimMining moves the pending balance into the lifetime total.
func (h *Handler) ClaimMining(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	claimed, state, err := h.Mining.Claim(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "claim failed, try again"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"claimed": claimed,
		"state":   state,
	})
}

type PurchaseTierRequest struct {
	TierID int `json:"tier_id"`
}

// PurchaseTier buys (or renews) a tier and switches the session to it.
func (h *Handler) PurchaseTier(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req PurchaseTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tier_id is required"})
		return
	}

	state, err := h.Mining.PurchaseTier(c.Request.Context(), userID, req.TierID)
	switch {
	case errors.Is(err, mining.ErrInvalidTier):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tier"})
	case errors.Is(err, service.ErrInsufficientFunds):
		c.JSON(http.StatusBadRequest, gin.H{"error": "insufficient coins"})
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "purchase failed, try again"})
	default:
		c.JSON(http.StatusOK, gin.H{"state": state})
	}
}

// GetTransactions returns the user's recent coins ledger entries.
func (h *Handler) GetTransactions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	txs, err := h.TransactionRepo.GetByUserID(c.Request.Context(), userID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
