package handlers

import (
	"fmt"
	"net/http"

	"mining_webapp/internal/repository"

	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	repo        *repository.ReferralRepository
	botUsername string
}

func NewReferralHandler(repo *repository.ReferralRepository, botUsername string) *ReferralHandler {
	return &ReferralHandler{repo: repo, botUsername: botUsername}
}

// GetReferralCode returns (creating if needed) the user's referral code.
func (h *ReferralHandler) GetReferralCode(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	code, err := h.repo.GetOrCreateReferralCode(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get referral code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": code})
}

// GetReferralLink returns a deep link into the bot with the user's code.
func (h *ReferralHandler) GetReferralLink(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	code, err := h.repo.GetOrCreateReferralCode(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get referral code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"link": fmt.Sprintf("https://t.me/%s?start=ref_%s", h.botUsername, code),
		"code": code,
	})
}

// GetReferralStats returns counts and total coins earned from referrals.
func (h *ReferralHandler) GetReferralStats(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	stats, err := h.repo.GetReferralStats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}

	referrals, err := h.repo.GetReferralsByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get referrals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":     stats,
		"referrals": referrals,
	})
}

type ApplyReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

// ApplyReferralCode links the current user to the code's owner. Each user
// can be referred at most once and never by themselves.
func (h *ReferralHandler) ApplyReferralCode(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req ApplyReferralRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	ctx := c.Request.Context()

	referrerID, err := h.repo.GetUserByReferralCode(ctx, req.Code)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "referral code not found"})
		return
	}

	if referrerID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot refer yourself"})
		return
	}

	referred, err := h.repo.IsReferred(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check referral"})
		return
	}
	if referred {
		c.JSON(http.StatusConflict, gin.H{"error": "already referred"})
		return
	}

	if err := h.repo.CreateReferral(ctx, referrerID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply referral"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

type ClaimReferralRequest struct {
	ReferralID int64 `json:"referral_id" binding:"required"`
}

// ClaimReferralBonus credits the flat bonus for one referral. Claiming an
// already claimed referral is a no-op.
func (h *ReferralHandler) ClaimReferralBonus(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req ClaimReferralRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "referral_id is required"})
		return
	}

	if err := h.repo.ClaimReferralBonus(c.Request.Context(), req.ReferralID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to claim bonus"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "claimed", "bonus": repository.ReferralBonus})
}
