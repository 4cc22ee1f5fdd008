package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Me returns the authorized user's profile together with the live session
// state so the webapp can render the dashboard from a single request.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx := c.Request.Context()

	user, err := h.UserRepo.GetByID(ctx, userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	resp := gin.H{
		"id":         user.ID,
		"tg_id":      user.TgID,
		"username":   user.Username,
		"first_name": user.FirstName,
		"coins":      user.Coins,
		"created_at": user.CreatedAt,
	}

	// session state is best-effort here, the dedicated endpoint reports errors
	if state, err := h.Mining.State(ctx, userID); err == nil {
		resp["session"] = state
	}

	c.JSON(http.StatusOK, resp)
}
