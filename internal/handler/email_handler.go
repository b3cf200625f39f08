package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jobtracker/internal/model"
)

type EmailLister interface {
	ListByUser(ctx context.Context, userID, limit, offset int) ([]model.EmailRecord, error)
}

type EmailQueryHandler struct {
	emails EmailLister
}

func NewEmailQueryHandler(emails EmailLister) *EmailQueryHandler {
	return &EmailQueryHandler{emails: emails}
}

func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// GetEmails handles GET /emails
func (h *EmailQueryHandler) GetEmails(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", 50, 500)
	offset := queryInt(c, "offset", 0, 0)
	emails, err := h.emails.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch emails"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"emails": emails})
}
