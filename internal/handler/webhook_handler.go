package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jobtracker/internal/service/ingest"
)

// SNS 单条消息上限 256KB，留出余量
const maxWebhookBody = 1 << 20

type MailIngester interface {
	Handle(ctx context.Context, body []byte) (ingest.Outcome, error)
}

// WebhookHandler receives SES mail delivered through an SNS HTTPS subscription.
// The subscription URL carries a shared token as ?token=.
type WebhookHandler struct {
	ingester MailIngester
	token    string
	logger   *zap.Logger
}

func NewWebhookHandler(ingester MailIngester, token string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{ingester: ingester, token: token, logger: logger}
}

// ReceiveEmail handles POST /webhook/email
func (h *WebhookHandler) ReceiveEmail(c *gin.Context) {
	got := c.Query("token")
	if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if len(body) > maxWebhookBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}

	outcome, err := h.ingester.Handle(c.Request.Context(), body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": outcome})
	case errors.Is(err, ingest.ErrMalformed),
		errors.Is(err, ingest.ErrUnsupportedType),
		errors.Is(err, ingest.ErrInvalidSubscribeURL):
		h.logger.Warn("Rejected webhook delivery", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		// 5xx 让 SNS 重投
		h.logger.Error("Webhook delivery failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process email"})
	}
}
