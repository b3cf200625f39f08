package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"jobtracker/internal/handler"
	"jobtracker/pkg/rbac"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Auth   *handler.AuthHandler
	Tasks  *handler.TaskHandler
	Emails *handler.EmailQueryHandler
	// Webhook is optional; nil leaves /webhook/email unregistered.
	Webhook *handler.WebhookHandler
}

func NewRouter(h Handlers, jwtSecret string, db Pinger, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), RequestLogger(logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	r.POST("/register", h.Auth.Register)
	r.POST("/login", h.Auth.Login)
	if h.Webhook != nil {
		r.POST("/webhook/email", h.Webhook.ReceiveEmail)
	}

	// Protected
	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.POST("/scans", RequirePermission(rbac.PermissionCreateScan), h.Tasks.CreateScan)
		auth.GET("/scans/:id", RequirePermission(rbac.PermissionReadTask), h.Tasks.GetScan)
		auth.POST("/tasks", RequirePermission(rbac.PermissionCreateScrape), h.Tasks.CreateScrape)
		auth.GET("/tasks/:id", RequirePermission(rbac.PermissionReadTask), h.Tasks.GetScrape)
		auth.GET("/emails", RequirePermission(rbac.PermissionReadEmail), h.Emails.GetEmails)
	}

	return r
}
