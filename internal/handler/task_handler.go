package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jobtracker/internal/task"
)

type TaskRequester interface {
	RequestScan(ctx context.Context, userID int, startDate *time.Time) (*task.Task, error)
	RequestScrape(ctx context.Context, userID int, url string) (*task.Task, error)
	Get(ctx context.Context, id string, userID int, typ task.Type) (*task.Task, error)
}

type TaskHandler struct {
	tasks  TaskRequester
	logger *zap.Logger
}

func NewTaskHandler(tasks TaskRequester, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// parseStartDate accepts RFC 3339 or YYYY-MM-DD.
func parseStartDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateScan handles POST /scans
func (h *TaskHandler) CreateScan(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req struct {
		StartDate string `json:"start_date"`
	}
	// 空 body 表示全量扫描（包括 chunked 请求）
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	start, err := parseStartDate(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be YYYY-MM-DD or RFC 3339"})
		return
	}

	t, err := h.tasks.RequestScan(c.Request.Context(), userID, start)
	if err != nil {
		h.logger.Error("Failed to create scan task", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": t.ID, "status": t.Status})
}

// CreateScrape handles POST /tasks
func (h *TaskHandler) CreateScrape(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	_ = c.ShouldBindJSON(&req)
	if strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL is required"})
		return
	}
	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL must be an absolute http(s) url"})
		return
	}

	t, err := h.tasks.RequestScrape(c.Request.Context(), userID, req.URL)
	if err != nil {
		h.logger.Error("Failed to create scrape task", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": t.ID, "status": t.Status})
}

// GetScan handles GET /scans/:id
func (h *TaskHandler) GetScan(c *gin.Context) {
	h.get(c, task.TypeScan)
}

// GetScrape handles GET /tasks/:id
func (h *TaskHandler) GetScrape(c *gin.Context) {
	h.get(c, task.TypeScrape)
}

func (h *TaskHandler) get(c *gin.Context, typ task.Type) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	t, err := h.tasks.Get(c.Request.Context(), c.Param("id"), userID, typ)
	if errors.Is(err, task.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load task", zap.String("task_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load task"})
		return
	}
	c.JSON(http.StatusOK, t)
}
