package stats

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SlpAus/habit-tracker-backend/internal/auth"
)

// Handler 把统计服务暴露为HTTP接口
type Handler struct {
	svc         *Service
	defaultDays int
}

// NewHandler 创建统计的HTTP处理器，defaultDays 是未指定 days 时的窗口大小
func NewHandler(svc *Service, defaultDays int) *Handler {
	return &Handler{svc: svc, defaultDays: defaultDays}
}

// Register 在路由组上注册 /stats 相关路由
func (h *Handler) Register(rg *gin.RouterGroup) {
	stats := rg.Group("/stats")
	stats.GET("/heatmap", h.Heatmap)
	stats.GET("/streaks", h.Streaks)
}

// Heatmap 处理 GET /stats/heatmap?days=N
func (h *Handler) Heatmap(c *gin.Context) {
	days := h.defaultDays
	if raw, ok := c.GetQuery("days"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > MaxHeatmapDays {
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidDays.Error()})
			return
		}
		days = n
	}

	buckets, err := h.svc.Heatmap(c.Request.Context(), auth.UserID(c), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buckets)
}

// Streaks 处理 GET /stats/streaks
func (h *Handler) Streaks(c *gin.Context) {
	results, err := h.svc.Streaks(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, ErrInvalidDays) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
