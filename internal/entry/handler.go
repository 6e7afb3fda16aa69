package entry

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SlpAus/habit-tracker-backend/internal/auth"
	"github.com/SlpAus/habit-tracker-backend/internal/habit"
)

// EntryRequest 是打卡和取消打卡共用的请求体
type EntryRequest struct {
	HabitID string `json:"habitId" binding:"required"`
	Date    string `json:"date" binding:"required,calendardate"`
}

// Handler 把打卡服务暴露为HTTP接口
type Handler struct {
	svc *Service
}

// NewHandler 创建打卡的HTTP处理器
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register 在路由组上注册 /entries 相关路由
func (h *Handler) Register(rg *gin.RouterGroup) {
	entries := rg.Group("/entries")
	entries.POST("", h.Create)
	entries.DELETE("", h.Delete)
	entries.GET("/today", h.Today)
}

// Create 处理 POST /entries
func (h *Handler) Create(c *gin.Context) {
	var body EntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.svc.Create(c.Request.Context(), auth.UserID(c), body.HabitID, body.Date)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Delete 处理 DELETE /entries，参数在请求体中
func (h *Handler) Delete(c *gin.Context) {
	var body EntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Delete(c.Request.Context(), auth.UserID(c), body.HabitID, body.Date); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Entry deleted successfully"})
}

// Today 处理 GET /entries/today，返回今天已完成的习惯ID
func (h *Handler) Today(c *gin.Context) {
	ids, err := h.svc.TodayHabitIDs(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ids)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, habit.ErrInvalidID), errors.Is(err, ErrInvalidDate), errors.Is(err, ErrAlreadyExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, habit.ErrNotFound), errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
