package habit

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SlpAus/habit-tracker-backend/internal/auth"
)

// CreateHabitRequest 是创建习惯的请求体
type CreateHabitRequest struct {
	Name  string `json:"name" binding:"required,max=100"`
	Emoji string `json:"emoji" binding:"omitempty,max=16"`
}

// Handler 把习惯服务暴露为HTTP接口
type Handler struct {
	svc *Service
}

// NewHandler 创建习惯的HTTP处理器
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register 在路由组上注册 /habits 相关路由
func (h *Handler) Register(rg *gin.RouterGroup) {
	habits := rg.Group("/habits")
	habits.POST("", h.Create)
	habits.GET("", h.List)
	habits.DELETE("/:id", h.Delete)
}

// Create 处理 POST /habits
func (h *Handler) Create(c *gin.Context) {
	var body CreateHabitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.svc.Create(c.Request.Context(), auth.UserID(c), body.Name, body.Emoji)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// List 处理 GET /habits
func (h *Handler) List(c *gin.Context) {
	habits, err := h.svc.List(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, habits)
}

// Delete 处理 DELETE /habits/:id
func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Habit deleted successfully"})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidID), errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidEmoji), errors.Is(err, ErrLimitReached):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
