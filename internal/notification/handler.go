package notification

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SlpAus/habit-tracker-backend/internal/auth"
)

// TokenRequest 是登记和注销推送令牌的请求体
type TokenRequest struct {
	FCMToken string `json:"fcmToken" binding:"required,max=512"`
}

// Handler 把推送相关的操作暴露为HTTP接口
type Handler struct {
	svc      *Service
	reminder *Reminder
}

// NewHandler 创建推送的HTTP处理器
func NewHandler(svc *Service, reminder *Reminder) *Handler {
	return &Handler{svc: svc, reminder: reminder}
}

// Register 在路由组上注册 /notifications 相关路由
func (h *Handler) Register(rg *gin.RouterGroup) {
	n := rg.Group("/notifications")
	n.POST("/register-token", h.RegisterToken)
	n.POST("/unregister-token", h.UnregisterToken)
	n.POST("/test-notification", h.TestNotification)
}

// RegisterToken 处理 POST /notifications/register-token
func (h *Handler) RegisterToken(c *gin.Context) {
	var body TokenRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Register(c.Request.Context(), auth.UserID(c), body.FCMToken); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "FCM token registered successfully"})
}

// UnregisterToken 处理 POST /notifications/unregister-token
func (h *Handler) UnregisterToken(c *gin.Context) {
	var body TokenRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.Unregister(c.Request.Context(), auth.UserID(c), body.FCMToken); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "FCM token unregistered successfully"})
}

// TestNotification 处理 POST /notifications/test-notification，立即为调用者运行一次提醒检查
func (h *Handler) TestNotification(c *gin.Context) {
	notified, err := h.reminder.RunForUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification check triggered", "notified": notified})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
