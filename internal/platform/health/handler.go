package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/SlpAus/habit-tracker-backend/internal/platform/metadata"
)

// Handler 返回 GET /health 的处理函数
func Handler(c *Checker, db *gorm.DB) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		report := c.Report()
		body := gin.H{
			"status":    "ok",
			"database":  report.Database,
			"redis":     report.Redis,
			"checkedAt": report.CheckedAt,
		}
		if last, err := metadata.GetLastReminderDate(ctx.Request.Context(), db); err == nil && !last.IsZero() {
			body["lastReminderDate"] = last
		}
		if !report.Healthy() {
			body["status"] = "degraded"
			ctx.JSON(http.StatusServiceUnavailable, body)
			return
		}
		ctx.JSON(http.StatusOK, body)
	}
}
