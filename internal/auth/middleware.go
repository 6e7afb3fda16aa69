package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UserIDKey 是gin上下文中保存已认证用户ID的键
const UserIDKey = "userID"

// Middleware 要求请求携带有效的 Bearer 令牌，并把身份写入gin上下文。
func Middleware(v Verifier, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header found"})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
			return
		}

		identity, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			log.WithError(err).WithField("ip", c.ClientIP()).Warn("令牌校验失败")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Next()
	}
}

// UserID 返回中间件写入的用户ID，未认证时为空字符串
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
