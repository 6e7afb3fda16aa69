package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"

	"github.com/SlpAus/habit-tracker-backend/internal/auth"
	"github.com/SlpAus/habit-tracker-backend/internal/entry"
	"github.com/SlpAus/habit-tracker-backend/internal/habit"
	"github.com/SlpAus/habit-tracker-backend/internal/notification"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/config"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/logging"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/metrics"
	"github.com/SlpAus/habit-tracker-backend/internal/stats"
)

// Handlers 是各业务模块的HTTP处理器
type Handlers struct {
	Habits        *habit.Handler
	Entries       *entry.Handler
	Stats         *stats.Handler
	Notifications *notification.Handler
}

// Options 是构建路由所需的基础设施
type Options struct {
	Server      config.ServerConfig
	Log         logrus.FieldLogger
	Metrics     *metrics.Metrics
	Verifier    auth.Verifier
	RateLimiter *auth.RateLimiter
	Health      gin.HandlerFunc
}

// NewRouter 创建gin引擎并注册项目的所有路由
func NewRouter(opts Options, h Handlers) (*gin.Engine, error) {
	// 请求体中出现未声明的字段时拒绝请求
	binding.EnableDecoderDisallowUnknownFields = true
	if err := entry.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinLogger(opts.Log))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware())
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.Server.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 公开的运维接口
	if opts.Health != nil {
		r.GET("/health", opts.Health)
	}
	if opts.Metrics != nil {
		r.GET("/metrics", opts.Metrics.Handler())
	}

	// 需要登录的业务接口
	authed := r.Group("", auth.Middleware(opts.Verifier, opts.Log))
	if opts.RateLimiter != nil {
		authed.Use(opts.RateLimiter.Middleware())
	}
	{
		h.Habits.Register(authed)
		h.Entries.Register(authed)
		h.Stats.Register(authed)
		h.Notifications.Register(authed)
	}

	return r, nil
}
