package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/SlpAus/habit-tracker-backend/api"
	"github.com/SlpAus/habit-tracker-backend/internal/auth"
	"github.com/SlpAus/habit-tracker-backend/internal/entry"
	"github.com/SlpAus/habit-tracker-backend/internal/habit"
	"github.com/SlpAus/habit-tracker-backend/internal/notification"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/config"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/database"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/health"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/logging"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/metrics"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/shutdown"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/startup"
	"github.com/SlpAus/habit-tracker-backend/internal/stats"
	"github.com/SlpAus/habit-tracker-backend/pkg/lifecycle"
)

const (
	rateLimiterCleanupInterval = time.Minute
	rateLimiterIdleTimeout     = 10 * time.Minute
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log)
	gin.SetMode(cfg.Server.Mode)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("服务启动失败")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx := context.Background()

	statsLoc, err := time.LoadLocation(cfg.Stats.Timezone)
	if err != nil {
		return err
	}
	reminderLoc, err := time.LoadLocation(cfg.Notifications.Timezone)
	if err != nil {
		return err
	}

	// 1. 基础设施
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	rdb, err := database.OpenRedis(ctx, cfg.Database.Redis, log)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		return err
	}
	m := metrics.New()
	status := database.NewStatus(log)

	// 2. 仓库和服务，按依赖顺序显式构造
	habitRepo := habit.NewRepository(db)
	entryRepo := entry.NewRepository(db)
	tokenRepo := notification.NewRepository(db)

	if err := startup.InitializeApplication(ctx, db, log, habitRepo, entryRepo, tokenRepo); err != nil {
		return fmt.Errorf("应用初始化失败: %w", err)
	}

	cache := stats.NewCache(rdb, status, cfg.Stats.CacheTTL, m, log)
	habits := habit.NewService(habitRepo, entryRepo, cache, log)
	entries := entry.NewService(entryRepo, cache, statsLoc, log)
	statsSvc := stats.NewService(habits, entryRepo, cache, m, statsLoc, log)
	tokens := notification.NewService(tokenRepo, log)
	reminder := notification.NewReminder(tokenRepo, habits, entryRepo, notification.NewLogSender(log), m, reminderLoc, log)
	limiter := auth.NewRateLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)

	// 3. 健康检查
	checker := health.NewChecker(sqlDB, rdb, status, func(ctx context.Context) {
		startup.HandleRedisRecovery(ctx, cache, log)
	}, log)
	if err := checker.InitializeRunID(ctx); err != nil {
		return err
	}
	log.Info("正在执行启动后健康检查...")
	checker.PerformCheck(ctx)

	// 4. 后台服务
	graceful := lifecycle.NewManager("graceful", log)
	forceful := lifecycle.NewManager("forceful", log)

	if err := graceful.Go("health-checker", checker.Run); err != nil {
		return err
	}
	if err := graceful.Go("rate-limit-cleanup", func(h *lifecycle.Handle) {
		for h.Sleep(rateLimiterCleanupInterval) == nil {
			limiter.Cleanup(rateLimiterIdleTimeout)
		}
	}); err != nil {
		return err
	}
	if cfg.Notifications.Enabled {
		scheduler, err := notification.NewScheduler(cfg.Notifications.Schedule, reminderLoc, reminder, log)
		if err != nil {
			return err
		}
		// 正在运行的提醒检查在第一阶段停机时继续执行，收到强制信号才中止
		jobs, err := forceful.NewServiceHandle("reminder-jobs")
		if err != nil {
			return err
		}
		scheduler.SetJobContext(jobs.Ctx())
		if err := graceful.Go("reminder-scheduler", func(h *lifecycle.Handle) {
			defer jobs.Close()
			scheduler.Run(h)
		}); err != nil {
			return err
		}
	}

	// 5. HTTP
	router, err := api.NewRouter(api.Options{
		Server:      cfg.Server,
		Log:         log,
		Metrics:     m,
		Verifier:    verifier,
		RateLimiter: limiter,
		Health:      health.Handler(checker, db),
	}, api.Handlers{
		Habits:        habit.NewHandler(habits),
		Entries:       entry.NewHandler(entries),
		Stats:         stats.NewHandler(statsSvc, cfg.Stats.DefaultDays),
		Notifications: notification.NewHandler(tokens, reminder),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	coordinator := shutdown.NewCoordinator(graceful, forceful, log)
	coordinator.OnFinish("database", func() error { return database.Close(db) })
	if rdb != nil {
		coordinator.OnFinish("redis", rdb.Close)
	}

	go func() {
		log.WithField("addr", cfg.Server.Address).Info("服务器已准备就绪，开始监听")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP服务器异常退出")
		}
	}()

	coordinator.ListenForSignalsAndShutdown(server)
	return nil
}
