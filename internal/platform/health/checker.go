package health

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/SlpAus/habit-tracker-backend/internal/platform/database"
	"github.com/SlpAus/habit-tracker-backend/pkg/lifecycle"
)

const (
	DefaultInterval = 5 * time.Second
	pingTimeout     = 2 * time.Second
)

var runIDPattern = regexp.MustCompile(`run_id:([a-f0-9]+)`)

// Pinger 是可以探测连通性的数据库连接，*sql.DB 满足此接口
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Checker 定期探测数据库和Redis，把Redis的状态写入 database.Status。
// Redis从不可用恢复或重启后会调用 onRecover。
type Checker struct {
	db        Pinger
	rdb       *redis.Client
	status    *database.Status
	onRecover func(ctx context.Context)
	interval  time.Duration
	log       logrus.FieldLogger

	mu        sync.RWMutex
	dbHealthy bool
	lastCheck time.Time
}

// NewChecker 创建健康检查器。rdb 为 nil 时只检查数据库。
func NewChecker(db Pinger, rdb *redis.Client, status *database.Status, onRecover func(ctx context.Context), log logrus.FieldLogger) *Checker {
	return &Checker{
		db:        db,
		rdb:       rdb,
		status:    status,
		onRecover: onRecover,
		interval:  DefaultInterval,
		log:       log.WithField("module", "health"),
		dbHealthy: true,
	}
}

// getRedisRunID 从Redis服务器信息中提取run_id
func (c *Checker) getRedisRunID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	info, err := c.rdb.Info(ctx, "server").Result()
	if err != nil {
		return "", err
	}
	matches := runIDPattern.FindStringSubmatch(info)
	if len(matches) < 2 {
		return "", fmt.Errorf("无法在Redis INFO中找到run_id")
	}
	return matches[1], nil
}

// InitializeRunID 在启动时记录一次Redis的run_id，之后的变化视为重启
func (c *Checker) InitializeRunID(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	runID, err := c.getRedisRunID(ctx)
	if err != nil {
		return fmt.Errorf("无法在启动时获取Redis Run ID: %w", err)
	}
	c.status.Update(true, runID)
	c.log.WithField("run_id", runID).Info("获取初始Redis Run ID成功")
	return nil
}

// PerformCheck 执行一次完整的健康检查和可能的恢复操作
func (c *Checker) PerformCheck(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	dbErr := c.db.PingContext(pingCtx)
	cancel()

	c.mu.Lock()
	if (dbErr == nil) != c.dbHealthy {
		if dbErr != nil {
			c.log.WithError(dbErr).Error("健康检查: 数据库状态已更新为 [不可用]")
		} else {
			c.log.Info("健康检查: 数据库状态已更新为 [可用]")
		}
	}
	c.dbHealthy = dbErr == nil
	c.lastCheck = time.Now()
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}

	runID, err := c.getRedisRunID(ctx)
	if err != nil {
		c.status.Update(false, "")
		return
	}
	wasHealthy := c.status.IsRedisHealthy()
	restarted := c.status.Update(true, runID)
	if restarted {
		c.log.WithField("run_id", runID).Warn("健康检查: 检测到Redis重启")
	}
	if (restarted || !wasHealthy) && c.onRecover != nil {
		c.onRecover(ctx)
	}
}

// Run 按固定间隔执行检查，直到 h 被关闭
func (c *Checker) Run(h *lifecycle.Handle) {
	c.log.WithField("interval", c.interval).Info("健康检查器已启动")
	for {
		if err := h.Sleep(c.interval); err != nil {
			c.log.Info("健康检查器已停止")
			return
		}
		c.PerformCheck(h.Ctx())
	}
}

// Report 是最近一次检查的结果
type Report struct {
	Database  string    `json:"database"`
	Redis     string    `json:"redis"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Healthy 报告服务是否可以处理请求。Redis只是缓存，不影响整体健康。
func (r Report) Healthy() bool {
	return r.Database == "up"
}

// Report 返回最近一次检查的结果
func (c *Checker) Report() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r := Report{Database: "down", Redis: "disabled", CheckedAt: c.lastCheck}
	if c.dbHealthy {
		r.Database = "up"
	}
	if c.rdb != nil {
		r.Redis = "down"
		if c.status.IsRedisHealthy() {
			r.Redis = "up"
		}
	}
	return r
}
