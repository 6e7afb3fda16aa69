package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/SlpAus/habit-tracker-backend/internal/platform/config"
)

// OpenRedis 初始化与Redis的连接。配置中未启用时返回 nil, nil，
// 调用方需要把 nil 客户端视为“没有缓存”。
func OpenRedis(ctx context.Context, cfg config.RedisConfig, log *logrus.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		log.Info("Redis未启用，统计缓存关闭")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到Redis: %w", err)
	}

	log.WithField("addr", cfg.Address).Info("Redis 连接成功")
	return rdb, nil
}
