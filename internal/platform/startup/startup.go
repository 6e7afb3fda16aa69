package startup

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/SlpAus/habit-tracker-backend/internal/platform/metadata"
)

// SchemaVersion 在表结构发生不兼容变化时递增
const SchemaVersion = 1

// Migrator 是拥有数据库表的模块
type Migrator interface {
	Migrate() error
}

// Flusher 是可以整体清空的缓存
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// InitializeApplication 是应用启动时执行的总入口：迁移所有模块的表并记录结构版本
func InitializeApplication(ctx context.Context, db *gorm.DB, log logrus.FieldLogger, modules ...Migrator) error {
	log.Info("开始应用初始化...")

	if err := metadata.Migrate(db); err != nil {
		return err
	}
	for _, m := range modules {
		if err := m.Migrate(); err != nil {
			return err
		}
	}

	previous, err := metadata.GetValue(ctx, db, metadata.SchemaVersionKey)
	if err != nil {
		return fmt.Errorf("读取结构版本失败: %w", err)
	}
	current := strconv.Itoa(SchemaVersion)
	if previous != current {
		if err := metadata.SetValue(ctx, db, metadata.SchemaVersionKey, current); err != nil {
			return fmt.Errorf("写入结构版本失败: %w", err)
		}
		log.WithFields(logrus.Fields{"from": previous, "to": current}).Info("数据库结构版本已更新")
	}

	log.Info("应用初始化完成！")
	return nil
}

// HandleRedisRecovery 在Redis从不健康状态恢复或重启后清空统计缓存，
// 丢弃不可用期间可能错过失效的数据。
func HandleRedisRecovery(ctx context.Context, cache Flusher, log logrus.FieldLogger) {
	log.Info("检测到Redis已恢复，正在清理统计缓存...")
	n, err := cache.Flush(ctx)
	if err != nil {
		log.WithError(err).Warn("清理统计缓存失败")
		return
	}
	log.WithField("keys", n).Info("恢复后操作完成")
}
