package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/SlpAus/habit-tracker-backend/internal/entry"
	"github.com/SlpAus/habit-tracker-backend/internal/habit"
	"github.com/SlpAus/habit-tracker-backend/internal/notification"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/config"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/database"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/logging"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/metrics"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/startup"
	"github.com/SlpAus/habit-tracker-backend/internal/stats"
)

// env 是各个子命令共享的运行环境
type env struct {
	cfg *config.Config
	log *logrus.Logger
	db  *gorm.DB
	rdb *redis.Client
}

func (e *env) close() {
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
	if err := database.Close(e.db); err != nil {
		e.log.WithError(err).Warn("关闭数据库失败")
	}
}

// MigrateCmd 创建或更新所有表
type MigrateCmd struct{}

func (cmd *MigrateCmd) Run(ctx context.Context, e *env) error {
	return startup.InitializeApplication(ctx, e.db, e.log,
		habit.NewRepository(e.db), entry.NewRepository(e.db), notification.NewRepository(e.db))
}

// FlushCacheCmd 清空Redis中的统计缓存
type FlushCacheCmd struct{}

func (cmd *FlushCacheCmd) Run(ctx context.Context, e *env) error {
	if e.rdb == nil {
		return fmt.Errorf("配置中未启用Redis")
	}
	cache := stats.NewCache(e.rdb, nil, e.cfg.Stats.CacheTTL, nil, e.log)
	n, err := cache.Flush(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("已删除 %d 个缓存键\n", n)
	return nil
}

// RemindCmd 立即执行一次未完成习惯检查，推送通过日志输出
type RemindCmd struct {
	User string `help:"只检查这个用户。"`
}

func (cmd *RemindCmd) Run(ctx context.Context, e *env) error {
	loc, err := time.LoadLocation(e.cfg.Notifications.Timezone)
	if err != nil {
		return err
	}
	habitRepo := habit.NewRepository(e.db)
	entryRepo := entry.NewRepository(e.db)
	tokenRepo := notification.NewRepository(e.db)
	habits := habit.NewService(habitRepo, entryRepo, nil, e.log)
	reminder := notification.NewReminder(tokenRepo, habits, entryRepo,
		notification.NewLogSender(e.log), metrics.New(), loc, e.log)

	if cmd.User != "" {
		notified, err := reminder.RunForUser(ctx, cmd.User)
		if err != nil {
			return err
		}
		fmt.Printf("用户 %s: notified=%v\n", cmd.User, notified)
		return nil
	}

	summary, err := reminder.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s: users=%d notified=%d failed=%d sent=%d invalidTokens=%d\n",
		summary.Date, summary.Users, summary.Notified, summary.Failed, summary.Sent, summary.InvalidTokens)

	unreachable, err := notification.NewService(tokenRepo, e.log).UnreachableUsers(ctx, habitRepo)
	if err != nil {
		return err
	}
	if len(unreachable) > 0 {
		fmt.Printf("%d 个拥有习惯的用户没有推送令牌: %s\n", len(unreachable), strings.Join(unreachable, ", "))
	}
	return nil
}

var cli struct {
	Config string `help:"配置文件路径，留空时按服务器的规则查找。" type:"path"`

	Migrate    MigrateCmd    `cmd:"" help:"创建或更新数据库表。"`
	FlushCache FlushCacheCmd `cmd:"" help:"清空统计缓存。"`
	Remind     RemindCmd     `cmd:"" help:"立即执行一次未完成习惯检查。"`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("habitctl"),
		kong.Description("习惯追踪后端的维护工具"),
		kong.UsageOnError(),
	)

	e, err := open(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(e)
	stop()
	e.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func open(path string) (*env, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadConfigFile(path)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	log := logging.New(cfg.Log)
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	rdb, err := database.OpenRedis(context.Background(), cfg.Database.Redis, log)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db, rdb: rdb}, nil
}
