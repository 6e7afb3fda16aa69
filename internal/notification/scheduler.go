package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/SlpAus/habit-tracker-backend/pkg/lifecycle"
)

// runTimeout 限制单次提醒检查的最长时间
const runTimeout = 10 * time.Minute

// Scheduler 按cron表达式定时运行 Reminder
type Scheduler struct {
	cron     *cron.Cron
	reminder *Reminder
	log      logrus.FieldLogger
	jobCtx   context.Context
}

// cronLogger 把cron的日志转给logrus
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}

// NewScheduler 解析调度表达式并注册提醒任务。spec 支持标准5段表达式和 @every 等描述符。
func NewScheduler(spec string, loc *time.Location, reminder *Reminder, log logrus.FieldLogger) (*Scheduler, error) {
	log = log.WithField("module", "scheduler")
	logger := cronLogger{log: log}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		reminder: reminder,
		log:      log,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("无效的提醒调度表达式 %q: %w", spec, err)
	}
	return s, nil
}

// SetJobContext 指定任务使用的上下文，必须在 Run 之前调用。未设置时使用 Run 的句柄上下文。
func (s *Scheduler) SetJobContext(ctx context.Context) {
	s.jobCtx = ctx
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(s.jobCtx, runTimeout)
	defer cancel()
	if _, err := s.reminder.Run(ctx); err != nil {
		s.log.WithError(err).Error("提醒检查失败")
	}
}

// Next 返回下一次运行时间，调度器未启动时为零值
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Run 启动调度器并阻塞到 h 被关闭，然后等待正在运行的任务结束
func (s *Scheduler) Run(h *lifecycle.Handle) {
	if s.jobCtx == nil {
		s.jobCtx = h.Ctx()
	}
	s.cron.Start()
	s.log.WithField("next", s.Next()).Info("提醒调度器已启动")

	<-h.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.Info("提醒调度器已停止")
}
