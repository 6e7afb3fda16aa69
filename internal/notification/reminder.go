package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SlpAus/habit-tracker-backend/internal/habit"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/metadata"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/metrics"
	"github.com/SlpAus/habit-tracker-backend/pkg/civil"
)

// ReminderTitle 是提醒通知的标题
const ReminderTitle = "⏰ Habit Reminder"

// HabitLister 按创建顺序列出用户的习惯
type HabitLister interface {
	List(ctx context.Context, userID string) ([]habit.Habit, error)
}

// CompletionLookup 返回用户在某天已打卡的习惯ID
type CompletionLookup interface {
	TodayHabitIDs(ctx context.Context, userID string, day civil.Date) ([]string, error)
}

// RunSummary 汇总一次提醒检查
type RunSummary struct {
	Date          civil.Date
	Users         int
	Notified      int
	Failed        int
	Sent          int
	InvalidTokens int
}

// Reminder 检查用户今天是否还有未完成的习惯，有则推送提醒
type Reminder struct {
	tokens      *Repository
	habits      HabitLister
	completions CompletionLookup
	sender      Sender
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
	loc         *time.Location
	now         func() time.Time
}

// NewReminder 创建提醒任务。loc 决定“今天”是哪一天；m 可以为 nil。
func NewReminder(tokens *Repository, habits HabitLister, completions CompletionLookup, sender Sender, m *metrics.Metrics, loc *time.Location, log logrus.FieldLogger) *Reminder {
	return &Reminder{
		tokens:      tokens,
		habits:      habits,
		completions: completions,
		sender:      sender,
		metrics:     m,
		log:         log.WithField("module", "reminder"),
		loc:         loc,
		now:         time.Now,
	}
}

// ReminderBody 生成提醒正文
func ReminderBody(incomplete int) string {
	noun := "habit"
	if incomplete > 1 {
		noun = "habits"
	}
	return fmt.Sprintf("You have %d incomplete %s today. Don't break your streak!", incomplete, noun)
}

// Run 检查所有注册了推送令牌的用户。单个用户失败只记日志，不影响其他用户。
func (r *Reminder) Run(ctx context.Context) (RunSummary, error) {
	today := civil.Of(r.now(), r.loc)
	summary := RunSummary{Date: today}

	r.log.WithField("date", today.String()).Info("开始检查未完成的习惯")

	userIDs, err := r.tokens.UserIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("查询推送用户失败: %w", err)
	}
	summary.Users = len(userIDs)

	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, notified, err := r.remind(ctx, userID, today)
		if err != nil {
			summary.Failed++
			r.log.WithError(err).WithField("user", userID).Error("检查用户习惯失败")
			continue
		}
		if notified {
			summary.Notified++
		}
		summary.Sent += res.SuccessCount
		summary.InvalidTokens += len(res.InvalidTokens)
	}

	if err := metadata.SetLastReminderDate(ctx, r.tokens.DB(), today); err != nil {
		r.log.WithError(err).Warn("无法记录提醒运行日期")
	}

	r.log.WithFields(logrus.Fields{
		"users":    summary.Users,
		"notified": summary.Notified,
		"failed":   summary.Failed,
	}).Info("未完成习惯检查结束")
	return summary, nil
}

// RunForUser 只检查一个用户，返回是否发送了提醒
func (r *Reminder) RunForUser(ctx context.Context, userID string) (bool, error) {
	_, notified, err := r.remind(ctx, userID, civil.Of(r.now(), r.loc))
	return notified, err
}

func (r *Reminder) remind(ctx context.Context, userID string, today civil.Date) (BatchResult, bool, error) {
	habits, err := r.habits.List(ctx, userID)
	if err != nil {
		return BatchResult{}, false, err
	}
	if len(habits) == 0 {
		return BatchResult{}, false, nil
	}

	done, err := r.completions.TodayHabitIDs(ctx, userID, today)
	if err != nil {
		return BatchResult{}, false, err
	}
	completed := make(map[string]struct{}, len(done))
	for _, id := range done {
		completed[id] = struct{}{}
	}
	incomplete := 0
	for _, h := range habits {
		if _, ok := completed[h.ID]; !ok {
			incomplete++
		}
	}
	if incomplete == 0 {
		r.log.WithField("user", userID).Debug("用户今天的习惯已全部完成")
		return BatchResult{}, false, nil
	}

	tokens, err := r.tokens.TokensForUser(ctx, userID)
	if err != nil {
		return BatchResult{}, false, err
	}
	if len(tokens) == 0 {
		return BatchResult{}, false, nil
	}

	res, err := r.sender.SendMulticast(ctx, tokens, Message{
		Title: ReminderTitle,
		Body:  ReminderBody(incomplete),
		Data:  map[string]string{"type": "habit_reminder", "date": today.String()},
	})
	if err != nil {
		r.metrics.ReminderOutcome("failed", len(tokens))
		return BatchResult{}, false, fmt.Errorf("发送提醒失败: %w", err)
	}
	r.metrics.ReminderOutcome("sent", res.SuccessCount)
	r.metrics.ReminderOutcome("failed", res.FailureCount)

	if len(res.InvalidTokens) > 0 {
		removed, err := r.tokens.DeleteTokens(ctx, res.InvalidTokens)
		if err != nil {
			r.log.WithError(err).Warn("删除失效的推送令牌失败")
		} else {
			r.log.WithField("removed", removed).Info("已删除失效的推送令牌")
		}
	}

	r.log.WithFields(logrus.Fields{
		"user":       userID,
		"incomplete": incomplete,
		"success":    res.SuccessCount,
		"failure":    res.FailureCount,
	}).Info("已发送习惯提醒")
	return res, true, nil
}
