package stats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/SlpAus/habit-tracker-backend/internal/habit"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/metrics"
	"github.com/SlpAus/habit-tracker-backend/pkg/civil"
)

const defaultStreakConcurrency = 4

// HabitLister 按创建顺序列出用户的习惯
type HabitLister interface {
	List(ctx context.Context, userID string) ([]habit.Habit, error)
}

// RecordStore 是统计需要的打卡记录查询
type RecordStore interface {
	DatesForHabit(ctx context.Context, habitID string, until civil.Date, limit int) ([]civil.Date, error)
	CountByDate(ctx context.Context, userID string, from, to civil.Date) (map[civil.Date]int, error)
}

// StreakResult 是一个习惯的连续打卡天数
type StreakResult struct {
	HabitID string `json:"habitId"`
	Name    string `json:"name"`
	Streak  int    `json:"streak"`
}

// Service 计算热力图和连续打卡天数，只读
type Service struct {
	habits      HabitLister
	records     RecordStore
	cache       *Cache
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
	loc         *time.Location
	now         func() time.Time
	concurrency int
}

// NewService 创建统计服务。loc 决定“今天”是哪一天；cache 和 m 可以为 nil。
func NewService(habits HabitLister, records RecordStore, cache *Cache, m *metrics.Metrics, loc *time.Location, log logrus.FieldLogger) *Service {
	return &Service{
		habits:      habits,
		records:     records,
		cache:       cache,
		metrics:     m,
		log:         log.WithField("module", "stats"),
		loc:         loc,
		now:         time.Now,
		concurrency: defaultStreakConcurrency,
	}
}

// Today 返回服务时区下的今天
func (s *Service) Today() civil.Date {
	return civil.Of(s.now(), s.loc)
}

// Heatmap 返回用户最近 days 天每天的打卡总数。
// 耗时指标只在实际计算时记录，缓存命中只计入缓存查询计数。
func (s *Service) Heatmap(ctx context.Context, userID string, days int) ([]Bucket, error) {
	if days <= 0 || days > MaxHeatmapDays {
		return nil, ErrInvalidDays
	}

	start := time.Now()
	today := s.Today()
	field := "heatmap:" + strconv.Itoa(days) + ":" + today.String()

	var cached []Bucket
	hit, snap := s.cache.get(ctx, userID, field, &cached)
	if hit {
		return cached, nil
	}

	from, to := Window(today, days)
	counts, err := s.records.CountByDate(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("查询热力图数据失败: %w", err)
	}
	buckets, err := ComputeHeatmap(today, days, counts)
	if err != nil {
		return nil, err
	}

	s.cache.set(ctx, userID, snap, field, buckets)
	s.metrics.ObserveStats("heatmap", time.Since(start))
	return buckets, nil
}

// Streaks 返回用户每个习惯的连续打卡天数，顺序与习惯的创建顺序一致。
// 各习惯并行计算，任何一个失败则整体失败。
func (s *Service) Streaks(ctx context.Context, userID string) ([]StreakResult, error) {
	start := time.Now()
	today := s.Today()
	field := "streaks:" + today.String()

	var cached []StreakResult
	hit, snap := s.cache.get(ctx, userID, field, &cached)
	if hit {
		return cached, nil
	}

	habits, err := s.habits.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询习惯列表失败: %w", err)
	}

	results := make([]StreakResult, len(habits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, h := range habits {
		i, h := i, h
		g.Go(func() error {
			streak, err := s.streakFor(gctx, h.ID, today)
			if err != nil {
				return fmt.Errorf("计算习惯 %s 的连续天数失败: %w", h.ID, err)
			}
			results[i] = StreakResult{HabitID: h.ID, Name: h.Name, Streak: streak}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.cache.set(ctx, userID, snap, field, results)
	s.metrics.ObserveStats("streaks", time.Since(start))
	s.log.WithFields(logrus.Fields{"user": userID, "habits": len(habits)}).Debug("连续天数计算完成")
	return results, nil
}

// streakFor 一次取回习惯在今天及之前的打卡日期，再在内存中扫描
func (s *Service) streakFor(ctx context.Context, habitID string, today civil.Date) (int, error) {
	dates, err := s.records.DatesForHabit(ctx, habitID, today, MaxStreakDays)
	if err != nil {
		return 0, err
	}
	return ComputeStreak(ctx, habitID, today, NewDateSet(dates))
}
