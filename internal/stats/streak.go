package stats

import (
	"context"

	"github.com/SlpAus/habit-tracker-backend/pkg/civil"
)

// MaxStreakDays 限制向前扫描的天数，连续打卡超过这个天数时按上限计
const MaxStreakDays = 3660

// RecordLookup 回答某个习惯在某天是否有打卡记录
type RecordLookup interface {
	HasRecord(ctx context.Context, habitID string, date civil.Date) (bool, error)
}

// ComputeStreak 从 today 开始逐日向前数连续打卡的天数。
// 今天还没打卡不会中断连续记录：今天缺席时跳过一次，从昨天继续数。
// lookup 出错时直接返回错误，不给出部分结果。
func ComputeStreak(ctx context.Context, habitID string, today civil.Date, lookup RecordLookup) (int, error) {
	streak := 0
	cursor := today
	graceUsed := false

	for streak < MaxStreakDays {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		ok, err := lookup.HasRecord(ctx, habitID, cursor)
		if err != nil {
			return 0, err
		}
		switch {
		case ok:
			streak++
		case cursor == today && !graceUsed:
			graceUsed = true
		default:
			return streak, nil
		}
		cursor = cursor.AddDays(-1)
	}
	return streak, nil
}

// DateSet 是单个习惯打卡日期的内存索引。
// 一次查询取回日期后在内存中扫描，避免每天一次数据库往返。
type DateSet map[civil.Date]struct{}

// NewDateSet 用日期列表构造 DateSet
func NewDateSet(dates []civil.Date) DateSet {
	set := make(DateSet, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	return set
}

// HasRecord 实现 RecordLookup。DateSet 只属于一个习惯，habitID 被忽略。
func (s DateSet) HasRecord(_ context.Context, _ string, date civil.Date) (bool, error) {
	_, ok := s[date]
	return ok, nil
}
