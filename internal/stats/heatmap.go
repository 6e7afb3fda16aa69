package stats

import (
	"errors"

	"github.com/SlpAus/habit-tracker-backend/pkg/civil"
)

// MaxHeatmapDays 是热力图窗口的上限
const MaxHeatmapDays = 3660

// ErrInvalidDays 表示热力图窗口不是 1..MaxHeatmapDays 之间的整数
var ErrInvalidDays = errors.New("days must be a positive integer no greater than 3660")

// Bucket 是热力图中的一天
type Bucket struct {
	Date  civil.Date `json:"date"`
	Count int        `json:"count"`
}

// Window 返回以 today 结尾、长度为 days 的闭区间
func Window(today civil.Date, days int) (from, to civil.Date) {
	return today.AddDays(-(days - 1)), today
}

// GroupByDate 把打卡日期按天计数，每条记录计一次
func GroupByDate(dates []civil.Date) map[civil.Date]int {
	counts := make(map[civil.Date]int)
	for _, d := range dates {
		counts[d]++
	}
	return counts
}

// ComputeHeatmap 生成 [today-days+1, today] 上逐日、升序、无缺口的序列，
// counts 中没有的日期计为0，窗口外的日期被忽略。
func ComputeHeatmap(today civil.Date, days int, counts map[civil.Date]int) ([]Bucket, error) {
	if days <= 0 || days > MaxHeatmapDays {
		return nil, ErrInvalidDays
	}

	from, _ := Window(today, days)
	buckets := make([]Bucket, days)
	for i := range buckets {
		d := from.AddDays(i)
		buckets[i] = Bucket{Date: d, Count: counts[d]}
	}
	return buckets, nil
}
