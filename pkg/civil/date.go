// Package civil 提供不带时间部分的日历日期。
// 所有加减都按日历天进行，与夏令时和时区偏移无关。
package civil

import (
	"fmt"
	"time"

	"github.com/jinzhu/now"
)

// Layout 是日期的规范字符串格式
const Layout = "2006-01-02"

// Date 是一个日历日期。内部固定为UTC零点，保证 AddDays 只按日历天移动。
type Date struct {
	t time.Time
}

// New 构造一个日期，月份和日期越界时按 time.Date 的规则进位
func New(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Parse 解析 YYYY-MM-DD 格式的字符串，拒绝不存在的日期（例如 2023-02-29）
func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("无效的日期 %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// MustParse 用于常量和测试，解析失败时panic
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Of 返回时间点 t 在时区 loc 下所处的日历日期
func Of(t time.Time, loc *time.Location) Date {
	start := now.With(t.In(loc)).BeginningOfDay()
	y, m, d := start.Date()
	return New(y, m, d)
}

// AddDays 返回向后（n<0 时向前）移动 n 个日历天后的日期
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// Before 报告 d 是否早于 other
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

// After 报告 d 是否晚于 other
func (d Date) After(other Date) bool { return d.t.After(other.t) }

// IsZero 报告 d 是否为零值
func (d Date) IsZero() bool { return d.t.IsZero() }

// String 返回 YYYY-MM-DD
func (d Date) String() string { return d.t.Format(Layout) }

// MarshalText 实现 encoding.TextMarshaler，JSON中输出为 "YYYY-MM-DD"
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
