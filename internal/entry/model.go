package entry

import (
	"time"
)

// Entry 表示某个习惯在某个日历日完成了一次。
// (habit_id, date) 唯一；(user_id, date) 上的索引服务于热力图和“今天”的查询。
type Entry struct {
	ID      string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	HabitID string `gorm:"not null;type:varchar(36);uniqueIndex:idx_entries_habit_date,priority:1" json:"habitId"`
	UserID  string `gorm:"not null;type:varchar(128);index:idx_entries_user_date,priority:1" json:"userId"`

	// Date 固定为 YYYY-MM-DD，字典序即日期顺序
	Date string `gorm:"not null;type:varchar(10);uniqueIndex:idx_entries_habit_date,priority:2;index:idx_entries_user_date,priority:2" json:"date"`

	CreatedAt time.Time `json:"createdAt"`
}
