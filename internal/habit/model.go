package habit

import (
	"time"
)

const (
	// MaxHabitsPerUser 是单个用户可同时拥有的习惯数上限，只在创建时检查
	MaxHabitsPerUser = 4
	// MaxNameLength 是习惯名称的最大字符数
	MaxNameLength = 100
	// MaxEmojiLength 是图标的最大字符数
	MaxEmojiLength = 16
	// DefaultEmoji 是未指定图标时使用的符号
	DefaultEmoji = "✓"
)

// Habit 定义了用户的一个每日习惯。
// (user_id, created_at) 上的联合索引同时服务于按用户列出和创建顺序排序。
type Habit struct {
	// ID 是UUID v7字符串
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	// UserID 来自身份提供方的不透明用户标识
	UserID string `gorm:"not null;type:varchar(128);index:idx_habits_user_created,priority:1" json:"userId"`

	Name  string `gorm:"not null;type:varchar(400)" json:"name"`
	Emoji string `gorm:"not null;type:varchar(64)" json:"emoji"`

	// CreatedAt 由GORM自动填充，是列表的排序键
	CreatedAt time.Time `gorm:"index:idx_habits_user_created,priority:2" json:"createdAt"`
}
