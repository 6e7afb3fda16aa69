package notification

import "time"

// DeviceToken 是一个推送令牌。一个令牌同一时间只属于一个用户。
type DeviceToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;type:varchar(128);index"`
	Token     string    `gorm:"not null;type:varchar(512);uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
