package metadata

import "gorm.io/gorm"

// --- SQLite Keys ---
// These keys are used for the 'key' column in the 'metadata' table.
const (
	// LastReminderDateKey stores the calendar date (YYYY-MM-DD) of the last
	// completed incomplete-habit reminder run.
	LastReminderDateKey = "last_reminder_date"

	// SchemaVersionKey stores the schema version written by the startup migration.
	SchemaVersionKey = "schema_version"
)

// Metadata 定义了存储系统元数据的键值对表结构
type Metadata struct {
	gorm.Model

	// Key 是元数据的唯一键，例如 "last_reminder_date"
	Key string `gorm:"uniqueIndex;not null;type:varchar(255)"`

	Value string `gorm:"type:varchar(255)"`
}
