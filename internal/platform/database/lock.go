package database

import "gorm.io/gorm"

// LockKey 在当前事务内获取以 key 命名的排他锁，事务结束时自动释放。
// postgres 使用事务级advisory锁；sqlite 的写事务本身串行执行，无需加锁。
func LockKey(tx *gorm.DB, key string) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error
}
