package habit

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 封装了habits表上的所有查询。
// 接受 *gorm.DB 的方法既可以在事务里调用，也可以直接使用连接池。
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建习惯仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate 负责自动迁移数据库表结构
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&Habit{}); err != nil {
		return fmt.Errorf("无法迁移habit表: %w", err)
	}
	return nil
}

// DB 返回底层连接，供需要开启跨表事务的服务使用
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// ListByUser 按创建顺序返回用户的全部习惯
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Habit, error) {
	var habits []Habit
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").Order("id asc").
		Find(&habits).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户 %s 的习惯失败: %w", userID, err)
	}
	return habits, nil
}

// Get 返回属于 userID 的习惯，不存在时返回 ErrNotFound
func (r *Repository) Get(ctx context.Context, userID, habitID string) (Habit, error) {
	var h Habit
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", habitID, userID).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Habit{}, ErrNotFound
	}
	if err != nil {
		return Habit{}, fmt.Errorf("查询习惯 %s 失败: %w", habitID, err)
	}
	return h, nil
}

// ListUserIDs 返回至少拥有一个习惯的全部用户
func (r *Repository) ListUserIDs(ctx context.Context) ([]string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).Model(&Habit{}).Distinct("user_id").Pluck("user_id", &userIDs).Error
	return userIDs, err
}

func countByUser(tx *gorm.DB, userID string) (int64, error) {
	var count int64
	err := tx.Model(&Habit{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func insert(tx *gorm.DB, h *Habit) error {
	return tx.Create(h).Error
}

// deleteOwned 删除属于 userID 的习惯，返回受影响的行数
func deleteOwned(tx *gorm.DB, userID, habitID string) (int64, error) {
	res := tx.Where("id = ? AND user_id = ?", habitID, userID).Delete(&Habit{})
	return res.RowsAffected, res.Error
}

// LockOwned 在事务中锁定属于 userID 的习惯行，供需要保证习惯在提交前不被删除的写操作使用。
// 习惯不存在或属于其他用户时返回 ErrNotFound。
func LockOwned(tx *gorm.DB, userID, habitID string) error {
	var h Habit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ? AND user_id = ?", habitID, userID).
		First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
