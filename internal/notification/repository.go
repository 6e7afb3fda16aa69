package notification

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository 封装了device_tokens表上的查询
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建推送令牌仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate 负责自动迁移数据库表结构
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&DeviceToken{}); err != nil {
		return fmt.Errorf("无法迁移device_token表: %w", err)
	}
	return nil
}

// DB 返回底层连接
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Upsert 保存令牌。令牌已存在时改为属于 userID（设备换了登录用户）。
func (r *Repository) Upsert(ctx context.Context, userID, token string) error {
	now := time.Now().UTC()
	t := DeviceToken{UserID: userID, Token: token, CreatedAt: now, UpdatedAt: now}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "updated_at"}),
	}).Create(&t).Error
}

// Delete 删除属于 userID 的令牌，返回是否删除了记录
func (r *Repository) Delete(ctx context.Context, userID, token string) (bool, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND token = ?", userID, token).Delete(&DeviceToken{})
	return res.RowsAffected > 0, res.Error
}

// DeleteTokens 删除给定的令牌，不论属于谁
func (r *Repository) DeleteTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("token IN ?", tokens).Delete(&DeviceToken{})
	return res.RowsAffected, res.Error
}

// UserIDs 返回至少注册了一个令牌的用户
func (r *Repository) UserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&DeviceToken{}).
		Distinct("user_id").Order("user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}

// TokensForUser 返回用户的全部令牌
func (r *Repository) TokensForUser(ctx context.Context, userID string) ([]string, error) {
	var tokens []string
	err := r.db.WithContext(ctx).Model(&DeviceToken{}).
		Where("user_id = ?", userID).Order("id asc").
		Pluck("token", &tokens).Error
	return tokens, err
}
