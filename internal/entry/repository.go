package entry

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/SlpAus/habit-tracker-backend/pkg/civil"
)

// Repository 封装了entries表上的查询
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建打卡记录仓库
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate 负责自动迁移数据库表结构
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("无法迁移entry表: %w", err)
	}
	return nil
}

// DB 返回底层连接
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// DeleteByHabit 删除一个习惯的全部打卡记录，由习惯删除的事务调用
func (r *Repository) DeleteByHabit(tx *gorm.DB, habitID string) error {
	return tx.Where("habit_id = ?", habitID).Delete(&Entry{}).Error
}

// DatesForHabit 返回习惯在 until 及之前的打卡日期，按日期降序。limit > 0 时最多返回 limit 条
func (r *Repository) DatesForHabit(ctx context.Context, habitID string, until civil.Date, limit int) ([]civil.Date, error) {
	var raw []string
	q := r.db.WithContext(ctx).Model(&Entry{}).
		Where("habit_id = ? AND date <= ?", habitID, until.String()).
		Order("date desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Pluck("date", &raw).Error
	if err != nil {
		return nil, fmt.Errorf("查询习惯 %s 的打卡日期失败: %w", habitID, err)
	}
	return parseDates(raw)
}

type dateCount struct {
	Date  string
	Count int
}

// CountByDate 统计用户在 [from, to] 内每天的打卡数，没有记录的日期不出现在结果中
func (r *Repository) CountByDate(ctx context.Context, userID string, from, to civil.Date) (map[civil.Date]int, error) {
	var rows []dateCount
	err := r.db.WithContext(ctx).Model(&Entry{}).
		Select("date, COUNT(*) AS count").
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from.String(), to.String()).
		Group("date").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("统计用户 %s 的打卡数失败: %w", userID, err)
	}

	counts := make(map[civil.Date]int, len(rows))
	for _, row := range rows {
		d, err := civil.Parse(row.Date)
		if err != nil {
			return nil, err
		}
		counts[d] = row.Count
	}
	return counts, nil
}

// TodayHabitIDs 返回用户在 day 当天已打卡的习惯ID
func (r *Repository) TodayHabitIDs(ctx context.Context, userID string, day civil.Date) ([]string, error) {
	ids := []string{}
	err := r.db.WithContext(ctx).Model(&Entry{}).
		Where("user_id = ? AND date = ?", userID, day.String()).
		Order("habit_id asc").
		Pluck("habit_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询用户 %s 今天的打卡失败: %w", userID, err)
	}
	return ids, nil
}

func insert(tx *gorm.DB, e *Entry) error {
	return tx.Create(e).Error
}

func deleteOne(tx *gorm.DB, userID, habitID, date string) (int64, error) {
	res := tx.Where("user_id = ? AND habit_id = ? AND date = ?", userID, habitID, date).Delete(&Entry{})
	return res.RowsAffected, res.Error
}

func parseDates(raw []string) ([]civil.Date, error) {
	dates := make([]civil.Date, 0, len(raw))
	for _, s := range raw {
		d, err := civil.Parse(s)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("数据库中存在无效日期 %q", s), err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}
