package entry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/SlpAus/habit-tracker-backend/internal/habit"
	"github.com/SlpAus/habit-tracker-backend/internal/platform/database"
	"github.com/SlpAus/habit-tracker-backend/pkg/civil"
)

var (
	ErrAlreadyExists = errors.New("entry already exists for this habit and date")
	ErrNotFound      = errors.New("entry not found")
	ErrInvalidDate   = errors.New("date must be a valid calendar date in YYYY-MM-DD format")
)

// Service 负责打卡和取消打卡
type Service struct {
	repo  *Repository
	cache habit.Invalidator
	log   logrus.FieldLogger
	loc   *time.Location
	now   func() time.Time
}

// NewService 创建打卡服务。loc 决定“今天”是哪一天，cache 可以为 nil。
func NewService(repo *Repository, cache habit.Invalidator, loc *time.Location, log logrus.FieldLogger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log.WithField("module", "entry"),
		loc:   loc,
		now:   time.Now,
	}
}

// Today 返回服务时区下的今天
func (s *Service) Today() civil.Date {
	return civil.Of(s.now(), s.loc)
}

// Create 把习惯在 date 当天标记为完成
func (s *Service) Create(ctx context.Context, userID, habitID, date string) (Entry, error) {
	if !habit.IsValidID(habitID) {
		return Entry{}, habit.ErrInvalidID
	}
	day, err := civil.Parse(date)
	if err != nil {
		return Entry{}, ErrInvalidDate
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Entry{}, fmt.Errorf("无法生成UUID v7: %w", err)
	}
	e := Entry{
		ID:        id.String(),
		HabitID:   habitID,
		UserID:    userID,
		Date:      day.String(),
		CreatedAt: s.now().UTC(),
	}

	err = database.Transaction(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		// 锁住习惯行，避免与级联删除并发时留下孤立记录
		if err := habit.LockOwned(tx, userID, habitID); err != nil {
			return err
		}
		if err := insert(tx, &e); err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("保存打卡记录失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}

	s.invalidate(ctx, userID)
	s.log.WithFields(logrus.Fields{"user": userID, "habit": habitID, "date": e.Date}).Debug("已打卡")
	return e, nil
}

// Delete 取消习惯在 date 当天的打卡
func (s *Service) Delete(ctx context.Context, userID, habitID, date string) error {
	if !habit.IsValidID(habitID) {
		return habit.ErrInvalidID
	}
	day, err := civil.Parse(date)
	if err != nil {
		return ErrInvalidDate
	}

	affected, err := deleteOne(s.repo.DB().WithContext(ctx), userID, habitID, day.String())
	if err != nil {
		return fmt.Errorf("删除打卡记录失败: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.invalidate(ctx, userID)
	s.log.WithFields(logrus.Fields{"user": userID, "habit": habitID, "date": day.String()}).Debug("已取消打卡")
	return nil
}

// TodayHabitIDs 返回用户今天已完成的习惯ID
func (s *Service) TodayHabitIDs(ctx context.Context, userID string) ([]string, error) {
	return s.repo.TodayHabitIDs(ctx, userID, s.Today())
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}
