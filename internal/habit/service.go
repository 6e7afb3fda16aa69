package habit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/SlpAus/habit-tracker-backend/internal/platform/database"
)

var (
	ErrNotFound     = errors.New("habit not found")
	ErrInvalidID    = errors.New("invalid habit ID")
	ErrInvalidName  = errors.New("habit name must be between 1 and 100 characters")
	ErrInvalidEmoji = errors.New("habit emoji must be at most 16 characters")
	ErrLimitReached = fmt.Errorf("you have reached the maximum limit of %d habits", MaxHabitsPerUser)
)

// RecordPurger 在删除习惯的同一事务中删除它的全部打卡记录
type RecordPurger interface {
	DeleteByHabit(tx *gorm.DB, habitID string) error
}

// Invalidator 在用户数据变化后清除该用户的统计缓存
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Service 实现习惯的创建、列出和级联删除
type Service struct {
	repo   *Repository
	purger RecordPurger
	cache  Invalidator
	log    logrus.FieldLogger
	now    func() time.Time
	limit  int
}

// NewService 创建习惯服务。cache 可以为 nil。
func NewService(repo *Repository, purger RecordPurger, cache Invalidator, log logrus.FieldLogger) *Service {
	return &Service{
		repo:   repo,
		purger: purger,
		cache:  cache,
		log:    log.WithField("module", "habit"),
		now:    time.Now,
		limit:  MaxHabitsPerUser,
	}
}

// IsValidID 检查习惯ID是否是合法的UUID
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func limitLockKey(userID string) string {
	return "habits:" + userID
}

// Create 为用户新建一个习惯。数量检查和插入在同一个事务内、持有用户级锁时完成。
func (s *Service) Create(ctx context.Context, userID, name, emoji string) (Habit, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return Habit{}, ErrInvalidName
	}
	emoji = strings.TrimSpace(emoji)
	if utf8.RuneCountInString(emoji) > MaxEmojiLength {
		return Habit{}, ErrInvalidEmoji
	}
	if emoji == "" {
		emoji = DefaultEmoji
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Habit{}, fmt.Errorf("无法生成UUID v7: %w", err)
	}
	h := Habit{
		ID:        id.String(),
		UserID:    userID,
		Name:      name,
		Emoji:     emoji,
		CreatedAt: s.now().UTC(),
	}

	err = database.Transaction(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		// 同一用户的并发创建在这里排队，计数和插入之间不会插入别的事务
		if err := database.LockKey(tx, limitLockKey(userID)); err != nil {
			return fmt.Errorf("锁定用户习惯失败: %w", err)
		}
		count, err := countByUser(tx, userID)
		if err != nil {
			return fmt.Errorf("统计用户习惯数量失败: %w", err)
		}
		if count >= int64(s.limit) {
			return ErrLimitReached
		}
		return insert(tx, &h)
	})
	if err != nil {
		return Habit{}, err
	}

	s.invalidate(ctx, userID)
	s.log.WithFields(logrus.Fields{"user": userID, "habit": h.ID}).Info("习惯已创建")
	return h, nil
}

// List 按创建顺序返回用户的习惯
func (s *Service) List(ctx context.Context, userID string) ([]Habit, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Get 返回用户拥有的某个习惯
func (s *Service) Get(ctx context.Context, userID, habitID string) (Habit, error) {
	if !IsValidID(habitID) {
		return Habit{}, ErrInvalidID
	}
	return s.repo.Get(ctx, userID, habitID)
}

// Delete 删除习惯及其全部打卡记录
func (s *Service) Delete(ctx context.Context, userID, habitID string) error {
	if !IsValidID(habitID) {
		return ErrInvalidID
	}

	err := database.Transaction(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		affected, err := deleteOwned(tx, userID, habitID)
		if err != nil {
			return fmt.Errorf("删除习惯失败: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		if s.purger == nil {
			return nil
		}
		if err := s.purger.DeleteByHabit(tx, habitID); err != nil {
			return fmt.Errorf("删除习惯 %s 的打卡记录失败: %w", habitID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, userID)
	s.log.WithFields(logrus.Fields{"user": userID, "habit": habitID}).Info("习惯已删除")
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
}
