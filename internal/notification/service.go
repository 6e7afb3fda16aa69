package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// MaxTokenLength 是推送令牌的最大长度
const MaxTokenLength = 512

// ErrInvalidToken 表示推送令牌为空或过长
var ErrInvalidToken = errors.New("fcmToken must be a non-empty string of at most 512 characters")

// Service 管理用户的推送令牌
type Service struct {
	repo *Repository
	log  logrus.FieldLogger
}

// NewService 创建推送令牌服务
func NewService(repo *Repository, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, log: log.WithField("module", "notification")}
}

func normalizeToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > MaxTokenLength {
		return "", ErrInvalidToken
	}
	return token, nil
}

// Register 为用户登记推送令牌，重复登记是幂等的
func (s *Service) Register(ctx context.Context, userID, token string) error {
	token, err := normalizeToken(token)
	if err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, userID, token); err != nil {
		return fmt.Errorf("保存推送令牌失败: %w", err)
	}
	s.log.WithField("user", userID).Info("推送令牌已登记")
	return nil
}

// Unregister 删除用户的推送令牌，令牌不存在时也视为成功
func (s *Service) Unregister(ctx context.Context, userID, token string) error {
	token, err := normalizeToken(token)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, userID, token)
	if err != nil {
		return fmt.Errorf("删除推送令牌失败: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user": userID, "deleted": deleted}).Info("推送令牌已注销")
	return nil
}

// HabitOwners 列出至少拥有一个习惯的用户
type HabitOwners interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// UnreachableUsers 返回拥有习惯但没有任何推送令牌的用户，按ID排序。
// 提醒任务不会通知到这些用户。
func (s *Service) UnreachableUsers(ctx context.Context, owners HabitOwners) ([]string, error) {
	ownerIDs, err := owners.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询习惯用户失败: %w", err)
	}
	withTokens, err := s.repo.UserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询推送用户失败: %w", err)
	}

	reachable := make(map[string]bool, len(withTokens))
	for _, id := range withTokens {
		reachable[id] = true
	}
	unreachable := []string{}
	for _, id := range ownerIDs {
		if !reachable[id] {
			unreachable = append(unreachable, id)
		}
	}
	sort.Strings(unreachable)
	return unreachable, nil
}
