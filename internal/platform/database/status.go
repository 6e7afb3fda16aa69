package database

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Status 线程安全地记录Redis的可用状态，由健康检查器写入，由缓存读取。
type Status struct {
	mu             sync.RWMutex
	isRedisHealthy bool
	lastKnownRunID string
	log            logrus.FieldLogger
}

// NewStatus 创建一个默认健康的状态对象
func NewStatus(log logrus.FieldLogger) *Status {
	return &Status{isRedisHealthy: true, log: log}
}

// IsRedisHealthy 返回当前Redis的健康状态。nil 接收者视为不可用。
func (s *Status) IsRedisHealthy() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRedisHealthy
}

// Update 更新健康状态，返回本次是否检测到了Redis重启（run_id变化）。
func (s *Status) Update(isHealthy bool, runID string) (restarted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 只有当状态发生变化时才打印日志
	if s.isRedisHealthy != isHealthy {
		s.isRedisHealthy = isHealthy
		if isHealthy {
			s.log.Info("健康检查: Redis服务状态已更新为 [可用]")
		} else {
			s.log.Warn("健康检查: Redis服务状态已更新为 [不可用]")
		}
	}

	if !isHealthy {
		return false
	}
	restarted = s.lastKnownRunID != "" && s.lastKnownRunID != runID
	s.lastKnownRunID = runID
	return restarted
}

// LastKnownRunID 返回最近一次健康时观察到的run_id
func (s *Status) LastKnownRunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastKnownRunID
}
