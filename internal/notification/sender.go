package notification

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Message 是一条推送通知
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// BatchResult 是一次批量发送的结果。InvalidTokens 是推送服务明确拒绝、应当删除的令牌。
type BatchResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

// Sender 把同一条消息发送到多个设备
type Sender interface {
	SendMulticast(ctx context.Context, tokens []string, msg Message) (BatchResult, error)
}

// LogSender 只把消息写入日志，在没有配置推送服务时使用
type LogSender struct {
	log logrus.FieldLogger
}

// NewLogSender 创建日志发送器
func NewLogSender(log logrus.FieldLogger) *LogSender {
	return &LogSender{log: log.WithField("module", "push")}
}

// SendMulticast 实现 Sender
func (s *LogSender) SendMulticast(_ context.Context, tokens []string, msg Message) (BatchResult, error) {
	s.log.WithFields(logrus.Fields{
		"tokens": len(tokens),
		"title":  msg.Title,
	}).Info(msg.Body)
	return BatchResult{SuccessCount: len(tokens)}, nil
}
