package lifecycle

import (
	"context"
	"time"
)

// Handle 是分发给每个后台服务的生命周期控制器。
// 它由 Manager 创建，服务退出前必须调用一次 Close。
type Handle struct {
	name  string
	ctx   context.Context
	close func()
}

// Name 返回服务注册时使用的名字
func (h *Handle) Name() string { return h.name }

// Ctx 返回随停机信号取消的上下文
func (h *Handle) Ctx() context.Context { return h.ctx }

// Done 返回一个channel，当生命周期管理器发出停机信号时，该channel会关闭。
func (h *Handle) Done() <-chan struct{} { return h.ctx.Done() }

// Err 在Done()的channel关闭后，返回上下文被取消的原因。
func (h *Handle) Err() error { return h.ctx.Err() }

// Close 通知Manager该服务已经退出。重复调用是安全的。
func (h *Handle) Close() { h.close() }

// Sleep 暂停指定的时长，但如果收到停机信号，则会提前返回错误。
func (h *Handle) Sleep(duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-h.Done():
		return h.Err()
	case <-timer.C:
		return nil
	}
}
