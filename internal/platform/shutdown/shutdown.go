package shutdown

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SlpAus/habit-tracker-backend/pkg/lifecycle"
)

const (
	defaultHTTPTimeout     = 15 * time.Second
	defaultGracefulTimeout = 30 * time.Second
	defaultForcefulTimeout = 1 * time.Second
)

type finalizer struct {
	name string
	fn   func() error
}

// Coordinator 负责编排应用程序的优雅停机流程。
// 它接收外部创建的生命周期管理器，并使用它们来协调停机。
type Coordinator struct {
	GracefulManager *lifecycle.Manager
	ForcefulManager *lifecycle.Manager

	HTTPTimeout     time.Duration
	GracefulTimeout time.Duration
	ForcefulTimeout time.Duration

	log        logrus.FieldLogger
	finalizers []finalizer
}

// NewCoordinator 创建一个新的停机协调器。
func NewCoordinator(gracefulMgr, forcefulMgr *lifecycle.Manager, log logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		GracefulManager: gracefulMgr,
		ForcefulManager: forcefulMgr,
		HTTPTimeout:     defaultHTTPTimeout,
		GracefulTimeout: defaultGracefulTimeout,
		ForcefulTimeout: defaultForcefulTimeout,
		log:             log.WithField("module", "shutdown"),
	}
}

// OnFinish 注册一个在所有后台服务退出后执行的收尾操作，按注册的逆序执行
func (c *Coordinator) OnFinish(name string, fn func() error) {
	c.finalizers = append(c.finalizers, finalizer{name: name, fn: fn})
}

// ListenForSignalsAndShutdown 阻塞直到收到 SIGINT/SIGTERM，然后执行停机流程。
func (c *Coordinator) ListenForSignalsAndShutdown(server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	c.log.WithField("signal", sig.String()).Info("收到关闭信号，开始优雅停机...")
	c.Shutdown(server)
}

// Shutdown 依次关闭HTTP服务器、后台服务和收尾操作
func (c *Coordinator) Shutdown(server *http.Server) {
	// 关闭HTTP服务器，允许正在进行的请求完成
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.HTTPTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			c.log.WithError(err).Error("HTTP服务器关闭错误")
		} else {
			c.log.Info("HTTP服务器已关闭")
		}
		shutdownCancel()
	}

	// --- 阶段一: 优雅停机 ---
	c.log.WithField("timeout", c.GracefulTimeout).Info("第一阶段停机：等待后台服务完成任务")
	c.GracefulManager.Shutdown()

	remaining := c.GracefulManager.WaitWithTimeout(c.GracefulTimeout)
	if len(remaining) == 0 {
		c.log.Info("所有服务已在第一阶段优雅关闭")
	} else {
		// --- 阶段二: 强制停机 ---
		c.log.WithField("remaining", remaining).Warn("第一阶段超时，发送强制停机信号")
		c.ForcefulManager.Shutdown()
		if stuck := c.ForcefulManager.WaitWithTimeout(c.ForcefulTimeout); len(stuck) > 0 {
			c.log.WithField("stuck", stuck).Error("部分服务未能退出")
		}
	}

	// --- 最终步骤 ---
	for i := len(c.finalizers) - 1; i >= 0; i-- {
		f := c.finalizers[i]
		if err := f.fn(); err != nil {
			c.log.WithError(err).WithField("step", f.name).Error("收尾操作失败")
		}
	}

	c.log.Info("优雅停机完成")
}
