package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/late-build/fathom/pkg/logger"
)

// Handler 关闭回调
type Handler func(ctx context.Context) error

type entry struct {
	name string
	fn   Handler
}

// Manager 优雅关闭管理器
// 回调按注册的逆序依次执行（后启动的先关），
// 单个回调超时或报错不阻断后面的回调
type Manager struct {
	mu      sync.Mutex
	entries []entry
}

// NewManager 创建关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册一个具名关闭回调
func (m *Manager) OnShutdown(name string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry{name: name, fn: fn})
}

// Shutdown 逆序执行全部关闭回调（阻塞）
// ctx 应带总超时；超时后剩余回调被跳过
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	entries := make([]entry, len(m.entries))
	copy(entries, m.entries)
	m.mu.Unlock()

	if len(entries) == 0 {
		return
	}
	logger.Infof("开始优雅关闭，共 %d 个回调", len(entries))

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if ctx.Err() != nil {
			logger.Warnf("关闭超时，跳过剩余 %d 个回调", i+1)
			return
		}

		start := time.Now()
		done := make(chan error, 1)
		go func() { done <- e.fn(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				logger.Warnf("关闭回调 %s 失败: %v", e.name, err)
			} else {
				logger.Infof("关闭回调 %s 完成 (%v)", e.name, time.Since(start).Truncate(time.Millisecond))
			}
		case <-ctx.Done():
			logger.Warnf("关闭回调 %s 超时，继续执行剩余回调", e.name)
		}
	}
	logger.Info("优雅关闭完成")
}
