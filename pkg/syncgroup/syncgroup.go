// Package syncgroup 包装 sync.WaitGroup，统一管理一组 goroutine 的生命周期
package syncgroup

import (
	"sync"
)

// SyncGroup 管理一组 goroutine：装配阶段用 Add/Run 批量登记并启动，
// 运行中途用 Go 补启（比如断线重连后重建读循环）。
// Wait 会等到所有已启动的 goroutine 退出。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []func()
}

// NewSyncGroup 创建空组
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 登记一个函数，等 Run 时统一启动
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.pending = append(g.pending, fn)
	g.mu.Unlock()
}

// Run 启动所有已登记的函数并清空登记列表
func (g *SyncGroup) Run() {
	g.mu.Lock()
	fns := g.pending
	g.pending = nil
	g.mu.Unlock()

	for _, fn := range fns {
		g.Go(fn)
	}
}

// Go 立即在新 goroutine 上运行 fn 并纳入等待
// 组内还有 goroutine 在运行时也可以调用
func (g *SyncGroup) Go(fn func()) {
	if fn == nil {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// Wait 等待全部已启动的 goroutine 退出
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

// WaitAndClear 等待全部 goroutine 退出并丢弃尚未启动的登记
func (g *SyncGroup) WaitAndClear() {
	g.wg.Wait()

	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
}
