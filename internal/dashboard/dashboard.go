// Package dashboard 实现终端实时看板。
// 决策路径把快照推进 channel，Bubble Tea 模型消费并渲染，
// 看板崩溃或退出不影响引擎本体。
package dashboard

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/domain"
)

var dashLog = logrus.WithField("component", "dashboard")

// Snapshot 看板快照数据
type Snapshot struct {
	Mode        string
	StartedAt   time.Time
	BalanceUSD  float64
	EquityUSD   float64
	DailyPnLUSD float64
	Halted      bool

	Positions []domain.PositionSnapshot
	Trades    []domain.ClosedTrade // 最近的平仓记录，新的在前
}

// Dashboard 终端看板
type Dashboard struct {
	updateCh chan *Snapshot

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// New 创建看板
func New() *Dashboard {
	return &Dashboard{
		// 缓冲 1：推送永不阻塞决策路径，渲染慢就丢旧帧
		updateCh: make(chan *Snapshot, 1),
		done:     make(chan struct{}),
	}
}

// Start 启动看板渲染 goroutine
func (d *Dashboard) Start(ctx context.Context) {
	m := newModel(d.updateCh)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	d.mu.Lock()
	d.program = p
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		if _, err := p.Run(); err != nil {
			dashLog.Errorf("dashboard exited: %v", err)
		}
	}()
}

// Push 推送最新快照；看板未消费完上一帧时用新帧覆盖
func (d *Dashboard) Push(snap *Snapshot) {
	select {
	case d.updateCh <- snap:
	default:
		select {
		case <-d.updateCh:
		default:
		}
		select {
		case d.updateCh <- snap:
		default:
		}
	}
}

// Stop 关闭看板并等待渲染 goroutine 退出
func (d *Dashboard) Stop(ctx context.Context) {
	d.mu.Lock()
	p := d.program
	d.mu.Unlock()
	if p == nil {
		return
	}
	p.Quit()
	select {
	case <-d.done:
	case <-ctx.Done():
	}
}

// Done 看板退出后关闭（用户按 q 时主程序据此收尾）
func (d *Dashboard) Done() <-chan struct{} { return d.done }
