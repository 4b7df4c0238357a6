// Package controlplane 提供运行状态的 HTTP 只读接口。
// 决策 goroutine 周期性地把状态镜像推进来，HTTP 侧只读镜像，互不阻塞。
package controlplane

import (
	"sync"
	"time"

	"github.com/late-build/fathom/internal/domain"
)

// Status 引擎运行状态快照
type Status struct {
	Mode          string    `json:"mode"`
	StartedAt     time.Time `json:"startedAt"`
	UptimeSeconds float64   `json:"uptimeSeconds"`
	OpenPositions int       `json:"openPositions"`
	DailyPnLUSD   float64   `json:"dailyPnlUsd"`
	Halted        bool      `json:"halted"`
}

// Tracker 状态镜像
// 写入方是引擎的决策路径（心跳驱动），读取方是 HTTP handler
type Tracker struct {
	mu        sync.RWMutex
	mode      string
	startedAt time.Time
	positions []domain.PositionSnapshot
	dailyPnL  float64
	halted    bool
}

// NewTracker 创建状态镜像
func NewTracker(mode string) *Tracker {
	return &Tracker{mode: mode, startedAt: time.Now()}
}

// Update 刷新镜像（决策路径调用）
func (t *Tracker) Update(positions []domain.PositionSnapshot, dailyPnL float64, halted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions = positions
	t.dailyPnL = dailyPnL
	t.halted = halted
}

// Status 当前状态
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Status{
		Mode:          t.mode,
		StartedAt:     t.startedAt,
		UptimeSeconds: time.Since(t.startedAt).Seconds(),
		OpenPositions: len(t.positions),
		DailyPnLUSD:   t.dailyPnL,
		Halted:        t.halted,
	}
}

// Positions 当前仓位快照
func (t *Tracker) Positions() []domain.PositionSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.PositionSnapshot, len(t.positions))
	copy(out, t.positions)
	return out
}
