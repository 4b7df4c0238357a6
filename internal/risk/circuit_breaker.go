package risk

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ErrCircuitBreakerOpen 表示断路器已打开，禁止继续交易。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakerConfig 断路器配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveErrors 连续执行失败上限（买单被拒/成交失败等）。
	MaxConsecutiveErrors int64 `yaml:"maxConsecutiveErrors"`

	// DailyLossLimitUSD 当日最大亏损（美元）。达到或超过时立即熔断。
	DailyLossLimitUSD float64 `yaml:"dailyLossLimitUsd"`
}

// CircuitBreaker 高频快路径使用原子变量，低频配置更新使用原子值。
// 内部以"分"为单位累计亏损，避免 float 的原子操作。
//
// 熔断只挡新开仓：平仓卖单永远放行，由风控管理器保证。
// 当日 PnL 由仓位关闭回调处调用 AddPnLUSD() 更新。
type CircuitBreaker struct {
	halted atomic.Bool

	consecutiveErrors atomic.Int64
	dailyPnlCents     atomic.Int64
	dayKey            atomic.Int64 // YYYYMMDD

	// 配置（用 atomic.Value 也可以；这里用原子字段，保持简单）
	maxConsecutiveErrors atomic.Int64
	dailyLossLimitCents  atomic.Int64

	// 时间源，回测时绑定重放时钟，换日跟着重放时间走
	now func() time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{now: time.Now}
	cb.SetConfig(cfg)
	return cb
}

// BindClock 替换断路器的时间源（装配阶段调用一次）。
func (cb *CircuitBreaker) BindClock(now func() time.Time) {
	if cb == nil || now == nil {
		return
	}
	cb.now = now
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveErrors.Store(cfg.MaxConsecutiveErrors)
	cb.dailyLossLimitCents.Store(int64(cfg.DailyLossLimitUSD * 100))
}

// Halt 手动熔断（如人工介入或检测到严重异常）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
}

// Resume 手动恢复（会同时清空连续错误计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveErrors.Store(0)
}

// AllowTrading 快路径检查是否允许交易。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}

	if cb.halted.Load() {
		return ErrCircuitBreakerOpen
	}

	// 连续错误熔断
	maxErr := cb.maxConsecutiveErrors.Load()
	if maxErr > 0 && cb.consecutiveErrors.Load() >= maxErr {
		cb.halted.Store(true)
		return ErrCircuitBreakerOpen
	}

	// 当日亏损熔断（若启用）
	limit := cb.dailyLossLimitCents.Load()
	if limit > 0 {
		cb.rollDayIfNeeded()
		pnl := cb.dailyPnlCents.Load()
		if pnl <= -limit {
			cb.halted.Store(true)
			return ErrCircuitBreakerOpen
		}
	}

	return nil
}

// OnSuccess 在一次关键执行成功后调用，用于清空连续错误计数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// OnError 在一次关键执行失败后调用，用于累计连续错误计数。
func (cb *CircuitBreaker) OnError() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Add(1)
}

// AddPnLUSD 增量更新当日已实现盈亏（美元）。
// 负数表示亏损，正数表示盈利。
func (cb *CircuitBreaker) AddPnLUSD(pnlUSD float64) {
	if cb == nil {
		return
	}
	cb.rollDayIfNeeded()
	cb.dailyPnlCents.Add(int64(pnlUSD * 100))
}

// DailyPnLUSD 返回当日累计已实现盈亏（美元）。
func (cb *CircuitBreaker) DailyPnLUSD() float64 {
	if cb == nil {
		return 0
	}
	cb.rollDayIfNeeded()
	return float64(cb.dailyPnlCents.Load()) / 100
}

// IsHalted 返回当前是否处于熔断状态。
func (cb *CircuitBreaker) IsHalted() bool {
	return cb != nil && cb.halted.Load()
}

func (cb *CircuitBreaker) rollDayIfNeeded() {
	// YYYYMMDD（本地时间即可；风控用途不要求跨时区精确）
	now := cb.now()
	key := int64(now.Year()*10000 + int(now.Month())*100 + now.Day())
	prev := cb.dayKey.Load()
	if prev == key {
		return
	}
	// 尝试切换 dayKey；成功者负责清零当日 PnL
	if cb.dayKey.CompareAndSwap(prev, key) {
		cb.dailyPnlCents.Store(0)
	}
}
