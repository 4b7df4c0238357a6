// Package risk 是所有交易意图的守门人。
// 审批是当前持仓数和意图的纯函数，绝不改动仓位状态。
package risk

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/domain"
)

var riskLog = logrus.WithField("component", "risk")

// 审批拒绝原因
var (
	ErrMaxPositions  = errors.New("max open positions reached")
	ErrOrderTooLarge = errors.New("order size exceeds per-trade cap")
	ErrInvalidIntent = errors.New("invalid order intent")
)

// Limits 全局风控上限
type Limits struct {
	MaxPositions int     `yaml:"maxPositions"` // 单策略最大并发仓位数
	MaxOrderUSD  float64 `yaml:"maxOrderUsd"`  // 单笔买入金额上限
}

// DefaultLimits 未配置时的默认上限
func DefaultLimits() Limits {
	return Limits{MaxPositions: 5, MaxOrderUSD: 250}
}

// Manager 风控管理器
// sell 永远放行（减仓不该被任何限制挡住）；buy 依次过熔断器、仓位数、金额上限
type Manager struct {
	limits  Limits
	breaker *CircuitBreaker
}

// NewManager 创建风控管理器；breaker 可为 nil（关闭熔断）
func NewManager(limits Limits, breaker *CircuitBreaker) *Manager {
	if limits.MaxPositions <= 0 {
		limits.MaxPositions = DefaultLimits().MaxPositions
	}
	return &Manager{limits: limits, breaker: breaker}
}

// Limits 返回生效的上限
func (m *Manager) Limits() Limits { return m.limits }

// Breaker 返回熔断器（可能为 nil）
func (m *Manager) Breaker() *CircuitBreaker { return m.breaker }

// CheckBuy 审批一笔买入意图
// openCount 为该策略当前占用额度的仓位数（opening/open/closing）
func (m *Manager) CheckBuy(intent domain.OrderIntent, openCount int) error {
	if intent.Mint == "" || intent.AmountUSD <= 0 {
		return ErrInvalidIntent
	}
	if m.breaker != nil {
		if err := m.breaker.AllowTrading(); err != nil {
			riskLog.Warnf("buy %s rejected: %v", intent.Symbol, err)
			return err
		}
	}
	if openCount >= m.limits.MaxPositions {
		riskLog.Debugf("buy %s rejected: %d/%d positions", intent.Symbol, openCount, m.limits.MaxPositions)
		return ErrMaxPositions
	}
	if m.limits.MaxOrderUSD > 0 && intent.AmountUSD > m.limits.MaxOrderUSD {
		riskLog.Debugf("buy %s rejected: $%.2f > cap $%.2f", intent.Symbol, intent.AmountUSD, m.limits.MaxOrderUSD)
		return ErrOrderTooLarge
	}
	return nil
}
