package domain

import (
	"time"
)

// PositionState 仓位生命周期状态
type PositionState string

const (
	PositionOpening  PositionState = "opening"  // 买单已提交，等待成交确认
	PositionOpen     PositionState = "open"     // 买单成交，持仓中
	PositionClosing  PositionState = "closing"  // 卖单已提交，等待成交确认
	PositionClosed   PositionState = "closed"   // 卖单成交，已关闭
	PositionRejected PositionState = "rejected" // 买单未成交（终态）
)

// ExitReason 出场触发器名
type ExitReason string

const (
	ExitDevSell      ExitReason = "dev_sell"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTimeout      ExitReason = "timeout"
	ExitManual       ExitReason = "manual" // 策略主动 Sell
)

// DefaultExitPriority 同时满足多个出场条件时的默认裁决顺序
// 顺序来自源系统的风险偏好，可通过仓位管理器配置覆盖
var DefaultExitPriority = []ExitReason{
	ExitDevSell,
	ExitStopLoss,
	ExitTrailingStop,
	ExitTakeProfit,
	ExitTimeout,
}

// Position 仓位领域模型
// 仓位由仓位管理器独占持有；策略只能读快照，不能直接修改
type Position struct {
	ID            string        // 仓位 ID（= 入场订单 ID）
	Strategy      string        // 归属策略
	Mint          string        // token mint
	Symbol        string        // 符号
	Creator       string        // 创建者钱包（dev-sell 出场依赖）
	State         PositionState // 当前状态
	EntryPriceUSD float64       // 入场均价
	EntryTime     time.Time     // 入场时间（买单成交确认时刻）
	SizeUSD       float64       // 入场金额
	Qty           float64       // 持有数量
	HighWaterUSD  float64       // 持仓期间最高价（trailing stop 用，单调不减）
	LastPriceUSD  float64       // 最近一次看到的价格
	ExitReason    ExitReason    // 出场原因（closed 前为空）
	DevSellSeen   bool          // 入场后是否观察到 dev 卖出
	SellRetried   bool          // 平仓卖单是否已重试过一次
	ExitOrderID   string        // 进行中的卖单 ID
}

// IsOpen 检查仓位是否持仓中（open 或 closing 都占用额度）
func (p *Position) IsOpen() bool {
	return p.State == PositionOpen || p.State == PositionClosing
}

// CountsAgainstLimit 是否计入策略的最大仓位数
// opening 也计入，避免并发入场穿透上限
func (p *Position) CountsAgainstLimit() bool {
	return p.State == PositionOpening || p.IsOpen()
}

// ObserveHighWater 用新价格更新最高水位，保证单调不减
func (p *Position) ObserveHighWater(priceUSD float64) {
	if priceUSD > p.HighWaterUSD {
		p.HighWaterUSD = priceUSD
	}
}

// PnLPct 相对入场价的浮动盈亏比例
func (p *Position) PnLPct(priceUSD float64) float64 {
	if p.EntryPriceUSD <= 0 {
		return 0
	}
	return (priceUSD - p.EntryPriceUSD) / p.EntryPriceUSD
}

// HoldDuration 持仓时长
func (p *Position) HoldDuration(now time.Time) time.Duration {
	if p.EntryTime.IsZero() {
		return 0
	}
	return now.Sub(p.EntryTime)
}

// Snapshot 生成只读快照给策略使用
func (p *Position) Snapshot() PositionSnapshot {
	return PositionSnapshot{
		ID:            p.ID,
		Strategy:      p.Strategy,
		Mint:          p.Mint,
		Symbol:        p.Symbol,
		State:         p.State,
		EntryPriceUSD: p.EntryPriceUSD,
		EntryTime:     p.EntryTime,
		SizeUSD:       p.SizeUSD,
		Qty:           p.Qty,
		HighWaterUSD:  p.HighWaterUSD,
		LastPriceUSD:  p.LastPriceUSD,
		ExitReason:    p.ExitReason,
	}
}

// PositionSnapshot 仓位只读快照
type PositionSnapshot struct {
	ID            string        `json:"id"`
	Strategy      string        `json:"strategy"`
	Mint          string        `json:"mint"`
	Symbol        string        `json:"symbol"`
	State         PositionState `json:"state"`
	EntryPriceUSD float64       `json:"entryPriceUsd"`
	EntryTime     time.Time     `json:"entryTime"`
	SizeUSD       float64       `json:"sizeUsd"`
	Qty           float64       `json:"qty"`
	HighWaterUSD  float64       `json:"highWaterUsd"`
	LastPriceUSD  float64       `json:"lastPriceUsd"`
	ExitReason    ExitReason    `json:"exitReason,omitempty"`
}
