package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClosedTrade 已完成的一笔完整交易（开仓到平仓）
// 仓位进入 closed 后由仓位管理器生成，写入历史记录
type ClosedTrade struct {
	PositionID   string          `json:"positionId"`
	Strategy     string          `json:"strategy"`
	Mint         string          `json:"mint"`
	Symbol       string          `json:"symbol"`
	EntryPrice   float64         `json:"entryPrice"`
	ExitPrice    float64         `json:"exitPrice"`
	Qty          float64         `json:"qty"`
	SizeUSD      float64         `json:"sizeUsd"`
	PnLUSD       decimal.Decimal `json:"pnlUsd"`
	FeeUSD       decimal.Decimal `json:"feeUsd"`
	ExitReason   ExitReason      `json:"exitReason"`
	EntryTime    time.Time       `json:"entryTime"`
	ExitTime     time.Time       `json:"exitTime"`
	HoldDuration time.Duration   `json:"holdDuration"`
}

// NewClosedTrade 从已关闭的仓位和平仓结果构造交易记录
// 盈亏用 decimal 计算，避免 float 累加漂移污染统计
func NewClosedTrade(p *Position, exit *OrderResult) ClosedTrade {
	qty := decimal.NewFromFloat(p.Qty)
	entry := decimal.NewFromFloat(p.EntryPriceUSD)
	exitPx := decimal.NewFromFloat(exit.AvgPriceUSD)
	fee := decimal.NewFromFloat(exit.FeeUSD)
	pnl := exitPx.Sub(entry).Mul(qty).Sub(fee)

	exitTime := time.Unix(0, exit.TsNano)
	return ClosedTrade{
		PositionID:   p.ID,
		Strategy:     p.Strategy,
		Mint:         p.Mint,
		Symbol:       p.Symbol,
		EntryPrice:   p.EntryPriceUSD,
		ExitPrice:    exit.AvgPriceUSD,
		Qty:          p.Qty,
		SizeUSD:      p.SizeUSD,
		PnLUSD:       pnl,
		FeeUSD:       fee,
		ExitReason:   p.ExitReason,
		EntryTime:    p.EntryTime,
		ExitTime:     exitTime,
		HoldDuration: exitTime.Sub(p.EntryTime),
	}
}

// IsWin 该笔交易是否盈利
func (t ClosedTrade) IsWin() bool {
	return t.PnLUSD.IsPositive()
}
