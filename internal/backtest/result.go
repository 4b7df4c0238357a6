package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/late-build/fathom/internal/domain"
)

// Result 回测结果汇总
type Result struct {
	Graduations  int
	TradesClosed int
	Wins         int
	Losses       int
	ExitCounts   map[domain.ExitReason]int

	TotalPnLUSD   decimal.Decimal
	BestTradeUSD  decimal.Decimal
	WorstTradeUSD decimal.Decimal

	InitialBalanceUSD float64
	FinalBalanceUSD   float64
	MaxDrawdown       float64 // 峰值余额回撤比例 [0, 1]

	Duration time.Duration

	peakBalance float64
}

// NewResult 初始化结果
func NewResult(initialBalance float64) *Result {
	return &Result{
		ExitCounts:        make(map[domain.ExitReason]int),
		InitialBalanceUSD: initialBalance,
		peakBalance:       initialBalance,
	}
}

// observe 记录一笔已平仓交易并刷新回撤
func (r *Result) observe(trade domain.ClosedTrade, balanceUSD float64) {
	r.TradesClosed++
	r.ExitCounts[trade.ExitReason]++
	r.TotalPnLUSD = r.TotalPnLUSD.Add(trade.PnLUSD)

	if trade.IsWin() {
		r.Wins++
	} else {
		r.Losses++
	}
	if r.TradesClosed == 1 || trade.PnLUSD.GreaterThan(r.BestTradeUSD) {
		r.BestTradeUSD = trade.PnLUSD
	}
	if r.TradesClosed == 1 || trade.PnLUSD.LessThan(r.WorstTradeUSD) {
		r.WorstTradeUSD = trade.PnLUSD
	}

	if balanceUSD > r.peakBalance {
		r.peakBalance = balanceUSD
	}
	if r.peakBalance > 0 {
		dd := (r.peakBalance - balanceUSD) / r.peakBalance
		if dd > r.MaxDrawdown {
			r.MaxDrawdown = dd
		}
	}
}

// WinRate 胜率 [0, 1]
func (r *Result) WinRate() float64 {
	if r.TradesClosed == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.TradesClosed)
}

// ROI 总收益率
func (r *Result) ROI() float64 {
	if r.InitialBalanceUSD <= 0 {
		return 0
	}
	return (r.FinalBalanceUSD - r.InitialBalanceUSD) / r.InitialBalanceUSD
}

// Report 渲染文本报告
func (r *Result) Report() string {
	var b strings.Builder
	line := strings.Repeat("=", 50)

	fmt.Fprintln(&b, line)
	fmt.Fprintln(&b, "  BACKTEST RESULTS")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "  Graduations:    %d\n", r.Graduations)
	fmt.Fprintf(&b, "  Trades closed:  %d\n", r.TradesClosed)
	fmt.Fprintf(&b, "  Wins:           %d\n", r.Wins)
	fmt.Fprintf(&b, "  Losses:         %d\n", r.Losses)
	fmt.Fprintf(&b, "  Win rate:       %.1f%%\n", r.WinRate()*100)
	fmt.Fprintf(&b, "  P&L:            $%s\n", r.TotalPnLUSD.StringFixed(2))
	fmt.Fprintf(&b, "  ROI:            %+.1f%%\n", r.ROI()*100)
	fmt.Fprintf(&b, "  Best trade:     $%s\n", r.BestTradeUSD.StringFixed(2))
	fmt.Fprintf(&b, "  Worst trade:    $%s\n", r.WorstTradeUSD.StringFixed(2))
	fmt.Fprintf(&b, "  Max drawdown:   %.1f%%\n", r.MaxDrawdown*100)
	fmt.Fprintf(&b, "  Final balance:  $%.2f\n", r.FinalBalanceUSD)
	if len(r.ExitCounts) > 0 {
		fmt.Fprintln(&b, "  Exits by reason:")
		for _, reason := range domain.DefaultExitPriority {
			if n := r.ExitCounts[reason]; n > 0 {
				fmt.Fprintf(&b, "    %-14s %d\n", reason, n)
			}
		}
		if n := r.ExitCounts[domain.ExitManual]; n > 0 {
			fmt.Fprintf(&b, "    %-14s %d\n", domain.ExitManual, n)
		}
	}
	fmt.Fprintf(&b, "  Runtime:        %.2fs\n", r.Duration.Seconds())
	fmt.Fprintln(&b, line)
	return b.String()
}
