package sniper

import (
	"fmt"

	"github.com/late-build/fathom/internal/domain"
)

// estimatedSupply 市值缺失时按 mint 总供给估算的兜底值
const estimatedSupply = 1e9

// Breakdown 单次毕业评分的分项明细，0-100 封顶
// 分项保留下来是为了日志和回测分析，决策只看 Total
type Breakdown struct {
	Momentum  int
	Quality   int
	Liquidity int
	Activity  int
	Total     int
	Reasons   []string
}

// TopReasons 返回前 n 条评分理由，拼成日志友好的短串
func (b Breakdown) TopReasons(n int) string {
	if len(b.Reasons) == 0 {
		return "clean"
	}
	if n > len(b.Reasons) {
		n = len(b.Reasons)
	}
	out := b.Reasons[0]
	for _, r := range b.Reasons[1:n] {
		out += ", " + r
	}
	return out
}

// Score 对毕业事件做多因子评分
//
// 四个维度：买卖动量、链上持仓质量、流动性健康度、交易活跃度。
// 以 50 为基准分累加各维度，最终裁剪到 [0, 100]，越高越值得入场。
func Score(ev domain.Graduation) Breakdown {
	var b Breakdown

	// 动量：买卖比 + 5m/1h 价格变化
	if total := ev.Buys1h + ev.Sells1h; total > 0 {
		buyRatio := float64(ev.Buys1h) / float64(total)
		switch {
		case buyRatio > 0.65:
			b.Momentum += 15
			b.Reasons = append(b.Reasons, fmt.Sprintf("strong buying %.0f%%", buyRatio*100))
		case buyRatio > 0.55:
			b.Momentum += 8
		case buyRatio < 0.35:
			b.Momentum -= 15
			b.Reasons = append(b.Reasons, fmt.Sprintf("heavy selling %.0f%%", buyRatio*100))
		case buyRatio < 0.45:
			b.Momentum -= 5
		}
	}
	switch {
	case ev.PriceChange5m > 15:
		b.Momentum += 10
		b.Reasons = append(b.Reasons, fmt.Sprintf("5m pump +%.0f%%", ev.PriceChange5m))
	case ev.PriceChange5m > 0:
		b.Momentum += 3
	case ev.PriceChange5m < -15:
		b.Momentum -= 10
		b.Reasons = append(b.Reasons, fmt.Sprintf("5m dump %.0f%%", ev.PriceChange5m))
	case ev.PriceChange5m < 0:
		b.Momentum -= 3
	}
	if ev.PriceChange1h > 50 {
		b.Momentum += 5
	} else if ev.PriceChange1h < -30 {
		b.Momentum -= 10
		b.Reasons = append(b.Reasons, fmt.Sprintf("1h down %.0f%%", ev.PriceChange1h))
	}

	// 链上质量：top10 集中度、dev 持仓、狙击手数量、持有人数
	switch {
	case ev.Top10Concentration > 80:
		b.Quality -= 25
		b.Reasons = append(b.Reasons, fmt.Sprintf("top10 hold %.0f%%", ev.Top10Concentration))
	case ev.Top10Concentration > 50:
		b.Quality -= 10
	case ev.Top10Concentration > 0 && ev.Top10Concentration < 30:
		b.Quality += 5
	}
	switch {
	case ev.DevHoldingsPct > 10:
		b.Quality -= 15
		b.Reasons = append(b.Reasons, fmt.Sprintf("dev holds %.1f%%", ev.DevHoldingsPct))
	case ev.DevHoldingsPct > 5:
		b.Quality -= 5
	case ev.DevHoldingsPct == 0:
		b.Quality += 5
	}
	switch {
	case ev.SniperCount > 50:
		b.Quality -= 10
		b.Reasons = append(b.Reasons, fmt.Sprintf("%d snipers", ev.SniperCount))
	case ev.SniperCount > 20:
		b.Quality -= 5
	case ev.SniperCount < 5:
		b.Quality += 3
	}
	if ev.HolderCount > 500 {
		b.Quality += 5
	} else if ev.HolderCount > 0 && ev.HolderCount < 50 {
		b.Quality -= 5
	}

	// 流动性健康度看 mcap/liq 比值而不是绝对市值
	mcap := ev.MarketCapUSD
	if mcap == 0 {
		mcap = ev.InitialPriceUSD * estimatedSupply
	}
	liq := ev.LiquidityUSD
	if liq > 0 {
		ratio := mcap / liq
		switch {
		case ratio > 200:
			b.Liquidity -= 25
			b.Reasons = append(b.Reasons, fmt.Sprintf("mcap/liq %.0f:1 (rug risk)", ratio))
		case ratio > 100:
			b.Liquidity -= 15
		case ratio > 50:
			b.Liquidity -= 5
		case ratio < 10:
			b.Liquidity += 5
		}
	} else {
		b.Liquidity -= 15
	}
	if liq > 0 && liq < 3000 {
		b.Liquidity -= 10
		b.Reasons = append(b.Reasons, fmt.Sprintf("liq $%.0f thin", liq))
	} else if liq > 50000 {
		b.Liquidity += 5
	}

	// 活跃度
	switch {
	case ev.Txns24h > 10000:
		b.Activity += 10
	case ev.Txns24h > 5000:
		b.Activity += 5
	case ev.Txns24h > 1000:
		b.Activity += 2
	case ev.Txns24h > 0 && ev.Txns24h < 200:
		b.Activity -= 10
		b.Reasons = append(b.Reasons, fmt.Sprintf("low txns (%d)", ev.Txns24h))
	}

	raw := 50 + b.Momentum + b.Quality + b.Liquidity + b.Activity
	if raw < 0 {
		raw = 0
	} else if raw > 100 {
		raw = 100
	}
	b.Total = raw
	return b
}
