// Package dataset 实现毕业历史数据集。
// 采集器把毕业记录写进本地 Badger 库，回测从这里读事件流；
// JSON 导入导出兼容采集脚本的数组格式。
package dataset

import (
	"sort"
	"time"

	"github.com/late-build/fathom/internal/domain"
)

// PricePoint 毕业后价格轨迹上的一个采样点
type PricePoint struct {
	Timestamp int64   `json:"timestamp"` // unix 秒
	Price     float64 `json:"price"`
	Volume5m  float64 `json:"volume_5m"`
}

// Record 一个毕业 token 的完整历史记录
type Record struct {
	Mint            string       `json:"mint"`
	Symbol          string       `json:"symbol"`
	Name            string       `json:"name,omitempty"`
	GraduatedAt     int64        `json:"graduated_at"` // unix 秒
	InitialPriceUSD float64      `json:"initial_price_usd"`
	SolRaised       float64      `json:"sol_raised"`
	HolderCount     int          `json:"holder_count"`
	Creator         string       `json:"creator"`
	PoolAddress     string       `json:"pool_address"`
	PoolType        string       `json:"pool_type"`
	MarketCapAtGrad float64      `json:"market_cap_at_grad,omitempty"`
	LiquidityUSD    float64      `json:"liquidity_usd,omitempty"`
	FDV             float64      `json:"fdv,omitempty"`
	Buys1h          int          `json:"buys_1h,omitempty"`
	Sells1h         int          `json:"sells_1h,omitempty"`
	PriceChange5m   float64      `json:"price_change_5m,omitempty"`
	PriceChange1h   float64      `json:"price_change_1h,omitempty"`
	Top10Pct        float64      `json:"top10_concentration,omitempty"`
	DevHoldingsPct  float64      `json:"dev_holdings_pct,omitempty"`
	SniperCount     int          `json:"sniper_count,omitempty"`
	Txns24h         int          `json:"txns_24h,omitempty"`
	PriceHistory    []PricePoint `json:"price_history"`
	DevSold         bool         `json:"dev_sold,omitempty"`
	DevSellPct      float64      `json:"dev_sell_pct,omitempty"`
	DevSellAt       int64        `json:"dev_sell_at,omitempty"` // unix 秒；采集器未定位到时为 0
}

// Events 把一条记录展开成可回放的事件序列
// 毕业事件在前，价格轨迹按时间升序；dev 卖出只在定位到时刻时生成
func (r *Record) Events() []domain.Event {
	gradNano := r.GraduatedAt * int64(time.Second)
	out := make([]domain.Event, 0, len(r.PriceHistory)+2)

	out = append(out, domain.Graduation{
		EventMeta:          domain.NewMeta(gradNano, "dataset"),
		Mint:               r.Mint,
		Symbol:             r.Symbol,
		PoolAddress:        r.PoolAddress,
		PoolType:           r.PoolType,
		SolRaised:          r.SolRaised,
		HolderCount:        r.HolderCount,
		Creator:            r.Creator,
		InitialPriceUSD:    r.InitialPriceUSD,
		MarketCapUSD:       r.MarketCapAtGrad,
		LiquidityUSD:       r.LiquidityUSD,
		Buys1h:             r.Buys1h,
		Sells1h:            r.Sells1h,
		PriceChange5m:      r.PriceChange5m,
		PriceChange1h:      r.PriceChange1h,
		Top10Concentration: r.Top10Pct,
		DevHoldingsPct:     r.DevHoldingsPct,
		SniperCount:        r.SniperCount,
		Txns24h:            r.Txns24h,
	})

	history := make([]PricePoint, len(r.PriceHistory))
	copy(history, r.PriceHistory)
	sort.SliceStable(history, func(i, j int) bool { return history[i].Timestamp < history[j].Timestamp })

	for _, pt := range history {
		if pt.Price <= 0 {
			continue
		}
		out = append(out, domain.PriceUpdate{
			EventMeta:    domain.NewMeta(pt.Timestamp*int64(time.Second), "dataset"),
			Mint:         r.Mint,
			Symbol:       r.Symbol,
			PriceUSD:     pt.Price,
			Volume24h:    pt.Volume5m * 288,
			LiquidityUSD: r.LiquidityUSD,
		})
	}

	if r.DevSold && r.DevSellAt > 0 {
		out = append(out, domain.DevActivity{
			EventMeta: domain.NewMeta(r.DevSellAt*int64(time.Second), "dataset"),
			Mint:      r.Mint,
			Creator:   r.Creator,
			Action:    domain.DevActionSell,
			AmountPct: r.DevSellPct,
		})
	}
	return out
}
