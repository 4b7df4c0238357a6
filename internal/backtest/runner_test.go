package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/late-build/fathom/internal/dataset"
	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/risk"
	"github.com/late-build/fathom/internal/strategy"

	_ "github.com/late-build/fathom/internal/strategies/sniper"
)

// 评分拉满的毕业记录模板（强买压、低集中度、流动性充裕）
func strongRecord(mint string, graduatedAt int64) *dataset.Record {
	return &dataset.Record{
		Mint:            mint,
		Symbol:          "TST",
		GraduatedAt:     graduatedAt,
		InitialPriceUSD: 0.001,
		SolRaised:       85,
		Creator:         "dev-" + mint,
		MarketCapAtGrad: 100_000,
		LiquidityUSD:    20_000,
		Buys1h:          70,
		Sells1h:         30,
		PriceChange5m:   20,
		PriceChange1h:   60,
		Top10Pct:        25,
		SniperCount:     3,
		HolderCount:     600,
		Txns24h:         6000,
	}
}

func testConfig() Config {
	return Config{
		InitialBalanceUSD: 1000,
		SlippageBps:       0,
		FeeBps:            0,
		Risk:              risk.Limits{MaxPositions: 5, MaxOrderUSD: 250},
	}
}

func buildSniper(t *testing.T) strategy.Strategy {
	t.Helper()
	s, err := strategy.Build("graduation_sniper", map[string]any{
		"basePositionUsd": 50.0,
		"takeProfitPct":   0.50,
		"stopLossPct":     0.20,
	})
	require.NoError(t, err, "构建策略失败")
	return s
}

func TestBacktestWinAndLoss(t *testing.T) {
	win := strongRecord("mintwin", 1000)
	win.PriceHistory = []dataset.PricePoint{
		{Timestamp: 1010, Price: 0.0011},
		{Timestamp: 1020, Price: 0.0016}, // +60%，触发止盈
	}
	loss := strongRecord("mintloss", 2000)
	loss.PriceHistory = []dataset.PricePoint{
		{Timestamp: 2010, Price: 0.0009},
		{Timestamp: 2020, Price: 0.0007}, // -30%，触发止损
	}

	runner := NewRunner(testConfig(), buildSniper(t), []*dataset.Record{win, loss})
	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, result.Graduations)
	require.Equal(t, 2, result.TradesClosed, "两笔入场都应平仓")
	require.Equal(t, 1, result.Wins)
	require.Equal(t, 1, result.Losses)
	require.Equal(t, 1, result.ExitCounts[domain.ExitTakeProfit], "盈利单应按止盈出场")
	require.Equal(t, 1, result.ExitCounts[domain.ExitStopLoss], "亏损单应按止损出场")

	// 无滑点无手续费：(0.0016-0.001)*50000 - (0.001-0.0007)*50000 = 30 - 15
	require.Equal(t, "15.00", result.TotalPnLUSD.StringFixed(2))
	require.InDelta(t, 1015.0, result.FinalBalanceUSD, 1e-6)
	require.InDelta(t, 0.015, result.ROI(), 1e-6)
}

func TestBacktestDevSellExit(t *testing.T) {
	rec := strongRecord("mintdev", 1000)
	rec.PriceHistory = []dataset.PricePoint{
		{Timestamp: 1010, Price: 0.0011},
		{Timestamp: 1030, Price: 0.0010},
	}
	rec.DevSold = true
	rec.DevSellPct = 80
	rec.DevSellAt = 1020 // 价格还没砸之前 dev 先跑

	runner := NewRunner(testConfig(), buildSniper(t), []*dataset.Record{rec})
	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, result.TradesClosed)
	require.Equal(t, 1, result.ExitCounts[domain.ExitDevSell], "应在 dev 卖出时立即出场")
}

func TestBacktestLowScoreFiltered(t *testing.T) {
	rec := strongRecord("mintbad", 1000)
	// 砸掉评分因子：重卖压、高集中度
	rec.Buys1h, rec.Sells1h = 20, 80
	rec.Top10Pct = 85
	rec.PriceChange5m = -20
	rec.PriceHistory = []dataset.PricePoint{{Timestamp: 1010, Price: 0.002}}

	runner := NewRunner(testConfig(), buildSniper(t), []*dataset.Record{rec})
	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 0, result.TradesClosed, "低分毕业不应入场")
	require.Equal(t, 1, result.Graduations)
}

func TestBacktestDeterministic(t *testing.T) {
	records := []*dataset.Record{}
	win := strongRecord("mint1", 1000)
	win.PriceHistory = []dataset.PricePoint{
		{Timestamp: 1010, Price: 0.0016},
		{Timestamp: 1020, Price: 0.0018},
	}
	loss := strongRecord("mint2", 1500)
	loss.PriceHistory = []dataset.PricePoint{
		{Timestamp: 1510, Price: 0.0007},
	}
	records = append(records, win, loss)

	run := func() *Result {
		runner := NewRunner(testConfig(), buildSniper(t), records)
		result, err := runner.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	a, b := run(), run()
	require.Equal(t, a.TradesClosed, b.TradesClosed, "同一份数据集应产生相同的交易数")
	require.Equal(t, a.TotalPnLUSD.String(), b.TotalPnLUSD.String(), "同一份数据集应产生相同的盈亏")
	require.Equal(t, a.ExitCounts, b.ExitCounts)
	require.Equal(t, a.FinalBalanceUSD, b.FinalBalanceUSD)
}
