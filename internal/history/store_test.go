package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/late-build/fathom/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("打开历史库失败: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTrade(id string, pnl float64, exitTime time.Time) domain.ClosedTrade {
	return domain.ClosedTrade{
		PositionID: id,
		Strategy:   "graduation_sniper",
		Mint:       "mint-" + id,
		Symbol:     "TST",
		EntryPrice: 0.001,
		ExitPrice:  0.0015,
		Qty:        50000,
		SizeUSD:    50,
		PnLUSD:     decimal.NewFromFloat(pnl),
		FeeUSD:     decimal.NewFromFloat(0.3),
		ExitReason: domain.ExitTakeProfit,
		EntryTime:  exitTime.Add(-5 * time.Minute),
		ExitTime:   exitTime,
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, pnl := range []float64{10, -5, 25} {
		tr := sampleTrade(string(rune('a'+i)), pnl, base.Add(time.Duration(i)*time.Minute))
		if err := s.Record(tr); err != nil {
			t.Fatalf("写入失败: %v", err)
		}
	}

	recent, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent 失败: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("应返回 2 笔，实际 %d", len(recent))
	}
	// 倒序：最新的在前
	if recent[0].PnLUSD.StringFixed(2) != "25.00" {
		t.Errorf("最近一笔盈亏应为 25.00，实际 %s", recent[0].PnLUSD)
	}
	if recent[0].ExitReason != domain.ExitTakeProfit {
		t.Errorf("出场原因丢失: %s", recent[0].ExitReason)
	}
	if !recent[0].ExitTime.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("平仓时间往返不一致: %v", recent[0].ExitTime)
	}
}

func TestDailyPnL(t *testing.T) {
	s := openTestStore(t)
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_ = s.Record(sampleTrade("a", 10, day.Add(1*time.Hour)))
	_ = s.Record(sampleTrade("b", -4.5, day.Add(23*time.Hour)))
	// 次日的交易不应计入
	_ = s.Record(sampleTrade("c", 100, day.Add(25*time.Hour)))

	pnl, err := s.DailyPnLUSD(day)
	if err != nil {
		t.Fatalf("DailyPnLUSD 失败: %v", err)
	}
	if pnl.StringFixed(2) != "5.50" {
		t.Errorf("当日盈亏应为 5.50，实际 %s", pnl)
	}
}

func TestStatsByStrategy(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	win := sampleTrade("a", 10, base)
	loss := sampleTrade("b", -3, base.Add(time.Minute))
	other := sampleTrade("c", 7, base.Add(2*time.Minute))
	other.Strategy = "log_only"
	for _, tr := range []domain.ClosedTrade{win, loss, other} {
		if err := s.Record(tr); err != nil {
			t.Fatalf("写入失败: %v", err)
		}
	}

	stats, err := s.StatsByStrategy()
	if err != nil {
		t.Fatalf("StatsByStrategy 失败: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("应有 2 个策略的统计，实际 %d", len(stats))
	}
	for _, st := range stats {
		switch st.Strategy {
		case "graduation_sniper":
			if st.Trades != 2 || st.Wins != 1 || st.PnLUSD.StringFixed(2) != "7.00" {
				t.Errorf("sniper 统计错误: %+v", st)
			}
		case "log_only":
			if st.Trades != 1 || st.Wins != 1 {
				t.Errorf("log_only 统计错误: %+v", st)
			}
		}
	}
}
