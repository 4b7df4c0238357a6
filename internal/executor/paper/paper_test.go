package paper

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/late-build/fathom/internal/domain"
)

type testClock struct{}

func (testClock) Now() time.Time { return time.Unix(1_700_000_000, 0) }

func (testClock) NowNano() int64 { return 1_700_000_000 * int64(time.Second) }

// resultCollector 同步收集执行结果
type resultCollector struct {
	results []domain.OrderResult
}

func (c *resultCollector) PublishResult(_ context.Context, result domain.OrderResult) {
	c.results = append(c.results, result)
}

func newTestPaper(balance float64) (*Paper, *resultCollector) {
	p := New(Config{
		InitialBalanceUSD: balance,
		SlippageBps:       100, // 1%
		FeeBps:            100, // 1%
		Sync:              true,
	}, testClock{})
	sink := &resultCollector{}
	p.Bind(sink)
	return p, sink
}

func buyOrder(mint string, amountUSD float64) *domain.Order {
	return domain.NewOrder(domain.OrderIntent{
		Strategy: "s1", Mint: mint, Side: domain.SideBuy, AmountUSD: amountUSD,
	}, time.Unix(1_700_000_000, 0))
}

func sellOrder(mint string, qty float64) *domain.Order {
	return domain.NewOrder(domain.OrderIntent{
		Strategy: "s1", Mint: mint, Side: domain.SideSell, Qty: qty,
	}, time.Unix(1_700_000_000, 0))
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuyAppliesSlippageAndFee(t *testing.T) {
	p, sink := newTestPaper(1000)
	p.TrackPrice(domain.PriceUpdate{Mint: "m1", PriceUSD: 2.0})

	if err := p.Submit(context.Background(), buyOrder("m1", 100)); err != nil {
		t.Fatalf("Submit 不应失败: %v", err)
	}
	r := sink.results[0]
	if r.Status != domain.OrderStatusFilled {
		t.Fatalf("应成交，实际 %s (%s)", r.Status, r.Reason)
	}
	// 成交价 = 2.0 * 1.01，数量 = 100 / 成交价，手续费 = 1
	if !almostEqual(r.AvgPriceUSD, 2.02) {
		t.Errorf("买入成交价应含滑点: %.6f", r.AvgPriceUSD)
	}
	if !almostEqual(r.FilledQty, 100/2.02) {
		t.Errorf("成交数量错误: %.6f", r.FilledQty)
	}
	if !almostEqual(r.FeeUSD, 1.0) {
		t.Errorf("手续费错误: %.6f", r.FeeUSD)
	}
	// 余额 = 1000 - 100 - 1
	if !almostEqual(p.BalanceUSD(), 899) {
		t.Errorf("余额错误: %.2f", p.BalanceUSD())
	}
}

func TestBuyRejectedWithoutPrice(t *testing.T) {
	p, sink := newTestPaper(1000)

	_ = p.Submit(context.Background(), buyOrder("unknown", 100))
	r := sink.results[0]
	if r.Status != domain.OrderStatusRejected {
		t.Fatalf("无观测价应拒单，实际 %s", r.Status)
	}
	if p.BalanceUSD() != 1000 {
		t.Errorf("拒单不应动余额")
	}
}

func TestBuyRejectedInsufficientBalance(t *testing.T) {
	p, sink := newTestPaper(50)
	p.TrackPrice(domain.PriceUpdate{Mint: "m1", PriceUSD: 1.0})

	_ = p.Submit(context.Background(), buyOrder("m1", 100))
	if sink.results[0].Status != domain.OrderStatusRejected {
		t.Fatalf("余额不足应拒单，实际 %s", sink.results[0].Status)
	}
}

func TestSellClampsToHoldings(t *testing.T) {
	p, sink := newTestPaper(1000)
	p.TrackPrice(domain.PriceUpdate{Mint: "m1", PriceUSD: 1.0})
	_ = p.Submit(context.Background(), buyOrder("m1", 100))
	held := sink.results[0].FilledQty

	// 卖出超过持仓的数量，应 clamp 到实际持有
	_ = p.Submit(context.Background(), sellOrder("m1", held*10))
	r := sink.results[1]
	if r.Status != domain.OrderStatusFilled {
		t.Fatalf("卖出应成交，实际 %s (%s)", r.Status, r.Reason)
	}
	if !almostEqual(r.FilledQty, held) {
		t.Errorf("卖出数量应 clamp 到持仓 %.6f，实际 %.6f", held, r.FilledQty)
	}
	if len(p.Holdings()) != 0 {
		t.Errorf("全部卖出后持仓应清空")
	}
}

func TestSellWithoutHoldingsFails(t *testing.T) {
	p, sink := newTestPaper(1000)
	p.TrackPrice(domain.PriceUpdate{Mint: "m1", PriceUSD: 1.0})

	_ = p.Submit(context.Background(), sellOrder("m1", 10))
	if sink.results[0].Status != domain.OrderStatusFailed {
		t.Fatalf("无持仓卖出应失败，实际 %s", sink.results[0].Status)
	}
}

func TestRoundTripCostsMoney(t *testing.T) {
	// 价格不动时买入再卖出，滑点加手续费应让权益变少
	p, sink := newTestPaper(1000)
	p.TrackPrice(domain.PriceUpdate{Mint: "m1", PriceUSD: 1.0})

	_ = p.Submit(context.Background(), buyOrder("m1", 100))
	_ = p.Submit(context.Background(), sellOrder("m1", 0)) // 0 = 全部
	if len(sink.results) != 2 {
		t.Fatalf("应有两笔成交")
	}
	if p.BalanceUSD() >= 1000 {
		t.Errorf("一来一回应付出成本，余额 %.4f", p.BalanceUSD())
	}
}

func TestStateRoundTrip(t *testing.T) {
	p, _ := newTestPaper(1000)
	p.TrackPrice(domain.PriceUpdate{Mint: "m1", PriceUSD: 1.0})
	_ = p.Submit(context.Background(), buyOrder("m1", 100))

	st := p.SnapshotState()
	restored := New(Config{InitialBalanceUSD: 1234, Sync: true}, testClock{})
	restored.RestoreState(st)

	if !almostEqual(restored.BalanceUSD(), p.BalanceUSD()) {
		t.Errorf("恢复后余额应一致: %.4f vs %.4f", restored.BalanceUSD(), p.BalanceUSD())
	}
	if len(restored.Holdings()) != 1 {
		t.Errorf("恢复后持仓应一致")
	}
}
