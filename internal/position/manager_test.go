package position

import (
	"fmt"
	"testing"
	"time"

	"github.com/late-build/fathom/internal/domain"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeSeller 记录卖出调用，返回自增卖单 ID
type fakeSeller struct {
	calls   []domain.ExitReason
	nextErr error
}

func (s *fakeSeller) sell(p *domain.Position, reason domain.ExitReason) (string, error) {
	if s.nextErr != nil {
		err := s.nextErr
		s.nextErr = nil
		return "", err
	}
	s.calls = append(s.calls, reason)
	return fmt.Sprintf("sell-%d", len(s.calls)), nil
}

func newTestManager(rules ExitRules) (*Manager, *fakeClock, *fakeSeller) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	seller := &fakeSeller{}
	m := NewManager(clock)
	m.BindSeller(seller.sell)
	m.SetRules("s1", rules)
	return m, clock, seller
}

// openPosition 走完整的入场流程：opening -> open
func openPosition(t *testing.T, m *Manager, mint string, entryPrice, qty float64) *domain.Position {
	t.Helper()
	order := domain.NewOrder(domain.OrderIntent{
		Strategy:  "s1",
		Mint:      mint,
		Symbol:    "TST",
		Side:      domain.SideBuy,
		AmountUSD: entryPrice * qty,
	}, time.Unix(1_700_000_000, 0))
	m.TrackOpening(order)
	m.OnOrderResult(domain.OrderResult{
		OrderID:     order.ID,
		Mint:        mint,
		Side:        domain.SideBuy,
		Status:      domain.OrderStatusFilled,
		FilledQty:   qty,
		AvgPriceUSD: entryPrice,
	})
	p := m.OpenFor("s1", mint)
	if p == nil {
		t.Fatalf("开仓后应有 open 仓位")
	}
	return p
}

func price(mint string, usd float64) domain.PriceUpdate {
	return domain.PriceUpdate{Mint: mint, PriceUSD: usd}
}

func TestEntryLifecycle(t *testing.T) {
	m, _, _ := newTestManager(ExitRules{})

	order := domain.NewOrder(domain.OrderIntent{Strategy: "s1", Mint: "mint1", Side: domain.SideBuy, AmountUSD: 50}, time.Now())
	p := m.TrackOpening(order)
	if p.State != domain.PositionOpening {
		t.Errorf("登记后状态应为 opening，实际为 %s", p.State)
	}
	if m.CountFor("s1") != 1 {
		t.Errorf("opening 仓位应计入额度")
	}

	m.OnOrderResult(domain.OrderResult{
		OrderID: order.ID, Status: domain.OrderStatusFilled,
		FilledQty: 100, AvgPriceUSD: 0.5,
	})
	if p.State != domain.PositionOpen {
		t.Errorf("买单成交后状态应为 open，实际为 %s", p.State)
	}
	if p.EntryPriceUSD != 0.5 || p.Qty != 100 {
		t.Errorf("入场均价/数量错误: entry=%.4f qty=%.1f", p.EntryPriceUSD, p.Qty)
	}
	if p.HighWaterUSD != 0.5 {
		t.Errorf("开仓时最高水位应等于入场价，实际为 %.4f", p.HighWaterUSD)
	}
}

func TestEntryRejectedCleansUp(t *testing.T) {
	m, _, _ := newTestManager(ExitRules{})

	order := domain.NewOrder(domain.OrderIntent{Strategy: "s1", Mint: "mint1", Side: domain.SideBuy, AmountUSD: 50}, time.Now())
	m.TrackOpening(order)
	m.OnOrderResult(domain.OrderResult{OrderID: order.ID, Status: domain.OrderStatusRejected, Reason: "insufficient balance"})

	if m.CountFor("s1") != 0 {
		t.Errorf("买单被拒后仓位不应再占用额度")
	}
	if len(m.Snapshots()) != 0 {
		t.Errorf("被拒仓位应被移除")
	}
}

func TestDropOpening(t *testing.T) {
	m, _, _ := newTestManager(ExitRules{})

	order := domain.NewOrder(domain.OrderIntent{Strategy: "s1", Mint: "mint1", Side: domain.SideBuy, AmountUSD: 50}, time.Now())
	m.TrackOpening(order)
	m.DropOpening(order.ID)

	if m.CountFor("s1") != 0 {
		t.Errorf("撤销 opening 后不应占用额度")
	}
	// 结果事件迟到也不应引起状态变化
	m.OnOrderResult(domain.OrderResult{OrderID: order.ID, Status: domain.OrderStatusFilled, FilledQty: 1, AvgPriceUSD: 1})
	if len(m.Snapshots()) != 0 {
		t.Errorf("撤销后的订单结果不应重新产生仓位")
	}
}

func TestTakeProfitAtThreshold(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{TakeProfitPct: 0.50})
	p := openPosition(t, m, "mint1", 1.0, 100)

	// 低于阈值不触发
	m.OnPriceUpdate(price("mint1", 1.49))
	if len(seller.calls) != 0 {
		t.Fatalf("未到止盈阈值不应卖出")
	}
	// 恰好到阈值触发（>= 语义）
	m.OnPriceUpdate(price("mint1", 1.50))
	if len(seller.calls) != 1 || seller.calls[0] != domain.ExitTakeProfit {
		t.Fatalf("应触发 take_profit，实际 %v", seller.calls)
	}
	if p.State != domain.PositionClosing {
		t.Errorf("触发后状态应为 closing，实际为 %s", p.State)
	}
}

func TestStopLoss(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{StopLossPct: 0.20})
	openPosition(t, m, "mint1", 1.0, 100)

	m.OnPriceUpdate(price("mint1", 0.81))
	if len(seller.calls) != 0 {
		t.Fatalf("未到止损阈值不应卖出")
	}
	m.OnPriceUpdate(price("mint1", 0.80))
	if len(seller.calls) != 1 || seller.calls[0] != domain.ExitStopLoss {
		t.Fatalf("应触发 stop_loss，实际 %v", seller.calls)
	}
}

func TestTrailingStopActivation(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{TrailingStopPct: 0.15, TrailingActivatePct: 0.30})
	openPosition(t, m, "mint1", 1.0, 100)

	// 未激活：高水位 1.2 < 1.3，即使回撤超 15% 也不触发
	m.OnPriceUpdate(price("mint1", 1.20))
	m.OnPriceUpdate(price("mint1", 1.00))
	if len(seller.calls) != 0 {
		t.Fatalf("trailing stop 未激活不应卖出")
	}

	// 激活：高水位 1.40 >= 1.30，从高点回撤 15% 触发
	m.OnPriceUpdate(price("mint1", 1.40))
	m.OnPriceUpdate(price("mint1", 1.40*0.85))
	if len(seller.calls) != 1 || seller.calls[0] != domain.ExitTrailingStop {
		t.Fatalf("应触发 trailing_stop，实际 %v", seller.calls)
	}
}

func TestHighWaterMonotonic(t *testing.T) {
	m, _, _ := newTestManager(ExitRules{})
	p := openPosition(t, m, "mint1", 1.0, 100)

	m.OnPriceUpdate(price("mint1", 2.0))
	m.OnPriceUpdate(price("mint1", 1.5))
	if p.HighWaterUSD != 2.0 {
		t.Errorf("最高水位应单调不减，实际为 %.2f", p.HighWaterUSD)
	}
}

func TestTimeoutViaHeartbeat(t *testing.T) {
	m, clock, seller := newTestManager(ExitRules{MaxHold: 10 * time.Minute})
	openPosition(t, m, "mint1", 1.0, 100)

	clock.advance(9 * time.Minute)
	m.OnHeartbeat(domain.Heartbeat{})
	if len(seller.calls) != 0 {
		t.Fatalf("未到持仓时限不应卖出")
	}

	clock.advance(time.Minute)
	m.OnHeartbeat(domain.Heartbeat{})
	if len(seller.calls) != 1 || seller.calls[0] != domain.ExitTimeout {
		t.Fatalf("应触发 timeout，实际 %v", seller.calls)
	}
}

func TestDevSellImmediateExit(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{ExitOnDevSell: true})
	m.OnGraduation(domain.Graduation{Mint: "mint1", Creator: "devwallet", Symbol: "TST"})
	openPosition(t, m, "mint1", 1.0, 100)

	// 不等下一个价格点，观察到即触发；按 creator 匹配也要生效
	m.OnDevActivity(domain.DevActivity{Creator: "devwallet", Action: domain.DevActionSell, AmountPct: 80})
	if len(seller.calls) != 1 || seller.calls[0] != domain.ExitDevSell {
		t.Fatalf("应触发 dev_sell，实际 %v", seller.calls)
	}
}

func TestDevSellDisabled(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{ExitOnDevSell: false})
	openPosition(t, m, "mint1", 1.0, 100)

	m.OnDevActivity(domain.DevActivity{Mint: "mint1", Action: domain.DevActionSell, AmountPct: 80})
	if len(seller.calls) != 0 {
		t.Fatalf("关闭 dev-sell 出场时不应卖出")
	}
}

func TestStopLossBeatsTimeout(t *testing.T) {
	// 同一个价格点上止损和超时同时成立，按优先级应选 stop_loss
	m, clock, seller := newTestManager(ExitRules{StopLossPct: 0.20, MaxHold: 10 * time.Minute})
	openPosition(t, m, "mint1", 1.0, 100)

	clock.advance(11 * time.Minute)
	m.OnPriceUpdate(price("mint1", 0.70))
	if len(seller.calls) != 1 || seller.calls[0] != domain.ExitStopLoss {
		t.Fatalf("同时满足时应按优先级选 stop_loss，实际 %v", seller.calls)
	}
}

func TestDevSellBeatsTakeProfit(t *testing.T) {
	// dev 卖出标记已置位时，即使止盈同时成立也按 dev_sell 出场
	m, _, seller := newTestManager(ExitRules{TakeProfitPct: 0.50, ExitOnDevSell: true, Priority: nil})
	p := openPosition(t, m, "mint1", 1.0, 100)
	p.DevSellSeen = true

	m.OnPriceUpdate(price("mint1", 2.0))
	if len(seller.calls) != 1 || seller.calls[0] != domain.ExitDevSell {
		t.Fatalf("同时满足时应按优先级选 dev_sell，实际 %v", seller.calls)
	}
}

func TestNoDoubleSellWhileClosing(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{StopLossPct: 0.20})
	openPosition(t, m, "mint1", 1.0, 100)

	m.OnPriceUpdate(price("mint1", 0.70))
	m.OnPriceUpdate(price("mint1", 0.50))
	m.OnPriceUpdate(price("mint1", 0.30))
	if len(seller.calls) != 1 {
		t.Fatalf("closing 状态应屏蔽后续触发，实际卖了 %d 次", len(seller.calls))
	}
}

func TestExitFillProducesClosedTrade(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{TakeProfitPct: 0.50})
	var got *domain.ClosedTrade
	m.OnClosed(func(trade domain.ClosedTrade) { got = &trade })

	openPosition(t, m, "mint1", 1.0, 100)
	m.OnPriceUpdate(price("mint1", 1.60))
	if len(seller.calls) != 1 {
		t.Fatalf("应已触发卖出")
	}

	m.OnOrderResult(domain.OrderResult{
		EventMeta:   domain.NewMeta(time.Now().UnixNano(), "paper"),
		OrderID:     "sell-1",
		Status:      domain.OrderStatusFilled,
		FilledQty:   100,
		AvgPriceUSD: 1.55,
		FeeUSD:      1.0,
	})

	if got == nil {
		t.Fatalf("平仓成交后应回调 ClosedTrade")
	}
	if got.ExitReason != domain.ExitTakeProfit {
		t.Errorf("出场原因应为 take_profit，实际为 %s", got.ExitReason)
	}
	// (1.55 - 1.0) * 100 - 1.0 = 54
	if got.PnLUSD.InexactFloat64() != 54.0 {
		t.Errorf("盈亏计算错误: %s", got.PnLUSD)
	}
	if m.CountFor("s1") != 0 {
		t.Errorf("关闭后仓位不应占用额度")
	}
}

func TestExitFailRetryOnceThenReopen(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{StopLossPct: 0.20})
	p := openPosition(t, m, "mint1", 1.0, 100)

	m.OnPriceUpdate(price("mint1", 0.70))
	if len(seller.calls) != 1 {
		t.Fatalf("应已触发卖出")
	}

	// 第一次卖单失败 -> 立即重试一次
	m.OnOrderResult(domain.OrderResult{OrderID: "sell-1", Status: domain.OrderStatusFailed, Reason: "rpc timeout"})
	if len(seller.calls) != 2 {
		t.Fatalf("卖单失败后应重试一次，实际卖出 %d 次", len(seller.calls))
	}
	// 重试也失败 -> 回到 open，不会卡死在 closing
	m.OnOrderResult(domain.OrderResult{OrderID: "sell-2", Status: domain.OrderStatusFailed, Reason: "rpc timeout"})
	if p.State != domain.PositionOpen {
		t.Fatalf("重试仍失败应回到 open，实际为 %s", p.State)
	}
	if p.ExitReason != "" || p.SellRetried {
		t.Errorf("回到 open 后触发状态应被清除")
	}

	// 下一次价格更新可再次触发
	m.OnPriceUpdate(price("mint1", 0.60))
	if len(seller.calls) != 3 {
		t.Fatalf("回到 open 后应可再次触发，实际卖出 %d 次", len(seller.calls))
	}
}

func TestExitPartialAfterRetryReopensRest(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{TakeProfitPct: 0.50})
	var trades []domain.ClosedTrade
	m.OnClosed(func(trade domain.ClosedTrade) { trades = append(trades, trade) })

	p := openPosition(t, m, "mint1", 1.0, 100)
	m.OnPriceUpdate(price("mint1", 1.50))
	if len(seller.calls) != 1 {
		t.Fatalf("应已触发卖出")
	}

	// 第一次卖单部分成交：已成交部分入账，剩余重试一次
	m.OnOrderResult(domain.OrderResult{
		OrderID: "sell-1", Status: domain.OrderStatusPartial,
		FilledQty: 40, AvgPriceUSD: 1.5, FeeUSD: 0.6,
	})
	if len(seller.calls) != 2 {
		t.Fatalf("部分成交后应重试剩余数量，实际卖出 %d 次", len(seller.calls))
	}
	if len(trades) != 1 || trades[0].Qty != 40 {
		t.Fatalf("已成交的 40 应立即产出交易记录: %+v", trades)
	}
	// (1.5 - 1.0) * 40 - 0.6 = 19.4
	if trades[0].PnLUSD.StringFixed(2) != "19.40" {
		t.Errorf("部分成交的盈亏错误: %s", trades[0].PnLUSD)
	}

	// 重试仍是部分成交：再入账一笔，残留回到 open
	m.OnOrderResult(domain.OrderResult{
		OrderID: "sell-2", Status: domain.OrderStatusPartial,
		FilledQty: 30, AvgPriceUSD: 1.4,
	})
	if len(trades) != 2 || trades[1].Qty != 30 {
		t.Fatalf("重试的部分成交也应入账: %+v", trades)
	}
	if p.State != domain.PositionOpen {
		t.Fatalf("重试后仍有残留应回到 open，实际为 %s", p.State)
	}
	if p.Qty != 30 {
		t.Errorf("残留数量应为 30，实际 %.1f", p.Qty)
	}
	if p.SizeUSD != 30 {
		t.Errorf("残留仓位规模应按入场价折算为 30，实际 %.2f", p.SizeUSD)
	}
	if p.ExitReason != "" || p.SellRetried {
		t.Errorf("回到 open 后触发状态应被清除")
	}

	// 残留部分可再次触发并正常关闭
	m.OnPriceUpdate(price("mint1", 1.60))
	if len(seller.calls) != 3 {
		t.Fatalf("残留仓位应可再次触发，实际卖出 %d 次", len(seller.calls))
	}
	m.OnOrderResult(domain.OrderResult{
		OrderID: "sell-3", Status: domain.OrderStatusFilled,
		FilledQty: 30, AvgPriceUSD: 1.6,
	})
	if len(trades) != 3 {
		t.Fatalf("最终平仓应产出第三笔记录")
	}
	// (1.6 - 1.0) * 30 = 18
	if trades[2].PnLUSD.StringFixed(2) != "18.00" {
		t.Errorf("最终平仓盈亏错误: %s", trades[2].PnLUSD)
	}
	if m.CountFor("s1") != 0 {
		t.Errorf("关闭后仓位不应占用额度")
	}
}

func TestTriggerSubmitFailureKeepsOpen(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{StopLossPct: 0.20})
	seller.nextErr = fmt.Errorf("executor down")
	p := openPosition(t, m, "mint1", 1.0, 100)

	m.OnPriceUpdate(price("mint1", 0.70))
	if p.State != domain.PositionOpen {
		t.Fatalf("提交失败时仓位应保持 open，实际为 %s", p.State)
	}
	// 再来一个价格点可重新触发
	m.OnPriceUpdate(price("mint1", 0.65))
	if len(seller.calls) != 1 {
		t.Fatalf("恢复后应能重新触发，实际卖出 %d 次", len(seller.calls))
	}
}

func TestTriggerManual(t *testing.T) {
	m, _, seller := newTestManager(ExitRules{})
	p := openPosition(t, m, "mint1", 1.0, 100)

	orderID, ok := m.TriggerManual(p)
	if !ok || orderID == "" {
		t.Fatalf("open 仓位主动平仓应成功")
	}
	if seller.calls[0] != domain.ExitManual {
		t.Errorf("主动平仓原因应为 manual，实际为 %s", seller.calls[0])
	}
	// closing 状态不允许再次主动平仓
	if _, ok := m.TriggerManual(p); ok {
		t.Errorf("closing 仓位不应允许再次平仓")
	}
}
