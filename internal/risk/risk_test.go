package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/late-build/fathom/internal/domain"
)

func buyIntent(amountUSD float64) domain.OrderIntent {
	return domain.OrderIntent{
		Strategy:  "s1",
		Mint:      "mint1",
		Side:      domain.SideBuy,
		AmountUSD: amountUSD,
	}
}

func TestCheckBuyPasses(t *testing.T) {
	m := NewManager(Limits{MaxPositions: 3, MaxOrderUSD: 100}, nil)
	if err := m.CheckBuy(buyIntent(50), 0); err != nil {
		t.Errorf("合法买入应放行: %v", err)
	}
}

func TestCheckBuyInvalidIntent(t *testing.T) {
	m := NewManager(Limits{MaxPositions: 3}, nil)
	if err := m.CheckBuy(domain.OrderIntent{Mint: "", AmountUSD: 10}, 0); !errors.Is(err, ErrInvalidIntent) {
		t.Errorf("空 mint 应拒绝: %v", err)
	}
	if err := m.CheckBuy(buyIntent(0), 0); !errors.Is(err, ErrInvalidIntent) {
		t.Errorf("零金额应拒绝: %v", err)
	}
}

func TestCheckBuyMaxPositions(t *testing.T) {
	m := NewManager(Limits{MaxPositions: 2, MaxOrderUSD: 100}, nil)
	if err := m.CheckBuy(buyIntent(50), 2); !errors.Is(err, ErrMaxPositions) {
		t.Errorf("仓位满应拒绝: %v", err)
	}
	if err := m.CheckBuy(buyIntent(50), 1); err != nil {
		t.Errorf("未满时应放行: %v", err)
	}
}

func TestCheckBuyOrderTooLarge(t *testing.T) {
	m := NewManager(Limits{MaxPositions: 5, MaxOrderUSD: 100}, nil)
	if err := m.CheckBuy(buyIntent(101), 0); !errors.Is(err, ErrOrderTooLarge) {
		t.Errorf("超额应拒绝: %v", err)
	}
	// 上限为 0 表示关闭金额检查
	m2 := NewManager(Limits{MaxPositions: 5}, nil)
	if err := m2.CheckBuy(buyIntent(1_000_000), 0); err != nil {
		t.Errorf("未配置金额上限时应放行: %v", err)
	}
}

func TestBreakerBlocksBuy(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 2})
	m := NewManager(Limits{MaxPositions: 5}, cb)

	cb.OnError()
	if err := m.CheckBuy(buyIntent(10), 0); err != nil {
		t.Errorf("未达连续错误上限应放行: %v", err)
	}
	cb.OnError()
	if err := m.CheckBuy(buyIntent(10), 0); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("达到连续错误上限应熔断: %v", err)
	}
	if !cb.IsHalted() {
		t.Errorf("熔断后 IsHalted 应为真")
	}

	cb.Resume()
	if err := m.CheckBuy(buyIntent(10), 0); err != nil {
		t.Errorf("恢复后应放行: %v", err)
	}
}

func TestBreakerDailyLossLimit(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{DailyLossLimitUSD: 100})

	cb.AddPnLUSD(-60)
	if err := cb.AllowTrading(); err != nil {
		t.Errorf("未达亏损上限应放行: %v", err)
	}
	cb.AddPnLUSD(-40)
	if err := cb.AllowTrading(); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Errorf("达到当日亏损上限应熔断: %v", err)
	}
	if cb.DailyPnLUSD() != -100 {
		t.Errorf("当日盈亏应为 -100，实际 %.2f", cb.DailyPnLUSD())
	}
}

func TestBreakerDayRollFollowsBoundClock(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{DailyLossLimitUSD: 100})
	cb.BindClock(func() time.Time { return now })

	cb.AddPnLUSD(-100)
	if err := cb.AllowTrading(); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Fatalf("达到当日亏损上限应熔断: %v", err)
	}

	// 换日后当日盈亏清零
	now = now.Add(24 * time.Hour)
	if got := cb.DailyPnLUSD(); got != 0 {
		t.Errorf("换日后当日盈亏应清零，实际 %.2f", got)
	}
}

func TestBreakerSuccessResetsErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxConsecutiveErrors: 2})
	cb.OnError()
	cb.OnSuccess()
	cb.OnError()
	if err := cb.AllowTrading(); err != nil {
		t.Errorf("成功应清空连续错误计数: %v", err)
	}
}

func TestNilBreakerIsNoop(t *testing.T) {
	var cb *CircuitBreaker
	if err := cb.AllowTrading(); err != nil {
		t.Errorf("nil 熔断器应放行")
	}
	cb.OnError()
	cb.AddPnLUSD(-1)
	if cb.IsHalted() {
		t.Errorf("nil 熔断器不应处于熔断状态")
	}
}
