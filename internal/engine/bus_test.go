package engine

import (
	"testing"

	"github.com/late-build/fathom/internal/domain"
)

func TestBusDispatchOrder(t *testing.T) {
	b := NewBus()
	var order []string
	b.Subscribe(domain.KindPriceUpdate, func(domain.Event) { order = append(order, "first") })
	b.Subscribe(domain.KindPriceUpdate, func(domain.Event) { order = append(order, "second") })
	b.Subscribe(domain.KindGraduation, func(domain.Event) { order = append(order, "other") })

	b.Publish(domain.PriceUpdate{Mint: "m", PriceUSD: 1})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("handler 应按订阅顺序调用，实际 %v", order)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()
	called := 0
	id := b.Subscribe(domain.KindHeartbeat, func(domain.Event) { called++ })
	b.Unsubscribe(domain.KindHeartbeat, id)

	b.Publish(domain.Heartbeat{})
	if called != 0 {
		t.Errorf("退订后不应再收到事件")
	}
}

func TestBusPanicIsolation(t *testing.T) {
	b := NewBus()
	var errs []domain.EngineError
	b.Subscribe(domain.KindEngineError, func(ev domain.Event) {
		errs = append(errs, ev.(domain.EngineError))
	})

	reached := false
	b.Subscribe(domain.KindPriceUpdate, func(domain.Event) { panic("boom") })
	b.Subscribe(domain.KindPriceUpdate, func(domain.Event) { reached = true })

	b.Publish(domain.PriceUpdate{Mint: "m", PriceUSD: 1})

	if !reached {
		t.Errorf("panic 不应中断同一事件对后续 handler 的投递")
	}
	if len(errs) != 1 {
		t.Fatalf("panic 应被转为一条 EngineError，实际 %d 条", len(errs))
	}
	_, recovered := b.Stats()
	if recovered != 1 {
		t.Errorf("recovered 统计应为 1，实际 %d", recovered)
	}
}

func TestBusErrorHandlerPanicNoRecursion(t *testing.T) {
	b := NewBus()
	b.Subscribe(domain.KindEngineError, func(domain.Event) { panic("handler of error panics") })

	// 不应无限递归或死循环
	b.Publish(domain.EngineError{Err: "original"})

	_, recovered := b.Stats()
	if recovered != 1 {
		t.Errorf("错误 handler 的 panic 只应被计数，不应递归发布，recovered=%d", recovered)
	}
}

func TestBusOpaqueRouting(t *testing.T) {
	b := NewBus()
	var got []string
	b.SubscribeOpaque("pool_depth", func(ev domain.Event) {
		got = append(got, "named:"+ev.(domain.Opaque).Name)
	})
	b.SubscribeOpaque("", func(ev domain.Event) {
		got = append(got, "all:"+ev.(domain.Opaque).Name)
	})

	b.Publish(domain.Opaque{Name: "pool_depth"})
	b.Publish(domain.Opaque{Name: "something_else"})

	want := []string{"named:pool_depth", "all:pool_depth", "all:something_else"}
	if len(got) != len(want) {
		t.Fatalf("opaque 路由结果数量不对: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("opaque 路由顺序错误: got=%v want=%v", got, want)
			break
		}
	}
}

func TestReplayClockMonotonic(t *testing.T) {
	c := NewReplayClock(100)
	c.Advance(200)
	c.Advance(150) // 回退被忽略
	if c.NowNano() != 200 {
		t.Errorf("回放时钟应只进不退，实际 %d", c.NowNano())
	}
	c.Advance(300)
	if c.NowNano() != 300 {
		t.Errorf("推进失败: %d", c.NowNano())
	}
}
