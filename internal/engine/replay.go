package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/late-build/fathom/internal/domain"
)

// RunReplay 以回放方式跑完一批历史事件（backtest 模式）
//
// 事件先按时间戳稳定排序（同一时间戳保持传入顺序），
// 然后在调用方 goroutine 上逐条投递：每条投递前把虚拟时钟推进到
// 事件时间戳，投递期间注入的订单结果在下一条历史事件前排空。
// 同一份输入跑两次产生完全相同的决策序列。
func (e *Engine) RunReplay(ctx context.Context, events []domain.Event) error {
	if e.cfg.Mode != ModeBacktest {
		return fmt.Errorf("RunReplay requires backtest mode, got %s", e.cfg.Mode)
	}
	if !e.state.CompareAndSwap(stateCreated, stateRunning) {
		return fmt.Errorf("engine already started")
	}
	defer close(e.done)
	defer e.state.Store(stateStopped)

	rc, ok := e.clock.(*ReplayClock)
	if !ok {
		return fmt.Errorf("backtest mode requires a replay clock")
	}

	sorted := make([]domain.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp() < sorted[j].Timestamp()
	})
	if len(sorted) > 0 {
		rc.Advance(sorted[0].Timestamp())
	}

	e.bind()
	e.runtime.Start(ctx)

	for _, ev := range sorted {
		if err := ctx.Err(); err != nil {
			break
		}
		if e.state.Load() != stateRunning {
			break
		}
		e.deliver(ev)
	}

	e.shutdown(context.Background())
	return nil
}
