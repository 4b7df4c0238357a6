package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/executor"
	"github.com/late-build/fathom/internal/position"
	"github.com/late-build/fathom/internal/risk"
)

var rtLog = logrus.WithField("component", "strategy_runtime")

// 下单被拒绝的原因（返回给策略代码，绝不向策略抛 panic）
var (
	ErrAlreadyHolding   = errors.New("already holding an open position in this mint")
	ErrStrategyPosLimit = errors.New("strategy position limit reached")
	ErrNoPosition       = errors.New("no open position to sell")
	ErrNotRunning       = errors.New("runtime not running")
)

// defaultExitSlippageBps 平仓卖单的默认滑点预算
const defaultExitSlippageBps = 500

// Clock 运行时需要的时间源
type Clock interface {
	Now() time.Time
}

// Runtime 策略运行时
// 持有全部策略实例，把总线事件同步派发给订阅了对应能力的策略，
// 并为策略提供 buy/sell 两个原语。所有回调都在引擎的决策路径上执行。
type Runtime struct {
	clock     Clock
	risk      *risk.Manager
	positions *position.Manager
	exec      executor.Executor

	strategies []Strategy
	ctxs       map[string]*TradeContext
	limits     map[string]EntryLimits

	runCtx  context.Context
	running bool
}

// NewRuntime 创建策略运行时
func NewRuntime(clock Clock, riskMgr *risk.Manager, positions *position.Manager) *Runtime {
	rt := &Runtime{
		clock:     clock,
		risk:      riskMgr,
		positions: positions,
		ctxs:      make(map[string]*TradeContext),
		limits:    make(map[string]EntryLimits),
	}
	// 仓位管理器触发的平仓卖单走运行时的提交路径
	positions.BindSeller(rt.submitExit)
	return rt
}

// BindExecutor 绑定执行器（装配阶段调用一次）
func (rt *Runtime) BindExecutor(exec executor.Executor) { rt.exec = exec }

// Add 注册一个策略实例
// 出场规则和入场约束在这里一次性转交给仓位管理器/运行时
func (rt *Runtime) Add(s Strategy) error {
	id := s.ID()
	if _, dup := rt.ctxs[id]; dup {
		return fmt.Errorf("strategy %s added twice", id)
	}
	rt.strategies = append(rt.strategies, s)
	rt.ctxs[id] = &TradeContext{rt: rt, strategyID: id, log: rtLog.WithField("strategy", id)}

	if p, ok := s.(EntryLimitsProvider); ok {
		rt.limits[id] = p.EntryLimits()
	}
	if p, ok := s.(ExitRulesProvider); ok {
		r := p.ExitRules()
		rt.positions.SetRules(id, position.ExitRules{
			TakeProfitPct:       r.TakeProfitPct,
			StopLossPct:         r.StopLossPct,
			TrailingStopPct:     r.TrailingStopPct,
			TrailingActivatePct: r.TrailingActivatePct,
			MaxHold:             r.MaxHold,
			ExitOnDevSell:       r.ExitOnDevSell,
			Priority:            r.Priority,
		})
	}
	rtLog.Infof("strategy registered: %s", id)
	return nil
}

// Strategies 返回已注册的策略
func (rt *Runtime) Strategies() []Strategy { return rt.strategies }

// Start 进入运行状态并触发策略的 OnStart 钩子
func (rt *Runtime) Start(ctx context.Context) {
	rt.runCtx = ctx
	rt.running = true
	for _, s := range rt.strategies {
		if starter, ok := s.(Starter); ok {
			starter.OnStart(rt.ctxs[s.ID()])
		}
	}
}

// Stop 触发策略的 OnStop 钩子并停止接单
func (rt *Runtime) Stop() {
	for _, s := range rt.strategies {
		if stopper, ok := s.(Stopper); ok {
			stopper.OnStop(rt.ctxs[s.ID()])
		}
	}
	rt.running = false
}

// DispatchPrice 派发价格更新给订阅的策略
func (rt *Runtime) DispatchPrice(ev domain.PriceUpdate) {
	for _, s := range rt.strategies {
		if h, ok := s.(PriceUpdateHandler); ok {
			h.OnPriceUpdate(rt.ctxs[s.ID()], ev)
		}
	}
}

// DispatchGraduation 派发毕业事件
func (rt *Runtime) DispatchGraduation(ev domain.Graduation) {
	for _, s := range rt.strategies {
		if h, ok := s.(GraduationHandler); ok {
			h.OnGraduation(rt.ctxs[s.ID()], ev)
		}
	}
}

// DispatchDevActivity 派发 dev 活动事件
func (rt *Runtime) DispatchDevActivity(ev domain.DevActivity) {
	for _, s := range rt.strategies {
		if h, ok := s.(DevActivityHandler); ok {
			h.OnDevActivity(rt.ctxs[s.ID()], ev)
		}
	}
}

// DispatchOrderResult 派发订单终态
// 带归属策略 ID 的结果只给那个策略；来源不明的结果广播
func (rt *Runtime) DispatchOrderResult(ev domain.OrderResult) {
	for _, s := range rt.strategies {
		if ev.Strategy != "" && ev.Strategy != s.ID() {
			continue
		}
		if h, ok := s.(OrderResultHandler); ok {
			h.OnOrderResult(rt.ctxs[s.ID()], ev)
		}
	}
}

// DispatchOpaque 按名称派发不透明事件
func (rt *Runtime) DispatchOpaque(ev domain.Opaque) {
	for _, s := range rt.strategies {
		h, ok := s.(OpaqueHandler)
		if !ok {
			continue
		}
		names := h.OpaqueNames()
		if len(names) == 0 {
			h.OnOpaque(rt.ctxs[s.ID()], ev)
			continue
		}
		for _, name := range names {
			if name == ev.Name {
				h.OnOpaque(rt.ctxs[s.ID()], ev)
				break
			}
		}
	}
}

// buy 入场路径：策略约束 -> 全局风控 -> 登记 opening -> 提交执行器
func (rt *Runtime) buy(strategyID, mint string, amountUSD float64, slippageBps int, reason string) (string, error) {
	if !rt.running {
		return "", ErrNotRunning
	}
	limits := rt.limits[strategyID]
	if !limits.AllowMultiEntry && rt.positions.HasOpen(strategyID, mint) {
		return "", ErrAlreadyHolding
	}
	count := rt.positions.CountFor(strategyID)
	if limits.MaxPositions > 0 && count >= limits.MaxPositions {
		return "", ErrStrategyPosLimit
	}

	intent := domain.OrderIntent{
		Strategy:    strategyID,
		Mint:        mint,
		Symbol:      rt.positions.SymbolFor(mint),
		Side:        domain.SideBuy,
		AmountUSD:   amountUSD,
		SlippageBps: slippageBps,
		Reason:      reason,
	}
	if err := rt.risk.CheckBuy(intent, count); err != nil {
		return "", err
	}

	order := domain.NewOrder(intent, rt.clock.Now())
	rt.positions.TrackOpening(order)
	if err := rt.exec.Submit(rt.runCtx, order); err != nil {
		rt.positions.DropOpening(order.ID)
		return "", fmt.Errorf("submit buy: %w", err)
	}
	return order.ID, nil
}

// sellManual 策略主动平仓路径
// 没有可平仓位时记一条 warning 并返回 ErrNoPosition（不打断策略）
func (rt *Runtime) sellManual(strategyID, mint, reason string) (string, error) {
	if !rt.running {
		return "", ErrNotRunning
	}
	pos := rt.positions.OpenFor(strategyID, mint)
	if pos == nil {
		rtLog.Warnf("sell ignored: %s has no open position in %s (%s)", strategyID, mint, reason)
		return "", ErrNoPosition
	}
	orderID, ok := rt.positions.TriggerManual(pos)
	if !ok {
		return "", ErrNoPosition
	}
	return orderID, nil
}

// submitExit 仓位管理器平仓卖单的提交实现（SellFunc）
func (rt *Runtime) submitExit(p *domain.Position, reason domain.ExitReason) (string, error) {
	if rt.exec == nil {
		return "", errors.New("no executor bound")
	}
	order := domain.NewOrder(domain.OrderIntent{
		Strategy:    p.Strategy,
		Mint:        p.Mint,
		Symbol:      p.Symbol,
		Side:        domain.SideSell,
		Qty:         p.Qty,
		SlippageBps: defaultExitSlippageBps,
		Reason:      string(reason),
	}, rt.clock.Now())
	if err := rt.exec.Submit(rt.runCtx, order); err != nil {
		return "", err
	}
	return order.ID, nil
}

// TradeContext 传给策略回调的窄能力句柄
// 策略只能通过它下单、读仓位快照、取引擎时间——拿不到引擎本体
type TradeContext struct {
	rt         *Runtime
	strategyID string
	log        *logrus.Entry
}

// Buy 买入意图；被拒绝时返回原因，不会 panic 进策略代码
func (c *TradeContext) Buy(mint string, amountUSD float64, slippageBps int, reason string) (string, error) {
	return c.rt.buy(c.strategyID, mint, amountUSD, slippageBps, reason)
}

// Sell 主动平仓；没有持仓时是带告警日志的 no-op
func (c *TradeContext) Sell(mint, reason string) (string, error) {
	return c.rt.sellManual(c.strategyID, mint, reason)
}

// Positions 返回本策略的仓位只读快照
func (c *TradeContext) Positions() []domain.PositionSnapshot {
	return c.rt.positions.SnapshotsFor(c.strategyID)
}

// Now 引擎时间（回测下是虚拟时钟）
func (c *TradeContext) Now() time.Time { return c.rt.clock.Now() }

// Log 带策略字段的日志入口
func (c *TradeContext) Log() *logrus.Entry { return c.log }
