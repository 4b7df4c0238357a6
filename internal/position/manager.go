// Package position 实现仓位生命周期状态机。
// 所有仓位由 Manager 独占持有，状态迁移只发生在引擎的单一决策路径上。
package position

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/domain"
)

var posLog = logrus.WithField("component", "position_manager")

// Clock 仓位管理器需要的时间源（由引擎时钟满足）
type Clock interface {
	Now() time.Time
}

// SellFunc 平仓卖单提交回调，由策略运行时在装配阶段绑定
// 返回卖单 ID；提交本身失败时返回错误（仓位保持 open，可再次触发）
type SellFunc func(p *domain.Position, reason domain.ExitReason) (string, error)

// ClosedFunc 仓位关闭回调（写历史、更新熔断器等）
type ClosedFunc func(trade domain.ClosedTrade)

// ExitRules 单个策略的出场规则
// 字段为零值表示关闭对应触发器
type ExitRules struct {
	TakeProfitPct       float64
	StopLossPct         float64
	TrailingStopPct     float64
	TrailingActivatePct float64 // 浮盈达到该比例后 trailing stop 才激活
	MaxHold             time.Duration
	ExitOnDevSell       bool
	Priority            []domain.ExitReason // 为空则用 domain.DefaultExitPriority
}

// priority 返回生效的裁决顺序
func (r ExitRules) priority() []domain.ExitReason {
	if len(r.Priority) > 0 {
		return r.Priority
	}
	return domain.DefaultExitPriority
}

// Manager 仓位管理器
//
// 入场：风控通过的买单 -> opening；买单成交 -> open；买单失败 -> rejected。
// 出场：每个 PriceUpdate 先单调更新最高水位，再按固定优先级评估触发器，
// 第一个命中的触发器恰好发出一个卖出意图并把仓位置为 closing；
// closing 状态屏蔽后续触发（不会双卖）。
// 卖单失败立即重试一次，仍失败则回到 open 并清除触发（下一次更新可再触发），
// 仓位永远不会卡死在 closing。
type Manager struct {
	clock  Clock
	sell   SellFunc
	closed ClosedFunc

	rules     map[string]ExitRules        // strategyID -> 出场规则
	positions map[string]*domain.Position // positionID -> 仓位
	byEntry   map[string]string           // 入场订单 ID -> positionID
	byExit    map[string]string           // 在途卖单 ID -> positionID

	creators map[string]string // mint -> dev 钱包（从毕业事件学习）
	symbols  map[string]string // mint -> 符号
}

// NewManager 创建空的仓位管理器
func NewManager(clock Clock) *Manager {
	return &Manager{
		clock:     clock,
		rules:     make(map[string]ExitRules),
		positions: make(map[string]*domain.Position),
		byEntry:   make(map[string]string),
		byExit:    make(map[string]string),
		creators:  make(map[string]string),
		symbols:   make(map[string]string),
	}
}

// BindSeller 绑定平仓卖单提交回调（装配阶段调用一次）
func (m *Manager) BindSeller(fn SellFunc) { m.sell = fn }

// OnClosed 注册仓位关闭回调
func (m *Manager) OnClosed(fn ClosedFunc) { m.closed = fn }

// SetRules 注册某个策略的出场规则
func (m *Manager) SetRules(strategyID string, rules ExitRules) {
	m.rules[strategyID] = rules
}

// TrackOpening 登记一笔进入 opening 状态的买单
// 在买单提交执行器之前调用，保证结果事件到达时一定能对上仓位
func (m *Manager) TrackOpening(order *domain.Order) *domain.Position {
	p := &domain.Position{
		ID:       order.ID,
		Strategy: order.Strategy,
		Mint:     order.Mint,
		Symbol:   order.Symbol,
		Creator:  m.creators[order.Mint],
		State:    domain.PositionOpening,
		SizeUSD:  order.AmountUSD,
	}
	if p.Symbol == "" {
		p.Symbol = m.symbols[order.Mint]
	}
	m.positions[p.ID] = p
	m.byEntry[order.ID] = p.ID
	return p
}

// DropOpening 撤销一笔还没提交成功的 opening 登记
// 只在执行器提交失败时调用，其余状态不受影响
func (m *Manager) DropOpening(orderID string) {
	id, ok := m.byEntry[orderID]
	if !ok {
		return
	}
	if p := m.positions[id]; p != nil && p.State == domain.PositionOpening {
		delete(m.positions, id)
		delete(m.byEntry, orderID)
	}
}

// SymbolFor 返回 mint 已知的符号，未知时为空串
func (m *Manager) SymbolFor(mint string) string { return m.symbols[mint] }

// CountFor 统计某策略占用仓位额度的仓位数（opening/open/closing）
func (m *Manager) CountFor(strategyID string) int {
	n := 0
	for _, p := range m.positions {
		if p.Strategy == strategyID && p.CountsAgainstLimit() {
			n++
		}
	}
	return n
}

// HasOpen 检查某策略在某 mint 上是否已有占用额度的仓位
func (m *Manager) HasOpen(strategyID, mint string) bool {
	for _, p := range m.positions {
		if p.Strategy == strategyID && p.Mint == mint && p.CountsAgainstLimit() {
			return true
		}
	}
	return false
}

// OpenFor 返回某策略在某 mint 上第一个可平仓位（open 状态）
func (m *Manager) OpenFor(strategyID, mint string) *domain.Position {
	for _, p := range m.positions {
		if p.Strategy == strategyID && p.Mint == mint && p.State == domain.PositionOpen {
			return p
		}
	}
	return nil
}

// Snapshots 返回全部未终结仓位的只读快照
func (m *Manager) Snapshots() []domain.PositionSnapshot {
	out := make([]domain.PositionSnapshot, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p.Snapshot())
	}
	return out
}

// SnapshotsFor 返回某策略的仓位快照
func (m *Manager) SnapshotsFor(strategyID string) []domain.PositionSnapshot {
	var out []domain.PositionSnapshot
	for _, p := range m.positions {
		if p.Strategy == strategyID {
			out = append(out, p.Snapshot())
		}
	}
	return out
}

// OnGraduation 记录 mint 的 dev 钱包和符号，供后续仓位关联
func (m *Manager) OnGraduation(ev domain.Graduation) {
	if ev.Creator != "" {
		m.creators[ev.Mint] = ev.Creator
	}
	if ev.Symbol != "" {
		m.symbols[ev.Mint] = ev.Symbol
	}
}

// OnPriceUpdate 用新价格驱动所有该 mint 仓位的出场评估
// 最高水位的更新无条件先于触发器评估，且单调不减
func (m *Manager) OnPriceUpdate(ev domain.PriceUpdate) {
	if ev.PriceUSD <= 0 {
		return
	}
	for _, p := range m.positions {
		if p.Mint != ev.Mint {
			continue
		}
		p.LastPriceUSD = ev.PriceUSD
		if p.State != domain.PositionOpen {
			continue
		}
		p.ObserveHighWater(ev.PriceUSD)
		m.evaluate(p, ev.PriceUSD)
	}
}

// OnDevActivity 标记 dev 卖出，并立即用最近价格评估出场
// dev-sell 不等下一个价格点，观察到即触发
func (m *Manager) OnDevActivity(ev domain.DevActivity) {
	if ev.Action != domain.DevActionSell {
		return
	}
	for _, p := range m.positions {
		if p.State != domain.PositionOpen {
			continue
		}
		match := p.Mint == ev.Mint || (p.Creator != "" && p.Creator == ev.Creator)
		if !match {
			continue
		}
		p.DevSellSeen = true
		posLog.Warnf("dev sold %.1f%% of %s, position %s flagged", ev.AmountPct, p.Symbol, p.ID)
		price := p.LastPriceUSD
		if price <= 0 {
			price = p.EntryPriceUSD
		}
		m.evaluate(p, price)
	}
}

// OnHeartbeat 在无价格波动时也推进持仓超时判断
func (m *Manager) OnHeartbeat(domain.Heartbeat) {
	for _, p := range m.positions {
		if p.State != domain.PositionOpen {
			continue
		}
		price := p.LastPriceUSD
		if price <= 0 {
			price = p.EntryPriceUSD
		}
		m.evaluate(p, price)
	}
}

// OnOrderResult 处理订单终态，推进仓位状态机
func (m *Manager) OnOrderResult(ev domain.OrderResult) {
	if id, ok := m.byEntry[ev.OrderID]; ok {
		m.resolveEntry(m.positions[id], ev)
		return
	}
	if id, ok := m.byExit[ev.OrderID]; ok {
		m.resolveExit(m.positions[id], ev)
	}
}

// resolveEntry 买单终态：成交则开仓，否则仓位作废
func (m *Manager) resolveEntry(p *domain.Position, ev domain.OrderResult) {
	if p == nil || p.State != domain.PositionOpening {
		return
	}
	delete(m.byEntry, ev.OrderID)

	switch ev.Status {
	case domain.OrderStatusFilled, domain.OrderStatusPartial:
		p.State = domain.PositionOpen
		p.EntryPriceUSD = ev.AvgPriceUSD
		p.Qty = ev.FilledQty
		p.SizeUSD = ev.AvgPriceUSD * ev.FilledQty
		p.EntryTime = m.clock.Now()
		p.HighWaterUSD = ev.AvgPriceUSD
		p.LastPriceUSD = ev.AvgPriceUSD
		posLog.Infof("position opened: %s %s qty=%.4f entry=%.8f size=$%.2f",
			p.Strategy, p.Symbol, p.Qty, p.EntryPriceUSD, p.SizeUSD)
	default:
		p.State = domain.PositionRejected
		delete(m.positions, p.ID)
		posLog.Warnf("entry order %s %s: %s (%s)", ev.OrderID, p.Symbol, ev.Status, ev.Reason)
	}
}

// resolveExit 卖单终态：成交则关仓；失败重试一次，再失败回到 open
func (m *Manager) resolveExit(p *domain.Position, ev domain.OrderResult) {
	if p == nil || p.State != domain.PositionClosing {
		return
	}
	delete(m.byExit, ev.OrderID)

	switch ev.Status {
	case domain.OrderStatusFilled:
		m.finalizeClose(p, ev)
	case domain.OrderStatusPartial:
		// 部分成交：已成交部分先行入账，剩余数量再卖一次；
		// 重试过仍有残留则残留部分回到 open，下一次更新可再触发
		m.realizePartial(p, ev)
		if p.Qty <= 0 {
			p.State = domain.PositionClosed
			delete(m.positions, p.ID)
			return
		}
		if !p.SellRetried {
			m.retryExit(p, ev)
			return
		}
		posLog.Warnf("exit for %s still partial after retry, %.4f stays open", p.Symbol, p.Qty)
		m.reopen(p)
	default:
		if !p.SellRetried {
			m.retryExit(p, ev)
			return
		}
		posLog.Errorf("exit order for %s failed twice (%s), leaving position open", p.Symbol, ev.Reason)
		m.reopen(p)
	}
}

// retryExit 立即重提平仓卖单（每个触发最多一次）
func (m *Manager) retryExit(p *domain.Position, ev domain.OrderResult) {
	p.SellRetried = true
	reason := p.ExitReason
	posLog.Warnf("exit order for %s %s, retrying sell once (reason=%s)", p.Symbol, ev.Status, reason)
	orderID, err := m.sell(p, reason)
	if err != nil {
		posLog.Errorf("exit retry submit failed for %s: %v, leaving position open", p.Symbol, err)
		m.reopen(p)
		return
	}
	m.byExit[orderID] = p.ID
	p.ExitOrderID = orderID
}

// reopen 平仓失败后回到 open，清除触发器（下一次更新可再触发）
func (m *Manager) reopen(p *domain.Position) {
	p.State = domain.PositionOpen
	p.ExitReason = ""
	p.ExitOrderID = ""
	p.SellRetried = false
}

// realizePartial 把部分成交的数量从仓位里扣掉并产出对应的交易记录
// 残留数量留在仓位上，由调用方决定重试还是回到 open
func (m *Manager) realizePartial(p *domain.Position, ev domain.OrderResult) {
	if ev.FilledQty <= 0 {
		return
	}
	slice := *p
	slice.Qty = ev.FilledQty
	slice.SizeUSD = p.EntryPriceUSD * ev.FilledQty
	trade := domain.NewClosedTrade(&slice, &ev)

	p.Qty -= ev.FilledQty
	p.SizeUSD = p.EntryPriceUSD * p.Qty
	posLog.Infof("partial exit realized: %s %s qty=%.4f pnl=$%s remaining=%.4f",
		p.Strategy, p.Symbol, ev.FilledQty, trade.PnLUSD.StringFixed(2), p.Qty)
	if m.closed != nil {
		m.closed(trade)
	}
}

// finalizeClose 卖单成交，仓位终结并产出交易记录
func (m *Manager) finalizeClose(p *domain.Position, ev domain.OrderResult) {
	p.State = domain.PositionClosed
	trade := domain.NewClosedTrade(p, &ev)
	delete(m.positions, p.ID)
	posLog.Infof("position closed: %s %s reason=%s pnl=$%s held=%s",
		p.Strategy, p.Symbol, p.ExitReason, trade.PnLUSD.StringFixed(2), trade.HoldDuration.Truncate(time.Millisecond))
	if m.closed != nil {
		m.closed(trade)
	}
}

// evaluate 按优先级评估出场触发器，命中第一个就发出卖出并置为 closing
// 状态守卫保证一次平仓周期内只有一个触发器生效
func (m *Manager) evaluate(p *domain.Position, priceUSD float64) {
	if p.State != domain.PositionOpen {
		return
	}
	rules := m.rules[p.Strategy]
	reason, ok := m.firstTriggered(p, rules, priceUSD)
	if !ok {
		return
	}
	m.trigger(p, reason)
}

// firstTriggered 返回当前同时成立的条件里优先级最高的那个
func (m *Manager) firstTriggered(p *domain.Position, rules ExitRules, price float64) (domain.ExitReason, bool) {
	for _, reason := range rules.priority() {
		switch reason {
		case domain.ExitDevSell:
			if rules.ExitOnDevSell && p.DevSellSeen {
				return reason, true
			}
		case domain.ExitStopLoss:
			if rules.StopLossPct > 0 && price <= p.EntryPriceUSD*(1-rules.StopLossPct) {
				return reason, true
			}
		case domain.ExitTrailingStop:
			if rules.TrailingStopPct > 0 &&
				p.HighWaterUSD >= p.EntryPriceUSD*(1+rules.TrailingActivatePct) &&
				price <= p.HighWaterUSD*(1-rules.TrailingStopPct) {
				return reason, true
			}
		case domain.ExitTakeProfit:
			if rules.TakeProfitPct > 0 && price >= p.EntryPriceUSD*(1+rules.TakeProfitPct) {
				return reason, true
			}
		case domain.ExitTimeout:
			if rules.MaxHold > 0 && p.HoldDuration(m.clock.Now()) >= rules.MaxHold {
				return reason, true
			}
		}
	}
	return "", false
}

// trigger 发出平仓卖单并迁移到 closing
func (m *Manager) trigger(p *domain.Position, reason domain.ExitReason) {
	p.ExitReason = reason
	p.SellRetried = false
	orderID, err := m.sell(p, reason)
	if err != nil {
		posLog.Errorf("exit submit failed for %s (%s): %v", p.Symbol, reason, err)
		p.ExitReason = ""
		return
	}
	p.State = domain.PositionClosing
	p.ExitOrderID = orderID
	m.byExit[orderID] = p.ID
	posLog.Infof("exit triggered: %s %s reason=%s price=%.8f entry=%.8f high=%.8f",
		p.Strategy, p.Symbol, reason, p.LastPriceUSD, p.EntryPriceUSD, p.HighWaterUSD)
}

// TriggerManual 策略主动平仓（Sell API 路径）
// 返回卖单 ID；仓位不在 open 状态时返回 false
func (m *Manager) TriggerManual(p *domain.Position) (string, bool) {
	if p == nil || p.State != domain.PositionOpen {
		return "", false
	}
	m.trigger(p, domain.ExitManual)
	if p.State != domain.PositionClosing {
		return "", false
	}
	return p.ExitOrderID, true
}
