// Package paper 实现纸面撮合执行器。
// 用最新观测价加滑点立即成交，维护虚拟余额和持仓，
// paper 与 backtest 两种模式共用同一套撮合逻辑。
package paper

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/executor"
)

var paperLog = logrus.WithField("component", "paper_executor")

// Clock 执行器需要的时间源
type Clock interface {
	NowNano() int64
}

// Config 纸面撮合参数
type Config struct {
	InitialBalanceUSD float64 `yaml:"initialBalanceUsd"`
	SlippageBps       int     `yaml:"slippageBps"`
	FeeBps            int     `yaml:"feeBps"`

	// Sync 为真时成交结果在 Submit 内同步回调（回测模式）
	// 否则结果异步发布，模拟真实执行的先返回后成交
	Sync bool `yaml:"-"`
}

// DefaultConfig 默认纸面撮合参数
func DefaultConfig() Config {
	return Config{
		InitialBalanceUSD: 1000,
		SlippageBps:       100,
		FeeBps:            30,
	}
}

// Paper 纸面执行器
// 所有调用都发生在引擎的决策 goroutine 上，不需要锁
type Paper struct {
	cfg   Config
	clock Clock
	sink  executor.ResultSink

	balanceUSD float64
	holdings   map[string]float64 // mint -> qty
	lastPrice  map[string]float64 // mint -> 最新观测价
	fills      int
	rejects    int
}

// New 创建纸面执行器
func New(cfg Config, clock Clock) *Paper {
	if cfg.InitialBalanceUSD <= 0 {
		cfg.InitialBalanceUSD = DefaultConfig().InitialBalanceUSD
	}
	return &Paper{
		cfg:        cfg,
		clock:      clock,
		balanceUSD: cfg.InitialBalanceUSD,
		holdings:   make(map[string]float64),
		lastPrice:  make(map[string]float64),
	}
}

// Name 执行器名称
func (p *Paper) Name() string { return "paper" }

// Bind 绑定结果出口
func (p *Paper) Bind(sink executor.ResultSink) { p.sink = sink }

// TrackPrice 记录 mint 的最新观测价（executor.PriceTracker）
func (p *Paper) TrackPrice(ev domain.PriceUpdate) {
	if ev.PriceUSD > 0 {
		p.lastPrice[ev.Mint] = ev.PriceUSD
	}
}

// Submit 撮合一笔订单
// 每笔订单恰好产生一个终态结果；没有已知价格或余额不足时拒单而不是静默丢弃
func (p *Paper) Submit(ctx context.Context, order *domain.Order) error {
	result := p.fill(order)
	if p.cfg.Sync {
		p.sink.PublishResult(ctx, result)
		return nil
	}
	go p.sink.PublishResult(ctx, result)
	return nil
}

func (p *Paper) fill(order *domain.Order) domain.OrderResult {
	result := domain.OrderResult{
		EventMeta: domain.NewMeta(p.clock.NowNano(), "paper"),
		OrderID:   order.ID,
		Strategy:  order.Strategy,
		Mint:      order.Mint,
		Side:      order.Side,
	}

	price, known := p.lastPrice[order.Mint]
	if !known || price <= 0 {
		p.rejects++
		result.Status = domain.OrderStatusRejected
		result.Reason = "no observed price for mint"
		return result
	}

	slip := float64(p.cfg.SlippageBps) / 10000
	feeRate := float64(p.cfg.FeeBps) / 10000

	switch order.Side {
	case domain.SideBuy:
		execPrice := price * (1 + slip)
		fee := order.AmountUSD * feeRate
		if order.AmountUSD+fee > p.balanceUSD {
			p.rejects++
			result.Status = domain.OrderStatusRejected
			result.Reason = fmt.Sprintf("insufficient balance: need %.2f have %.2f", order.AmountUSD+fee, p.balanceUSD)
			return result
		}
		qty := order.AmountUSD / execPrice
		p.balanceUSD -= order.AmountUSD + fee
		p.holdings[order.Mint] += qty
		p.fills++
		result.Status = domain.OrderStatusFilled
		result.FilledQty = qty
		result.AvgPriceUSD = execPrice
		result.FeeUSD = fee

	case domain.SideSell:
		held := p.holdings[order.Mint]
		if held <= 0 {
			p.rejects++
			result.Status = domain.OrderStatusFailed
			result.Reason = "no holdings to sell"
			return result
		}
		qty := order.Qty
		if qty <= 0 || qty > held {
			qty = held
		}
		execPrice := price * (1 - slip)
		proceeds := qty * execPrice
		fee := proceeds * feeRate
		p.balanceUSD += proceeds - fee
		p.holdings[order.Mint] = held - qty
		if p.holdings[order.Mint] <= 0 {
			delete(p.holdings, order.Mint)
		}
		p.fills++
		result.Status = domain.OrderStatusFilled
		result.FilledQty = qty
		result.AvgPriceUSD = execPrice
		result.FeeUSD = fee

	default:
		p.rejects++
		result.Status = domain.OrderStatusRejected
		result.Reason = "unknown order side"
	}
	return result
}

// Cancel 纸面成交是即时的，没有可取消的在途订单
func (p *Paper) Cancel(context.Context, string) bool { return false }

// Close 收尾并打印终局账户状态
func (p *Paper) Close(context.Context) error {
	paperLog.Infof("paper executor closed: balance=%.2f holdings=%d fills=%d rejects=%d",
		p.balanceUSD, len(p.holdings), p.fills, p.rejects)
	return nil
}

// BalanceUSD 当前可用余额
func (p *Paper) BalanceUSD() float64 { return p.balanceUSD }

// EquityUSD 余额加持仓市值（按最新观测价估值）
func (p *Paper) EquityUSD() float64 {
	eq := p.balanceUSD
	for mint, qty := range p.holdings {
		eq += qty * p.lastPrice[mint]
	}
	return eq
}

// Holdings 当前持仓快照
func (p *Paper) Holdings() map[string]float64 {
	out := make(map[string]float64, len(p.holdings))
	for k, v := range p.holdings {
		out[k] = v
	}
	return out
}

// State 可持久化的账户状态
type State struct {
	BalanceUSD float64            `json:"balanceUsd"`
	Holdings   map[string]float64 `json:"holdings"`
	Fills      int                `json:"fills"`
	Rejects    int                `json:"rejects"`
}

// SnapshotState 导出账户状态
func (p *Paper) SnapshotState() State {
	return State{
		BalanceUSD: p.balanceUSD,
		Holdings:   p.Holdings(),
		Fills:      p.fills,
		Rejects:    p.rejects,
	}
}

// RestoreState 从持久化状态恢复账户；只在 Submit 之前调用
func (p *Paper) RestoreState(st State) {
	if st.BalanceUSD > 0 || len(st.Holdings) > 0 {
		p.balanceUSD = st.BalanceUSD
		p.fills = st.Fills
		p.rejects = st.Rejects
		p.holdings = make(map[string]float64, len(st.Holdings))
		for k, v := range st.Holdings {
			p.holdings[k] = v
		}
	}
}
