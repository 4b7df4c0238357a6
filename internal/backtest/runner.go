// Package backtest 实现历史回放：把数据集里的毕业记录
// 喂给和实盘完全相同的策略与仓位管理代码，没有任何前视。
package backtest

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/dataset"
	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/engine"
	"github.com/late-build/fathom/internal/executor/paper"
	"github.com/late-build/fathom/internal/position"
	"github.com/late-build/fathom/internal/risk"
	"github.com/late-build/fathom/internal/strategy"
)

var btLog = logrus.WithField("component", "backtest")

// Config 回测参数
type Config struct {
	InitialBalanceUSD float64 `yaml:"initialBalanceUsd"`
	SlippageBps       int     `yaml:"slippageBps"`
	FeeBps            int     `yaml:"feeBps"`

	Risk    risk.Limits               `yaml:"risk"`
	Breaker risk.CircuitBreakerConfig `yaml:"breaker"`
}

// DefaultConfig 默认回测参数
func DefaultConfig() Config {
	return Config{
		InitialBalanceUSD: 1000,
		SlippageBps:       100,
		FeeBps:            30,
		Risk:              risk.DefaultLimits(),
	}
}

// Runner 回测执行器：一次装配，一次 Run
type Runner struct {
	cfg      Config
	strategy strategy.Strategy
	records  []*dataset.Record
}

// NewRunner 创建回测
func NewRunner(cfg Config, s strategy.Strategy, records []*dataset.Record) *Runner {
	if cfg.InitialBalanceUSD <= 0 {
		cfg.InitialBalanceUSD = DefaultConfig().InitialBalanceUSD
	}
	return &Runner{cfg: cfg, strategy: s, records: records}
}

// Run 执行回放并产出结果报告
// 同一份数据集和配置跑多少次结果都一致
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	var events []domain.Event
	for _, rec := range r.records {
		events = append(events, rec.Events()...)
	}

	clock := engine.NewReplayClock(0)
	positions := position.NewManager(clock)
	breaker := risk.NewCircuitBreaker(r.cfg.Breaker)
	breaker.BindClock(clock.Now)
	riskMgr := risk.NewManager(r.cfg.Risk, breaker)
	runtime := strategy.NewRuntime(clock, riskMgr, positions)
	if err := runtime.Add(r.strategy); err != nil {
		return nil, err
	}

	exec := paper.New(paper.Config{
		InitialBalanceUSD: r.cfg.InitialBalanceUSD,
		SlippageBps:       r.cfg.SlippageBps,
		FeeBps:            r.cfg.FeeBps,
		Sync:              true,
	}, clock)

	engCfg := engine.DefaultConfig()
	engCfg.Mode = engine.ModeBacktest
	eng := engine.New(engCfg, clock, positions, runtime)
	eng.BindExecutor(exec)

	result := NewResult(r.cfg.InitialBalanceUSD)
	result.Graduations = len(r.records)

	// 每笔平仓后用余额刷新回撤曲线
	positions.OnClosed(func(trade domain.ClosedTrade) {
		riskMgr.Breaker().AddPnLUSD(trade.PnLUSD.InexactFloat64())
		result.observe(trade, exec.BalanceUSD())
	})

	if err := eng.RunReplay(ctx, events); err != nil {
		return nil, err
	}

	result.FinalBalanceUSD = exec.EquityUSD()
	result.Duration = time.Since(start)
	btLog.Infof("backtest done: graduations=%d trades=%d pnl=%s",
		result.Graduations, result.TradesClosed, result.TotalPnLUSD.StringFixed(2))
	return result, nil
}
