// Package sniper 实现毕业狙击策略。
// 对每个毕业事件做多因子评分，评分和硬过滤都通过才入场，
// 仓位大小随信心分数缩放；出场全部交给仓位管理器的规则执行。
package sniper

import (
	"fmt"
	"time"

	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/strategy"
)

// ID 策略注册名
const ID = "graduation_sniper"

func init() {
	strategy.Register(ID, func(conf map[string]any) (strategy.Strategy, error) {
		s := &Sniper{}
		if err := strategy.DecodeConfig(conf, &s.Config); err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Config 狙击策略配置
type Config struct {
	BasePositionUSD float64 `json:"basePositionUsd"` // 满仓金额（评分 80+）
	MaxPositions    int     `json:"maxPositions"`
	MinScore        int     `json:"minScore"`
	SlippageBps     int     `json:"slippageBps"`

	TakeProfitPct       float64 `json:"takeProfitPct"`
	StopLossPct         float64 `json:"stopLossPct"`
	TrailingStopPct     float64 `json:"trailingStopPct"`
	TrailingActivatePct float64 `json:"trailingActivatePct"`
	MaxHoldSeconds      float64 `json:"maxHoldSeconds"`
	ExitOnDevSell       *bool   `json:"exitOnDevSell"`

	// 硬过滤：不管评分多高都拦下
	MinLiquidityUSD       float64 `json:"minLiquidityUsd"`
	MaxMcapLiqRatio       float64 `json:"maxMcapLiqRatio"`
	MaxTop10Concentration float64 `json:"maxTop10Concentration"`
	MinHolders            int     `json:"minHolders"`
	MinSolRaised          float64 `json:"minSolRaised"`
}

// Sniper 毕业狙击策略
// 只负责评分和入场；止盈止损、移动止损、超时和 dev 砸盘出场
// 由仓位管理器按 ExitRules 统一执行
type Sniper struct {
	Config

	passed   int
	filtered int
	scoreSum int
	scored   int
}

// ID 策略 ID
func (s *Sniper) ID() string { return ID }

// Defaults 补默认配置
func (s *Sniper) Defaults() error {
	if s.BasePositionUSD == 0 {
		s.BasePositionUSD = 50
	}
	if s.MaxPositions == 0 {
		s.MaxPositions = 5
	}
	if s.MinScore == 0 {
		s.MinScore = 60
	}
	if s.SlippageBps == 0 {
		s.SlippageBps = 300
	}
	if s.TakeProfitPct == 0 {
		s.TakeProfitPct = 0.50
	}
	if s.StopLossPct == 0 {
		s.StopLossPct = 0.20
	}
	if s.TrailingStopPct == 0 {
		s.TrailingStopPct = 0.15
	}
	if s.TrailingActivatePct == 0 {
		s.TrailingActivatePct = 0.30
	}
	if s.MaxHoldSeconds == 0 {
		s.MaxHoldSeconds = 600
	}
	if s.ExitOnDevSell == nil {
		v := true
		s.ExitOnDevSell = &v
	}
	if s.MinLiquidityUSD == 0 {
		s.MinLiquidityUSD = 3000
	}
	if s.MaxMcapLiqRatio == 0 {
		s.MaxMcapLiqRatio = 200
	}
	if s.MaxTop10Concentration == 0 {
		s.MaxTop10Concentration = 90
	}
	return nil
}

// Validate 配置校验
func (s *Sniper) Validate() error {
	if s.BasePositionUSD <= 0 {
		return fmt.Errorf("basePositionUsd must be positive, got %v", s.BasePositionUSD)
	}
	if s.MinScore < 0 || s.MinScore > 100 {
		return fmt.Errorf("minScore must be in [0, 100], got %d", s.MinScore)
	}
	if s.StopLossPct <= 0 || s.StopLossPct >= 1 {
		return fmt.Errorf("stopLossPct must be in (0, 1), got %v", s.StopLossPct)
	}
	if s.TakeProfitPct <= 0 {
		return fmt.Errorf("takeProfitPct must be positive, got %v", s.TakeProfitPct)
	}
	return nil
}

// ExitRules 出场规则转交仓位管理器
func (s *Sniper) ExitRules() strategy.ExitRules {
	return strategy.ExitRules{
		TakeProfitPct:       s.TakeProfitPct,
		StopLossPct:         s.StopLossPct,
		TrailingStopPct:     s.TrailingStopPct,
		TrailingActivatePct: s.TrailingActivatePct,
		MaxHold:             time.Duration(s.MaxHoldSeconds * float64(time.Second)),
		ExitOnDevSell:       *s.ExitOnDevSell,
	}
}

// EntryLimits 策略级入场约束
func (s *Sniper) EntryLimits() strategy.EntryLimits {
	return strategy.EntryLimits{MaxPositions: s.MaxPositions}
}

// OnGraduation 毕业事件入口：硬过滤 -> 评分 -> 信心仓位 -> 买入
func (s *Sniper) OnGraduation(ctx *strategy.TradeContext, ev domain.Graduation) {
	symbol := ev.Symbol
	if symbol == "" && len(ev.Mint) >= 8 {
		symbol = ev.Mint[:8]
	}

	if ev.InitialPriceUSD <= 0 {
		s.filtered++
		return
	}

	// 硬过滤先于评分，不给高分垃圾盘机会
	liq := ev.LiquidityUSD
	if liq > 0 && liq < s.MinLiquidityUSD {
		s.filtered++
		ctx.Log().Debugf("skip %s: liq $%.0f < $%.0f", symbol, liq, s.MinLiquidityUSD)
		return
	}
	mcap := ev.MarketCapUSD
	if mcap == 0 {
		mcap = ev.InitialPriceUSD * estimatedSupply
	}
	if liq > 0 {
		if ratio := mcap / liq; ratio > s.MaxMcapLiqRatio {
			s.filtered++
			ctx.Log().Debugf("skip %s: mcap/liq %.0f:1 > %.0f", symbol, ratio, s.MaxMcapLiqRatio)
			return
		}
	}
	if ev.Top10Concentration > 0 && ev.Top10Concentration > s.MaxTop10Concentration {
		s.filtered++
		ctx.Log().Debugf("skip %s: top10 %.0f%% > %.0f%%", symbol, ev.Top10Concentration, s.MaxTop10Concentration)
		return
	}
	if s.MinHolders > 0 && ev.HolderCount < s.MinHolders {
		s.filtered++
		return
	}
	if s.MinSolRaised > 0 && ev.SolRaised < s.MinSolRaised {
		s.filtered++
		return
	}

	breakdown := Score(ev)
	s.scoreSum += breakdown.Total
	s.scored++

	if breakdown.Total < s.MinScore {
		s.filtered++
		ctx.Log().Debugf("skip %s: score %d/100 < %d [%s]",
			symbol, breakdown.Total, s.MinScore, breakdown.TopReasons(3))
		return
	}

	// 信心仓位：80+ 满仓，70-79 四分之三，其余半仓
	positionUSD := s.BasePositionUSD
	switch {
	case breakdown.Total >= 80:
	case breakdown.Total >= 70:
		positionUSD *= 0.75
	default:
		positionUSD *= 0.5
	}

	reason := fmt.Sprintf("score=%d [%s]", breakdown.Total, breakdown.TopReasons(3))
	orderID, err := ctx.Buy(ev.Mint, positionUSD, s.SlippageBps, reason)
	if err != nil {
		s.filtered++
		ctx.Log().Debugf("skip %s: %v", symbol, err)
		return
	}
	s.passed++
	ctx.Log().Infof("entry %s score=%d size=$%.0f order=%s [%s]",
		symbol, breakdown.Total, positionUSD, orderID, breakdown.TopReasons(3))
}

// OnStop 打印终局统计
func (s *Sniper) OnStop(ctx *strategy.TradeContext) {
	avg := 0.0
	if s.scored > 0 {
		avg = float64(s.scoreSum) / float64(s.scored)
	}
	ctx.Log().Infof("final: entries=%d filtered=%d avg_score=%.0f", s.passed, s.filtered, avg)
}
