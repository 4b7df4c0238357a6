// Package logonly 实现纯观察策略，只记录事件不下单。
// 用来验证数据源质量和引擎通路，也是最小策略实现的样板。
package logonly

import (
	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/strategy"
)

// ID 策略注册名
const ID = "log_only"

func init() {
	strategy.Register(ID, func(conf map[string]any) (strategy.Strategy, error) {
		s := &LogOnly{}
		if err := strategy.DecodeConfig(conf, &s.Config); err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Config 观察策略配置
type Config struct {
	// LogPrices 为假时跳过价格事件（高频，日志量大）
	LogPrices bool `json:"logPrices"`
}

// LogOnly 纯观察策略
type LogOnly struct {
	Config

	graduations int
	prices      int
	devEvents   int
}

// ID 策略 ID
func (s *LogOnly) ID() string { return ID }

// OnGraduation 记录毕业事件
func (s *LogOnly) OnGraduation(ctx *strategy.TradeContext, ev domain.Graduation) {
	s.graduations++
	ctx.Log().Infof("graduation %s (%s): price=$%.8f sol=%.1f holders=%d liq=$%.0f",
		ev.Symbol, ev.Mint, ev.InitialPriceUSD, ev.SolRaised, ev.HolderCount, ev.LiquidityUSD)
}

// OnPriceUpdate 记录价格更新
func (s *LogOnly) OnPriceUpdate(ctx *strategy.TradeContext, ev domain.PriceUpdate) {
	s.prices++
	if s.LogPrices {
		ctx.Log().Infof("price %s: $%.8f vol24h=$%.0f", ev.Mint, ev.PriceUSD, ev.Volume24h)
	}
}

// OnDevActivity 记录 dev 钱包活动
func (s *LogOnly) OnDevActivity(ctx *strategy.TradeContext, ev domain.DevActivity) {
	s.devEvents++
	ctx.Log().Warnf("dev %s on %s: %.1f%%", ev.Action, ev.Mint, ev.AmountPct)
}

// OnStop 打印事件计数
func (s *LogOnly) OnStop(ctx *strategy.TradeContext) {
	ctx.Log().Infof("observed: graduations=%d prices=%d dev=%d", s.graduations, s.prices, s.devEvents)
}
