// Package strategy 承载用户策略的运行时。
// 策略通过一组可选能力接口声明自己关心哪些事件，
// 通过 TradeContext 这个窄句柄下单，拿不到引擎的任何其他引用。
package strategy

import (
	"time"

	"github.com/late-build/fathom/internal/domain"
)

// Strategy 策略必须实现的最小接口
type Strategy interface {
	ID() string
}

// PriceUpdateHandler 可选能力：接收价格更新
type PriceUpdateHandler interface {
	OnPriceUpdate(ctx *TradeContext, ev domain.PriceUpdate)
}

// GraduationHandler 可选能力：接收毕业事件
type GraduationHandler interface {
	OnGraduation(ctx *TradeContext, ev domain.Graduation)
}

// DevActivityHandler 可选能力：接收 dev 钱包活动
type DevActivityHandler interface {
	OnDevActivity(ctx *TradeContext, ev domain.DevActivity)
}

// OrderResultHandler 可选能力：接收自己订单的终态结果
type OrderResultHandler interface {
	OnOrderResult(ctx *TradeContext, ev domain.OrderResult)
}

// OpaqueHandler 可选能力：接收指定名称的不透明事件
// OpaqueNames 返回空切片表示接收全部
type OpaqueHandler interface {
	OpaqueNames() []string
	OnOpaque(ctx *TradeContext, ev domain.Opaque)
}

// Defaulter 可选能力：在 Validate 之前填默认值（bbgo 风格）
type Defaulter interface {
	Defaults() error
}

// Validator 可选能力：配置校验
type Validator interface {
	Validate() error
}

// Starter 可选能力：引擎启动时回调
type Starter interface {
	OnStart(ctx *TradeContext)
}

// Stopper 可选能力：引擎停止时回调
type Stopper interface {
	OnStop(ctx *TradeContext)
}

// ExitRulesProvider 可选能力：向仓位管理器声明出场规则
// 未实现时该策略的仓位只能由策略自己 Sell
type ExitRulesProvider interface {
	ExitRules() ExitRules
}

// ExitRules 策略声明的出场规则（转交仓位管理器执行）
type ExitRules struct {
	TakeProfitPct       float64
	StopLossPct         float64
	TrailingStopPct     float64
	TrailingActivatePct float64
	MaxHold             time.Duration
	ExitOnDevSell       bool
	Priority            []domain.ExitReason
}

// EntryLimits 策略级别的入场约束（全局风控之外的那层）
type EntryLimits struct {
	MaxPositions    int  // 该策略自己的并发仓位上限；0 表示只受全局限制
	AllowMultiEntry bool // 是否允许同一 mint 多次入场
}

// EntryLimitsProvider 可选能力：声明策略级入场约束
type EntryLimitsProvider interface {
	EntryLimits() EntryLimits
}
