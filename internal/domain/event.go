package domain

import (
	"time"
)

// EventKind 事件类型标签
// 核心只对这组封闭的类型做穷举匹配，适配器新增的负载用 Opaque 透传
type EventKind string

const (
	KindPriceUpdate EventKind = "price_update" // 价格更新
	KindGraduation  EventKind = "graduation"   // 毕业事件（bonding curve 完成）
	KindDevActivity EventKind = "dev_activity" // 开发者钱包活动
	KindOrderResult EventKind = "order_result" // 订单终态结果
	KindHeartbeat   EventKind = "heartbeat"    // 引擎心跳（驱动超时判断）
	KindEngineError EventKind = "engine_error" // 引擎内部错误（handler panic / 适配器故障）
	KindOpaque      EventKind = "opaque"       // 不透明负载，仅路由给感兴趣的策略
)

// Event 所有经过总线的事件的最小接口
// 事件一经发布即不可变；时间戳为纳秒，跨来源可比较
type Event interface {
	Kind() EventKind
	Timestamp() int64
	Source() string
}

// EventMeta 事件公共头，嵌入到具体事件中
type EventMeta struct {
	TsNano int64  // 事实发生时刻（纳秒），由适配器在得知事实时打上
	Origin string // 来源标识（feed 名称 / "engine" / "executor"）
}

// Timestamp 返回事件时间戳（纳秒）
func (m EventMeta) Timestamp() int64 { return m.TsNano }

// Source 返回事件来源
func (m EventMeta) Source() string { return m.Origin }

// Time 返回 time.Time 形式的时间戳
func (m EventMeta) Time() time.Time { return time.Unix(0, m.TsNano) }

// NewMeta 构造事件头
// tsNano 必须是事实发生时刻：适配器用墙钟，回测组件用虚拟时钟
func NewMeta(tsNano int64, origin string) EventMeta {
	return EventMeta{TsNano: tsNano, Origin: origin}
}

// PriceUpdate 某个 token 的实时价格更新
type PriceUpdate struct {
	EventMeta
	Mint         string  // token mint 地址
	Symbol       string  // 符号（便于日志）
	PriceUSD     float64 // 最新价格（USD）
	Volume24h    float64 // 24h 成交额
	LiquidityUSD float64 // 池子流动性
}

// Kind 实现 Event 接口
func (PriceUpdate) Kind() EventKind { return KindPriceUpdate }

// Graduation 一个 token 从 bonding curve 毕业到公开池的事件
// 携带入场决策所需的全部链上快照字段
type Graduation struct {
	EventMeta
	Mint            string
	Symbol          string
	PoolAddress     string
	PoolType        string // pumpswap / raydium
	SolRaised       float64
	HolderCount     int
	Creator         string // 创建者（dev）钱包
	InitialPriceUSD float64
	MarketCapUSD    float64
	LiquidityUSD    float64

	// 评分因子（采集时从数据源快照）
	Buys1h             int
	Sells1h            int
	PriceChange5m      float64 // 百分比
	PriceChange1h      float64
	Top10Concentration float64 // top10 持仓占比（%）
	DevHoldingsPct     float64
	SniperCount        int
	Txns24h            int
}

// Kind 实现 Event 接口
func (Graduation) Kind() EventKind { return KindGraduation }

// DevAction 开发者钱包动作
type DevAction string

const (
	DevActionSell     DevAction = "sell"
	DevActionBuy      DevAction = "buy"
	DevActionTransfer DevAction = "transfer"
)

// DevActivity 开发者钱包的链上活动（风险信号）
type DevActivity struct {
	EventMeta
	Mint      string
	Creator   string
	Action    DevAction
	AmountPct float64 // 动作涉及的持仓比例（%）
}

// Kind 实现 Event 接口
func (DevActivity) Kind() EventKind { return KindDevActivity }

// OrderResult 订单的终态结果，由执行器发布
// 模拟成交和真实成交对策略完全不可区分
type OrderResult struct {
	EventMeta
	OrderID     string
	Strategy    string // 归属策略 ID；空串表示来源不明，广播给全部策略
	Mint        string
	Side        OrderSide
	Status      OrderStatus // filled / partial / rejected / failed
	FilledQty   float64
	AvgPriceUSD float64
	FeeUSD      float64
	Reason      string // 失败/拒绝原因
}

// Kind 实现 Event 接口
func (OrderResult) Kind() EventKind { return KindOrderResult }

// Heartbeat 引擎周期心跳，持仓超时判断依赖它在无价格波动时也能触发
type Heartbeat struct {
	EventMeta
}

// Kind 实现 Event 接口
func (Heartbeat) Kind() EventKind { return KindHeartbeat }

// EngineError 引擎内部错误事件
// handler panic、适配器致命故障都以它的形式进入总线，不会打断其余投递
type EngineError struct {
	EventMeta
	Err   string
	Fatal bool // 致命错误：来源 feed 会被停掉；essential feed 致命则整个 run 停止
}

// Kind 实现 Event 接口
func (EngineError) Kind() EventKind { return KindEngineError }

// Opaque 核心不认识的事件负载，按 Name 路由给订阅的策略
type Opaque struct {
	EventMeta
	Name string
	Data any
}

// Kind 实现 Event 接口
func (Opaque) Kind() EventKind { return KindOpaque }
