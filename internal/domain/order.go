package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderSide 订单方向
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"  // 已提交执行器，等待终态
	OrderStatusFilled   OrderStatus = "filled"   // 全部成交
	OrderStatusPartial  OrderStatus = "partial"  // 部分成交（终态，按部分成交处理）
	OrderStatusRejected OrderStatus = "rejected" // 执行器拒绝
	OrderStatusFailed   OrderStatus = "failed"   // 执行失败（链上失败 / 超时）
	OrderStatusCanceled OrderStatus = "canceled" // 已取消
)

// IsTerminal 检查状态是否为终态
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusPartial, OrderStatusRejected, OrderStatusFailed, OrderStatusCanceled:
		return true
	default:
		return false
	}
}

// OrderIntent 策略产生的交易意图，尚未经过风控
type OrderIntent struct {
	Strategy    string    // 发起策略 ID
	Mint        string    // token mint
	Symbol      string    // 符号（便于日志）
	Side        OrderSide // 方向
	AmountUSD   float64   // 买入金额（buy 使用）
	Qty         float64   // 卖出数量（sell 使用）
	SlippageBps int       // 滑点预算（基点）
	Reason      string    // 意图原因（入场评分 / 出场触发器名）
}

// Order 风控通过后的订单，交给执行器
type Order struct {
	ID          string // 唯一 ID
	Strategy    string // 归属策略
	Mint        string
	Symbol      string
	Side        OrderSide
	AmountUSD   float64 // buy：目标金额
	Qty         float64 // sell：目标数量
	SlippageBps int
	Reason      string
	Status      OrderStatus
	SubmittedAt time.Time
	Result      *OrderResult // 终态结果（resolved 后写入）
}

// NewOrder 从风控通过的意图构造订单
func NewOrder(intent OrderIntent, now time.Time) *Order {
	return &Order{
		ID:          uuid.NewString(),
		Strategy:    intent.Strategy,
		Mint:        intent.Mint,
		Symbol:      intent.Symbol,
		Side:        intent.Side,
		AmountUSD:   intent.AmountUSD,
		Qty:         intent.Qty,
		SlippageBps: intent.SlippageBps,
		Reason:      intent.Reason,
		Status:      OrderStatusPending,
		SubmittedAt: now,
	}
}

// Resolve 写入终态结果
// 每个订单只允许一个终态；重复 resolve 返回 false
func (o *Order) Resolve(result *OrderResult) bool {
	if o.Status.IsTerminal() {
		return false
	}
	o.Status = result.Status
	o.Result = result
	return true
}
