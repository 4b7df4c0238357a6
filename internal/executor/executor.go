// Package executor 定义订单执行契约。
// 真实链上路由、纸面模拟、回测模拟都是它的实现；
// 对策略而言模拟成交和真实成交不可区分。
package executor

import (
	"context"

	"github.com/late-build/fathom/internal/domain"
)

// ResultSink 执行器发布终态 OrderResult 的出口
// live/paper 下由引擎接到入口队列；backtest 下是同步注入，保证确定性
type ResultSink interface {
	PublishResult(ctx context.Context, result domain.OrderResult)
}

// Executor 订单执行契约
//
// Submit 异步执行：调用立即返回，每个订单最终恰好产生一个终态
// OrderResult（filled / partial / rejected / failed），绝不静默丢单。
// Cancel 尝试取消未终态的订单，返回是否取消成功。
// Close 等待在途提交收尾并释放资源，由引擎关闭时调用。
type Executor interface {
	Name() string
	Bind(sink ResultSink)
	Submit(ctx context.Context, order *domain.Order) error
	Cancel(ctx context.Context, orderID string) bool
	Close(ctx context.Context) error
}

// PriceTracker 可选能力：需要跟踪最新价格的执行器实现它，
// 引擎会把 PriceUpdate 事件转发过来（bbgo 风格的可选接口探测）
type PriceTracker interface {
	TrackPrice(ev domain.PriceUpdate)
}
