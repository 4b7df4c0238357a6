// Package feed 定义数据源适配器契约。
// 具体的链上订阅、REST 轮询、限速退避都属于适配器实现，核心只消费事件。
package feed

import (
	"context"

	"github.com/late-build/fathom/internal/domain"
)

// Sink 适配器向引擎发布事件的出口
// live/paper 模式下背后是有界队列：队列满时 Publish 阻塞（不丢事件），
// 直到引擎消费或 ctx 取消
type Sink interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Feed 数据源契约
//
// Start 启动异步采集：适配器自己起 goroutine，通过 sink 发布事件，
// 每个事件的时间戳必须是"事实发生时刻"而不是发布时刻。
// 网络瞬断由适配器内部重试消化；无法恢复的故障通过
// domain.EngineError{Fatal: true} 上报。
// Stop 停止采集并释放资源，由引擎在关闭时按注册逆序调用。
type Feed interface {
	Name() string

	// Essential 标记该数据源是否为本次运行所必需
	// essential feed 致命故障会终止整个 run，否则只停掉该 feed
	Essential() bool

	Start(ctx context.Context, sink Sink) error
	Stop(ctx context.Context) error
}
