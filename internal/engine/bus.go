package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/domain"
)

var busLog = logrus.WithField("component", "bus")

// Handler 事件处理函数
type Handler func(ev domain.Event)

// subscription 单个订阅记录
type subscription struct {
	id         int
	opaqueName string // 仅 opaque 订阅使用；空串表示接收全部 opaque
	fn         Handler
}

// Bus 进程内事件总线
//
// 同步派发：Publish 在调用方 goroutine 内按订阅顺序依次调用 handler。
// 引擎保证所有 Publish 都发生在单一决策 goroutine 上，因此这里不加锁；
// 订阅/退订只允许在引擎启动前（bind 阶段）进行。
//
// handler panic 会被捕获并以 EngineError 事件重新发布，
// 不会中断同一事件对其余 handler 的投递。
type Bus struct {
	nextID   int
	handlers map[domain.EventKind][]subscription

	published uint64
	recovered uint64
}

// NewBus 创建空总线
func NewBus() *Bus {
	return &Bus{handlers: make(map[domain.EventKind][]subscription)}
}

// Subscribe 注册某类事件的 handler，返回订阅 ID
func (b *Bus) Subscribe(kind domain.EventKind, fn Handler) int {
	return b.subscribe(kind, "", fn)
}

// SubscribeOpaque 注册按名称路由的 opaque 订阅
// name 为空表示接收所有 opaque 事件
func (b *Bus) SubscribeOpaque(name string, fn Handler) int {
	return b.subscribe(domain.KindOpaque, name, fn)
}

func (b *Bus) subscribe(kind domain.EventKind, name string, fn Handler) int {
	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], subscription{id: b.nextID, opaqueName: name, fn: fn})
	return b.nextID
}

// Unsubscribe 移除订阅
func (b *Bus) Unsubscribe(kind domain.EventKind, id int) {
	subs := b.handlers[kind]
	for i, s := range subs {
		if s.id == id {
			b.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish 将事件派发给所有匹配的 handler
// 投递完成后总线不保留任何事件状态；回放的职责在引擎，不在总线
func (b *Bus) Publish(ev domain.Event) {
	b.published++
	subs := b.handlers[ev.Kind()]
	opaqueName := ""
	if op, ok := ev.(domain.Opaque); ok {
		opaqueName = op.Name
	}
	for _, s := range subs {
		if s.opaqueName != "" && s.opaqueName != opaqueName {
			continue
		}
		b.dispatch(s, ev)
	}
}

// dispatch 调用单个 handler，panic 被隔离为 EngineError 事件
func (b *Bus) dispatch(s subscription, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.recovered++
			busLog.Errorf("handler panic: kind=%s err=%v", ev.Kind(), r)
			// 错误事件自身的 handler panic 不再递归发布
			if ev.Kind() != domain.KindEngineError {
				b.Publish(domain.EngineError{
					EventMeta: domain.EventMeta{TsNano: ev.Timestamp(), Origin: "bus"},
					Err:       fmt.Sprintf("handler panic on %s: %v", ev.Kind(), r),
				})
			}
		}
	}()
	s.fn(ev)
}

// Stats 总线累计统计
func (b *Bus) Stats() (published, recovered uint64) {
	return b.published, b.recovered
}
