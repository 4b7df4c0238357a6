// Package engine 实现事件驱动的执行核心。
// 同一个决策路径服务 live / paper / backtest 三种模式，
// 模式间的差异被压缩在时钟、数据源和执行器三个注入点上。
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/executor"
	"github.com/late-build/fathom/internal/feed"
	"github.com/late-build/fathom/internal/position"
	"github.com/late-build/fathom/internal/strategy"
)

var engLog = logrus.WithField("component", "engine")

// Mode 引擎运行模式
type Mode string

const (
	ModeLive     Mode = "live"
	ModePaper    Mode = "paper"
	ModeBacktest Mode = "backtest"
)

// ParseMode 解析模式字符串
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLive, ModePaper, ModeBacktest:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown engine mode %q (want live|paper|backtest)", s)
}

// 引擎生命周期状态，单向推进且一次性
const (
	stateCreated int32 = iota
	stateRunning
	stateStopping
	stateStopped
)

// Config 引擎运行参数
type Config struct {
	Mode              Mode          `yaml:"mode"`
	IngressBuffer     int           `yaml:"ingressBuffer"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// DefaultConfig 默认引擎参数
func DefaultConfig() Config {
	return Config{
		Mode:              ModePaper,
		IngressBuffer:     4096,
		HeartbeatInterval: time.Second,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Engine 事件引擎
//
// 所有事件投递、策略回调、仓位与风控逻辑都在 Run 的单一 goroutine
// 上顺序执行，核心路径不需要锁。数据源在自己的 goroutine 里生产，
// 通过有界入口队列汇入；队列满时生产方阻塞，事件不丢。
type Engine struct {
	cfg   Config
	clock Clock
	bus   *Bus

	ingress chan domain.Event
	pending []domain.Event // 投递过程中注入的事件，按 FIFO 在下一条历史事件前排空

	feeds     []feed.Feed
	feedAlive map[string]bool
	exec      executor.Executor
	runtime   *strategy.Runtime
	positions *position.Manager

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}

	delivered uint64
}

// New 创建引擎
func New(cfg Config, clock Clock, positions *position.Manager, runtime *strategy.Runtime) *Engine {
	if cfg.IngressBuffer <= 0 {
		cfg.IngressBuffer = DefaultConfig().IngressBuffer
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	return &Engine{
		cfg:       cfg,
		clock:     clock,
		bus:       NewBus(),
		ingress:   make(chan domain.Event, cfg.IngressBuffer),
		feedAlive: make(map[string]bool),
		positions: positions,
		runtime:   runtime,
		done:      make(chan struct{}),
	}
}

// Clock 暴露引擎时钟（供装配阶段传给别的组件）
func (e *Engine) Clock() Clock { return e.clock }

// Bus 暴露事件总线（仅限装配阶段订阅）
func (e *Engine) Bus() *Bus { return e.bus }

// AddFeed 注册一个数据源；启动按注册顺序，停止按逆序
func (e *Engine) AddFeed(f feed.Feed) {
	e.feeds = append(e.feeds, f)
	e.feedAlive[f.Name()] = true
}

// BindExecutor 绑定执行器
func (e *Engine) BindExecutor(exec executor.Executor) {
	e.exec = exec
	e.runtime.BindExecutor(exec)
	exec.Bind(e)
}

// Publish 数据源入口（feed.Sink）
// 队列满时阻塞而不是丢弃，直到引擎消费或 ctx 取消
func (e *Engine) Publish(ctx context.Context, ev domain.Event) error {
	select {
	case e.ingress <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishResult 执行器结果入口（executor.ResultSink）
// 回测模式下执行器在决策 goroutine 上同步回调，结果进 pending 队列，
// 保证在下一条历史事件之前排空；其余模式走入口队列
func (e *Engine) PublishResult(ctx context.Context, result domain.OrderResult) {
	if e.cfg.Mode == ModeBacktest {
		e.pending = append(e.pending, result)
		return
	}
	if err := e.Publish(ctx, result); err != nil {
		engLog.Errorf("order result dropped on shutdown: order=%s err=%v", result.OrderID, err)
	}
}

// bind 按固定顺序注册总线订阅
// 仓位管理器先于策略，策略回调里看到的仓位状态总是最新的
func (e *Engine) bind() {
	e.bus.Subscribe(domain.KindGraduation, func(ev domain.Event) {
		grad := ev.(domain.Graduation)
		e.positions.OnGraduation(grad)
		// 毕业快照里的初始价就是该 mint 的第一个观测价，
		// 不等第一个价格事件就让执行器可以撮合入场单
		if tracker, ok := e.exec.(executor.PriceTracker); ok && grad.InitialPriceUSD > 0 {
			tracker.TrackPrice(domain.PriceUpdate{
				EventMeta: grad.EventMeta,
				Mint:      grad.Mint,
				Symbol:    grad.Symbol,
				PriceUSD:  grad.InitialPriceUSD,
			})
		}
	})
	e.bus.Subscribe(domain.KindPriceUpdate, func(ev domain.Event) {
		pu := ev.(domain.PriceUpdate)
		if tracker, ok := e.exec.(executor.PriceTracker); ok {
			tracker.TrackPrice(pu)
		}
		e.positions.OnPriceUpdate(pu)
	})
	e.bus.Subscribe(domain.KindDevActivity, func(ev domain.Event) {
		e.positions.OnDevActivity(ev.(domain.DevActivity))
	})
	e.bus.Subscribe(domain.KindHeartbeat, func(ev domain.Event) {
		e.positions.OnHeartbeat(ev.(domain.Heartbeat))
	})
	e.bus.Subscribe(domain.KindOrderResult, func(ev domain.Event) {
		e.positions.OnOrderResult(ev.(domain.OrderResult))
	})

	e.bus.Subscribe(domain.KindPriceUpdate, func(ev domain.Event) {
		e.runtime.DispatchPrice(ev.(domain.PriceUpdate))
	})
	e.bus.Subscribe(domain.KindGraduation, func(ev domain.Event) {
		e.runtime.DispatchGraduation(ev.(domain.Graduation))
	})
	e.bus.Subscribe(domain.KindDevActivity, func(ev domain.Event) {
		e.runtime.DispatchDevActivity(ev.(domain.DevActivity))
	})
	e.bus.Subscribe(domain.KindOrderResult, func(ev domain.Event) {
		e.runtime.DispatchOrderResult(ev.(domain.OrderResult))
	})
	e.bus.SubscribeOpaque("", func(ev domain.Event) {
		e.runtime.DispatchOpaque(ev.(domain.Opaque))
	})

	e.bus.Subscribe(domain.KindEngineError, func(ev domain.Event) {
		e.onEngineError(ev.(domain.EngineError))
	})
}

// onEngineError 处理运行错误事件
// 非致命错误只记日志；致命错误停掉来源 feed，
// 来源是 essential feed（或引擎自身）时终止整个 run
func (e *Engine) onEngineError(ev domain.EngineError) {
	if !ev.Fatal {
		engLog.Warnf("runtime error: origin=%s err=%s", ev.Source(), ev.Err)
		return
	}
	engLog.Errorf("fatal error: origin=%s err=%s", ev.Source(), ev.Err)
	essential := true
	for _, f := range e.feeds {
		if f.Name() != ev.Source() {
			continue
		}
		essential = f.Essential()
		if e.feedAlive[f.Name()] {
			e.feedAlive[f.Name()] = false
			stopCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
			if err := f.Stop(stopCtx); err != nil {
				engLog.Errorf("feed stop failed: %s: %v", f.Name(), err)
			}
			cancel()
		}
		break
	}
	if essential {
		e.Stop()
	}
}

// deliver 投递一条事件并排空期间注入的事件
func (e *Engine) deliver(ev domain.Event) {
	if rc, ok := e.clock.(*ReplayClock); ok {
		rc.Advance(ev.Timestamp())
	}
	e.delivered++
	e.bus.Publish(ev)
	for len(e.pending) > 0 {
		next := e.pending[0]
		e.pending = e.pending[1:]
		e.delivered++
		e.bus.Publish(next)
	}
}

// Run 启动引擎并阻塞到停止（live / paper 模式）
// 引擎是一次性的：停止后不能再次 Run
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.Mode == ModeBacktest {
		return fmt.Errorf("backtest mode runs via RunReplay")
	}
	if !e.state.CompareAndSwap(stateCreated, stateRunning) {
		return fmt.Errorf("engine already started")
	}
	defer close(e.done)
	defer e.state.Store(stateStopped)

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	defer cancel()

	e.bind()
	e.runtime.Start(runCtx)

	for _, f := range e.feeds {
		if err := f.Start(runCtx, e); err != nil {
			e.shutdown(runCtx)
			return fmt.Errorf("start feed %s: %w", f.Name(), err)
		}
		engLog.Infof("feed started: %s essential=%v", f.Name(), f.Essential())
	}

	// 心跳让超时出场不依赖价格事件的到来
	ticker := time.NewTicker(e.cfg.HeartbeatInterval)
	defer ticker.Stop()

	engLog.Infof("engine running: mode=%s feeds=%d", e.cfg.Mode, len(e.feeds))
	for {
		select {
		case <-runCtx.Done():
			e.shutdown(context.Background())
			return nil
		case <-ticker.C:
			e.deliver(domain.Heartbeat{
				EventMeta: domain.NewMeta(e.clock.NowNano(), "engine"),
			})
		case ev := <-e.ingress:
			e.deliver(ev)
		}
	}
}

// Stop 请求停止；可以从任意 goroutine 调用，幂等
func (e *Engine) Stop() {
	if e.state.CompareAndSwap(stateRunning, stateStopping) {
		if e.cancel != nil {
			e.cancel()
		}
	}
}

// Done 在引擎完全停止后关闭
func (e *Engine) Done() <-chan struct{} { return e.done }

// shutdown 按注册逆序停 feed，再收尾执行器和策略
func (e *Engine) shutdown(ctx context.Context) {
	e.state.Store(stateStopping)
	stopCtx, cancel := context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
	defer cancel()

	for i := len(e.feeds) - 1; i >= 0; i-- {
		f := e.feeds[i]
		if !e.feedAlive[f.Name()] {
			continue
		}
		e.feedAlive[f.Name()] = false
		if err := f.Stop(stopCtx); err != nil {
			engLog.Errorf("feed stop failed: %s: %v", f.Name(), err)
		}
	}
	if e.exec != nil {
		if err := e.exec.Close(stopCtx); err != nil {
			engLog.Errorf("executor close failed: %v", err)
		}
	}
	e.runtime.Stop()

	published, recovered := e.bus.Stats()
	engLog.Infof("engine stopped: delivered=%d published=%d recovered=%d", e.delivered, published, recovered)
}
