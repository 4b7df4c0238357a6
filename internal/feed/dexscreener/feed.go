package dexscreener

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/feed"
)

// FeedName 数据源名称
const FeedName = "dexscreener"

// Config 价格轮询配置
type Config struct {
	BaseURL      string        `yaml:"baseUrl"`
	PollInterval time.Duration `yaml:"pollInterval"`
	// MaxWatch 单个 mint 的最长跟踪时长，超过后自动摘除
	// 毕业币的生命周期以分钟计，不值得一直轮询
	MaxWatch time.Duration `yaml:"maxWatch"`
}

// DefaultConfig 默认轮询配置
func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		MaxWatch:     30 * time.Minute,
	}
}

// PriceFeed 毕业后价格轮询数据源
//
// 自己不决定轮询哪些 mint：毕业监控器在检测到毕业时调用 Watch 挂上，
// 到达 MaxWatch 时限后自动摘除。Watch/Unwatch 可以从任意 goroutine 调用。
type PriceFeed struct {
	cfg    Config
	client *Client

	mu      sync.Mutex
	watched map[string]time.Time // mint -> 开始跟踪时刻

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPriceFeed 创建价格轮询数据源
func NewPriceFeed(cfg Config, client *Client) *PriceFeed {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxWatch <= 0 {
		cfg.MaxWatch = DefaultConfig().MaxWatch
	}
	if client == nil {
		client = NewClient(cfg.BaseURL)
	}
	return &PriceFeed{
		cfg:     cfg,
		client:  client,
		watched: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
}

// Name 数据源名称
func (f *PriceFeed) Name() string { return FeedName }

// Essential 价格源断掉就没法管理持仓，按必需处理
func (f *PriceFeed) Essential() bool { return true }

// Watch 开始跟踪一个 mint 的价格
func (f *PriceFeed) Watch(mint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.watched[mint]; !ok {
		f.watched[mint] = time.Now()
		dexLog.Infof("watching %s", mint)
	}
}

// Unwatch 停止跟踪
func (f *PriceFeed) Unwatch(mint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watched, mint)
}

// Start 启动轮询 goroutine
func (f *PriceFeed) Start(ctx context.Context, sink feed.Sink) error {
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.pollLoop(runCtx, sink)
	dexLog.Infof("price feed started: interval=%v maxWatch=%v", f.cfg.PollInterval, f.cfg.MaxWatch)
	return nil
}

// Stop 停止轮询
func (f *PriceFeed) Stop(ctx context.Context) error {
	if f.cancel != nil {
		f.cancel()
	}
	select {
	case <-f.done:
	case <-ctx.Done():
	}
	return nil
}

func (f *PriceFeed) pollLoop(ctx context.Context, sink feed.Sink) {
	defer close(f.done)
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.pollOnce(ctx, sink)
		}
	}
}

func (f *PriceFeed) pollOnce(ctx context.Context, sink feed.Sink) {
	now := time.Now()
	f.mu.Lock()
	mints := make([]string, 0, len(f.watched))
	for mint, since := range f.watched {
		if now.Sub(since) > f.cfg.MaxWatch {
			delete(f.watched, mint)
			dexLog.Infof("watch expired: %s", mint)
			continue
		}
		mints = append(mints, mint)
	}
	f.mu.Unlock()

	for _, mint := range mints {
		pair, err := f.client.TokenSnapshot(ctx, mint)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			dexLog.Warnf("snapshot failed: %s: %v", mint, err)
			continue
		}
		if pair == nil {
			continue
		}
		price, err := strconv.ParseFloat(pair.PriceUSD, 64)
		if err != nil || price <= 0 {
			continue
		}
		ev := domain.PriceUpdate{
			EventMeta:    domain.NewMeta(time.Now().UnixNano(), FeedName),
			Mint:         mint,
			Symbol:       pair.BaseToken.Symbol,
			PriceUSD:     price,
			Volume24h:    pair.Volume.H24,
			LiquidityUSD: pair.Liquidity.USD,
		}
		if err := sink.Publish(ctx, ev); err != nil {
			return
		}
	}
}
