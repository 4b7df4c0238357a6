// collect 采集毕业事件与价格轨迹，写入本地 Badger 数据集供回测使用。
// 也可以在 JSON 数组格式和 Badger 库之间互相导入导出。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/dataset"
	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/feed/dexscreener"
	"github.com/late-build/fathom/internal/feed/pumpfun"
	"github.com/late-build/fathom/pkg/config"
	"github.com/late-build/fathom/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径（默认 fathom.yaml）")
		outDir     = flag.String("out", "data/graduations", "数据集 Badger 目录")
		duration   = flag.Duration("duration", 0, "采集时长，0 表示直到收到退出信号")
		importPath = flag.String("import", "", "从 JSON 文件导入数据集后退出")
		exportPath = flag.String("export", "", "导出数据集为 JSON 文件后退出")
		from       = flag.Int64("from", 0, "导出起始时间（unix 秒，0 不限）")
		to         = flag.Int64("to", 0, "导出截止时间（unix 秒，0 不限）")
	)
	flag.Parse()

	if err := logger.InitDefault(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	store, err := dataset.Open(*outDir)
	if err != nil {
		logrus.Errorf("打开数据集失败: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *importPath != "":
		n, err := store.ImportJSON(*importPath)
		if err != nil {
			logrus.Errorf("导入失败: %v", err)
			os.Exit(1)
		}
		logrus.Infof("已导入 %d 条记录: %s -> %s", n, *importPath, *outDir)
	case *exportPath != "":
		n, err := store.ExportJSON(*exportPath, *from, *to)
		if err != nil {
			logrus.Errorf("导出失败: %v", err)
			os.Exit(1)
		}
		logrus.Infof("已导出 %d 条记录: %s -> %s", n, *outDir, *exportPath)
	default:
		if err := collect(*configPath, store, *duration); err != nil {
			logrus.Errorf("采集失败: %v", err)
			os.Exit(1)
		}
	}
}

func collect(configPath string, store *dataset.Store, duration time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Pumpfun.APIKey == "" {
		return fmt.Errorf("缺少 Helius API key（配置 pumpfun.apiKey 或环境变量 HELIUS_API_KEY）")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	rec := newRecorder(store, cfg.Dexscreener.MaxWatch, stop)

	dexClient := dexscreener.NewClient(cfg.Dexscreener.BaseURL)
	priceFeed := dexscreener.NewPriceFeed(cfg.Dexscreener, dexClient)
	monitor := pumpfun.NewMonitor(cfg.Pumpfun, dexClient, priceFeed)

	if err := monitor.Start(ctx, rec); err != nil {
		return fmt.Errorf("启动毕业监控: %w", err)
	}
	if err := priceFeed.Start(ctx, rec); err != nil {
		_ = monitor.Stop(context.Background())
		return fmt.Errorf("启动价格轮询: %w", err)
	}

	logrus.Infof("📡 采集中: out=%s duration=%v（Ctrl-C 结束）", store.Path(), duration)

	flushTicker := time.NewTicker(time.Minute)
	defer flushTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = priceFeed.Stop(stopCtx)
			_ = monitor.Stop(stopCtx)
			n := rec.flush(true)
			logrus.Infof("采集结束: 本次落库 %d 条，总计 %d 条", n, rec.total)
			return nil
		case <-flushTicker.C:
			if n := rec.flush(false); n > 0 {
				logrus.Infof("已落库 %d 条毕业记录", n)
			}
		}
	}
}

// recorder 实现 feed.Sink，把事件流攒成毕业记录
// 各数据源在自己的 goroutine 里发布，这里用锁保护
type recorder struct {
	mu       sync.Mutex
	store    *dataset.Store
	open     map[string]*dataset.Record // mint -> 采集中的记录
	lastSeen map[string]time.Time       // mint -> 最近一次更新
	maxWatch time.Duration
	total    int
	stop     func() // essential 数据源致命故障时终止采集
}

func newRecorder(store *dataset.Store, maxWatch time.Duration, stop func()) *recorder {
	if maxWatch <= 0 {
		maxWatch = 30 * time.Minute
	}
	return &recorder{
		store:    store,
		open:     make(map[string]*dataset.Record),
		lastSeen: make(map[string]time.Time),
		maxWatch: maxWatch,
		stop:     stop,
	}
}

func (r *recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := ev.(type) {
	case domain.Graduation:
		r.onGraduation(e)
	case domain.PriceUpdate:
		r.onPrice(e)
	case domain.DevActivity:
		r.onDevActivity(e)
	case domain.EngineError:
		if e.Fatal {
			logrus.Errorf("数据源致命故障，终止采集: %s", e.Err)
			r.stop()
		} else {
			logrus.Warnf("数据源错误: %s", e.Err)
		}
	}
	return nil
}

func (r *recorder) onGraduation(ev domain.Graduation) {
	if _, ok := r.open[ev.Mint]; ok {
		return
	}
	r.open[ev.Mint] = &dataset.Record{
		Mint:            ev.Mint,
		Symbol:          ev.Symbol,
		GraduatedAt:     ev.Timestamp() / int64(time.Second),
		InitialPriceUSD: ev.InitialPriceUSD,
		SolRaised:       ev.SolRaised,
		HolderCount:     ev.HolderCount,
		Creator:         ev.Creator,
		PoolAddress:     ev.PoolAddress,
		PoolType:        ev.PoolType,
		MarketCapAtGrad: ev.MarketCapUSD,
		LiquidityUSD:    ev.LiquidityUSD,
		Buys1h:          ev.Buys1h,
		Sells1h:         ev.Sells1h,
		PriceChange5m:   ev.PriceChange5m,
		PriceChange1h:   ev.PriceChange1h,
		Top10Pct:        ev.Top10Concentration,
		DevHoldingsPct:  ev.DevHoldingsPct,
		SniperCount:     ev.SniperCount,
		Txns24h:         ev.Txns24h,
	}
	r.lastSeen[ev.Mint] = time.Now()
	logrus.Infof("🎓 新毕业: %s (%s) sol=%.1f", ev.Symbol, ev.Mint, ev.SolRaised)
}

func (r *recorder) onPrice(ev domain.PriceUpdate) {
	rec, ok := r.open[ev.Mint]
	if !ok || ev.PriceUSD <= 0 {
		return
	}
	ts := ev.Timestamp() / int64(time.Second)
	n := len(rec.PriceHistory)
	if n > 0 && rec.PriceHistory[n-1].Timestamp == ts {
		return
	}
	rec.PriceHistory = append(rec.PriceHistory, dataset.PricePoint{
		Timestamp: ts,
		Price:     ev.PriceUSD,
		// 轨迹存 5 分钟窗口成交量，从 24h 滚动量折算
		Volume5m: ev.Volume24h / 288,
	})
	r.lastSeen[ev.Mint] = time.Now()
}

func (r *recorder) onDevActivity(ev domain.DevActivity) {
	rec, ok := r.open[ev.Mint]
	if !ok || ev.Action != domain.DevActionSell {
		return
	}
	if !rec.DevSold {
		rec.DevSold = true
		rec.DevSellPct = ev.AmountPct
		rec.DevSellAt = ev.Timestamp() / int64(time.Second)
		logrus.Warnf("⚠️ dev 卖出: %s pct=%.1f", ev.Mint, ev.AmountPct)
	}
}

// flush 把观察期已结束的记录落库；force 时全部落库
func (r *recorder) flush(force bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	now := time.Now()
	for mint, rec := range r.open {
		if !force && now.Sub(r.lastSeen[mint]) < r.maxWatch {
			continue
		}
		if len(rec.PriceHistory) == 0 {
			// 一条价格轨迹都没有的记录对回测没用
			delete(r.open, mint)
			delete(r.lastSeen, mint)
			continue
		}
		if err := r.store.Put(rec); err != nil {
			logrus.Errorf("写入记录失败 mint=%s: %v", mint, err)
			continue
		}
		delete(r.open, mint)
		delete(r.lastSeen, mint)
		n++
		r.total++
	}
	return n
}
