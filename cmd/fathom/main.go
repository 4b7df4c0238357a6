package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/backtest"
	"github.com/late-build/fathom/internal/controlplane"
	"github.com/late-build/fathom/internal/dashboard"
	"github.com/late-build/fathom/internal/dataset"
	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/engine"
	"github.com/late-build/fathom/internal/executor/paper"
	"github.com/late-build/fathom/internal/feed/dexscreener"
	"github.com/late-build/fathom/internal/feed/pumpfun"
	"github.com/late-build/fathom/internal/history"
	"github.com/late-build/fathom/internal/position"
	"github.com/late-build/fathom/internal/risk"
	"github.com/late-build/fathom/internal/strategy"
	"github.com/late-build/fathom/pkg/config"
	"github.com/late-build/fathom/pkg/logger"
	"github.com/late-build/fathom/pkg/persistence"
	"github.com/late-build/fathom/pkg/shutdown"

	// 导入策略包以触发 init() 注册
	_ "github.com/late-build/fathom/internal/strategies/logonly"
	_ "github.com/late-build/fathom/internal/strategies/sniper"
)

// 看板上保留的最近平仓记录条数
const recentTradesKeep = 50

func main() {
	configPath := flag.String("config", "", "配置文件路径（默认 fathom.yaml，或 FATHOM_CONFIG）")
	modeFlag := flag.String("mode", "", "运行模式覆盖：live | paper | backtest")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *modeFlag != "" {
		mode, err := engine.ParseMode(*modeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "无效的运行模式: %v\n", err)
			os.Exit(1)
		}
		cfg.Mode = mode
		cfg.Engine.Mode = mode
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置校验失败: %v\n", err)
		os.Exit(1)
	}

	// 看板占用终端时日志只写文件
	cfg.Logging.ConsoleQuiet = cfg.DashboardEnabled && cfg.Mode != engine.ModeBacktest
	if err := logger.Init(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if cfg.Mode == engine.ModeBacktest {
		if err := runBacktest(cfg); err != nil {
			logrus.Errorf("回测失败: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		logrus.Errorf("运行失败: %v", err)
		os.Exit(1)
	}
}

// run 组装并运行 live / paper 模式
func run(cfg *config.Config) error {
	logrus.Infof("🚀 启动 fathom: mode=%s strategies=%d", cfg.Mode, len(cfg.Strategies))

	clock := engine.WallClock{}
	positions := position.NewManager(clock)
	breaker := risk.NewCircuitBreaker(cfg.Breaker)
	riskMgr := risk.NewManager(cfg.Risk, breaker)

	rt := strategy.NewRuntime(clock, riskMgr, positions)
	for _, ent := range cfg.Strategies {
		s, err := strategy.Build(ent.ID, ent.Config)
		if err != nil {
			return fmt.Errorf("构建策略 %s: %w", ent.ID, err)
		}
		if err := rt.Add(s); err != nil {
			return fmt.Errorf("挂载策略 %s: %w", ent.ID, err)
		}
		logrus.Infof("✅ 策略已挂载: %s", ent.ID)
	}

	eng := engine.New(cfg.Engine, clock, positions, rt)

	// 执行层：live 模式的链上签名执行尚未接入，先用纸面撮合跑全链路
	exec := paper.New(cfg.Paper, clock)
	if cfg.Mode == engine.ModeLive {
		logrus.Warnf("📝 live 模式当前仍使用纸面执行器，不会发出真实交易")
	}

	var paperState persistence.Store
	if cfg.PersistenceDir != "" {
		svc := persistence.NewJSONFileService(cfg.PersistenceDir)
		paperState = svc.NewStore("state", "paper", string(cfg.Mode))
		var st paper.State
		switch err := paperState.Load(&st); err {
		case nil:
			exec.RestoreState(st)
			logrus.Infof("已恢复纸面账户: balance=%.2f holdings=%d", st.BalanceUSD, len(st.Holdings))
		case persistence.ErrNotExists:
		default:
			logrus.Warnf("恢复纸面账户失败: %v", err)
		}
	}
	eng.BindExecutor(exec)

	// 成交历史落库；当日已实现盈亏计入熔断器，重启不清零
	var trades *history.Store
	if cfg.HistoryDBPath != "" {
		var err error
		trades, err = history.Open(cfg.HistoryDBPath)
		if err != nil {
			return fmt.Errorf("打开成交历史库: %w", err)
		}
		if pnl, err := trades.DailyPnLUSD(time.Now()); err != nil {
			logrus.Warnf("读取当日盈亏失败: %v", err)
		} else if !pnl.IsZero() {
			breaker.AddPnLUSD(pnl.InexactFloat64())
			logrus.Infof("熔断器已恢复当日盈亏: %s", pnl.StringFixed(2))
		}
	}

	// recentTrades 只在决策 goroutine（OnClosed / 心跳订阅）上读写
	var recentTrades []domain.ClosedTrade
	positions.OnClosed(func(trade domain.ClosedTrade) {
		breaker.AddPnLUSD(trade.PnLUSD.InexactFloat64())
		recentTrades = append([]domain.ClosedTrade{trade}, recentTrades...)
		if len(recentTrades) > recentTradesKeep {
			recentTrades = recentTrades[:recentTradesKeep]
		}
		if trades != nil {
			if err := trades.Record(trade); err != nil {
				logrus.Errorf("写入成交历史失败: %v", err)
			}
		}
	})

	// 数据源：pump.fun 毕业监控 + DexScreener 价格轮询
	if cfg.Pumpfun.APIKey == "" {
		return fmt.Errorf("缺少 Helius API key（配置 pumpfun.apiKey 或环境变量 HELIUS_API_KEY）")
	}
	dexClient := dexscreener.NewClient(cfg.Dexscreener.BaseURL)
	priceFeed := dexscreener.NewPriceFeed(cfg.Dexscreener, dexClient)
	monitor := pumpfun.NewMonitor(cfg.Pumpfun, dexClient, priceFeed)
	eng.AddFeed(monitor)
	eng.AddFeed(priceFeed)

	tracker := controlplane.NewTracker(string(cfg.Mode))
	var api *controlplane.Server
	if cfg.ControlPlane.Addr != "" {
		api = controlplane.NewServer(cfg.ControlPlane, tracker, trades)
		if err := api.Start(); err != nil {
			return fmt.Errorf("启动状态 API: %w", err)
		}
		logrus.Infof("📊 状态 API 已启动: %s", cfg.ControlPlane.Addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var dash *dashboard.Dashboard
	if cfg.DashboardEnabled {
		dash = dashboard.New()
		dash.Start(ctx)
	}

	// 每次心跳刷新状态镜像；该回调与仓位、策略同在决策 goroutine 上
	startedAt := time.Now()
	eng.Bus().Subscribe(domain.KindHeartbeat, func(domain.Event) {
		snaps := positions.Snapshots()
		daily := breaker.DailyPnLUSD()
		halted := breaker.IsHalted()
		tracker.Update(snaps, daily, halted)
		if dash != nil {
			dash.Push(&dashboard.Snapshot{
				Mode:        string(cfg.Mode),
				StartedAt:   startedAt,
				BalanceUSD:  exec.BalanceUSD(),
				EquityUSD:   exec.EquityUSD(),
				DailyPnLUSD: daily,
				Halted:      halted,
				Positions:   snaps,
				Trades:      recentTrades,
			})
		}
	})

	// 收尾回调按注册逆序执行
	sd := shutdown.NewManager()
	if trades != nil {
		sd.OnShutdown("history", func(context.Context) error {
			return trades.Close()
		})
	}
	if paperState != nil {
		sd.OnShutdown("paper-state", func(context.Context) error {
			return paperState.Save(exec.SnapshotState())
		})
	}
	if api != nil {
		sd.OnShutdown("controlplane", api.Shutdown)
	}
	if dash != nil {
		sd.OnShutdown("dashboard", func(ctx context.Context) error {
			dash.Stop(ctx)
			return nil
		})
	}

	runErr := eng.Run(ctx)

	sdCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownTimeout)
	defer cancel()
	sd.Shutdown(sdCtx)

	if runErr != nil {
		return runErr
	}
	logrus.Info("👋 fathom 已退出")
	return nil
}

// runBacktest 在历史数据集上回放单个策略
func runBacktest(cfg *config.Config) error {
	records, err := loadRecords(cfg)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("数据集为空")
	}

	if len(cfg.Strategies) == 0 {
		return fmt.Errorf("回测需要在 strategies 配置至少一个策略")
	}
	if len(cfg.Strategies) > 1 {
		logrus.Warnf("回测一次只跑一个策略，使用第一个: %s", cfg.Strategies[0].ID)
	}
	ent := cfg.Strategies[0]
	s, err := strategy.Build(ent.ID, ent.Config)
	if err != nil {
		return fmt.Errorf("构建策略 %s: %w", ent.ID, err)
	}

	logrus.Infof("开始回测: strategy=%s records=%d", ent.ID, len(records))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := backtest.NewRunner(cfg.BacktestConfig(), s, records)
	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Print(result.Report())
	return nil
}

func loadRecords(cfg *config.Config) ([]*dataset.Record, error) {
	switch {
	case cfg.BacktestJSON != "":
		records, err := dataset.LoadJSON(cfg.BacktestJSON)
		if err != nil {
			return nil, fmt.Errorf("加载 JSON 数据集: %w", err)
		}
		return filterByTime(records, cfg.BacktestFrom, cfg.BacktestTo), nil
	case cfg.BacktestDataset != "":
		store, err := dataset.Open(cfg.BacktestDataset)
		if err != nil {
			return nil, fmt.Errorf("打开数据集: %w", err)
		}
		defer store.Close()
		records, err := store.All(cfg.BacktestFrom, cfg.BacktestTo)
		if err != nil {
			return nil, fmt.Errorf("读取数据集: %w", err)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("回测需要配置 backtest.json 或 backtest.dataset")
	}
}

func filterByTime(records []*dataset.Record, from, to int64) []*dataset.Record {
	if from == 0 && to == 0 {
		return records
	}
	out := records[:0]
	for _, rec := range records {
		if from > 0 && rec.GraduatedAt < from {
			continue
		}
		if to > 0 && rec.GraduatedAt > to {
			continue
		}
		out = append(out, rec)
	}
	return out
}
