// Package config 负责配置文件的加载。
// YAML 文件是唯一事实来源，少数敏感项（API key）允许环境变量兜底；
// .env 文件在进程启动时自动加载。
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/late-build/fathom/internal/backtest"
	"github.com/late-build/fathom/internal/controlplane"
	"github.com/late-build/fathom/internal/engine"
	"github.com/late-build/fathom/internal/executor/paper"
	"github.com/late-build/fathom/internal/feed/dexscreener"
	"github.com/late-build/fathom/internal/feed/pumpfun"
	"github.com/late-build/fathom/internal/risk"
	"github.com/late-build/fathom/pkg/logger"
)

// StrategyEntry 一个启用的策略及其原始配置段
type StrategyEntry struct {
	ID     string         `yaml:"id"`
	Config map[string]any `yaml:"config"`
}

// file 配置文件的原始结构
// 时长字段用字符串（"2s" / "10m"），加载时解析成 time.Duration
type file struct {
	Mode string `yaml:"mode"`

	Logging struct {
		Level      string `yaml:"level"`
		OutputFile string `yaml:"outputFile"`
		MaxSize    int    `yaml:"maxSize"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAge     int    `yaml:"maxAge"`
		Compress   *bool  `yaml:"compress"`
	} `yaml:"logging"`

	Engine struct {
		IngressBuffer     int    `yaml:"ingressBuffer"`
		HeartbeatInterval string `yaml:"heartbeatInterval"`
		ShutdownTimeout   string `yaml:"shutdownTimeout"`
	} `yaml:"engine"`

	Risk    risk.Limits               `yaml:"risk"`
	Breaker risk.CircuitBreakerConfig `yaml:"breaker"`

	Paper struct {
		InitialBalanceUSD float64 `yaml:"initialBalanceUsd"`
		SlippageBps       int     `yaml:"slippageBps"`
		FeeBps            int     `yaml:"feeBps"`
	} `yaml:"paper"`

	Pumpfun struct {
		APIKey          string `yaml:"apiKey"`
		WSURL           string `yaml:"wsUrl"`
		RPCURL          string `yaml:"rpcUrl"`
		PingInterval    string `yaml:"pingInterval"`
		ReconnectDelay  string `yaml:"reconnectDelay"`
		MaxReconnects   int    `yaml:"maxReconnects"`
		TrackDevWallets *bool  `yaml:"trackDevWallets"`
	} `yaml:"pumpfun"`

	Dexscreener struct {
		BaseURL      string `yaml:"baseUrl"`
		PollInterval string `yaml:"pollInterval"`
		MaxWatch     string `yaml:"maxWatch"`
	} `yaml:"dexscreener"`

	ControlPlane controlplane.Config `yaml:"controlPlane"`

	Dashboard struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"dashboard"`

	History struct {
		DBPath string `yaml:"dbPath"`
	} `yaml:"history"`

	Persistence struct {
		Dir string `yaml:"dir"`
	} `yaml:"persistence"`

	Backtest struct {
		Dataset string `yaml:"dataset"` // Badger 数据集目录
		JSON    string `yaml:"json"`    // 或直接用 JSON 文件
		From    int64  `yaml:"from"`    // unix 秒，0 表示不限
		To      int64  `yaml:"to"`
	} `yaml:"backtest"`

	Strategies []StrategyEntry `yaml:"strategies"`
}

// Config 解析完成的运行配置
type Config struct {
	Mode engine.Mode

	Logging      logger.Config
	Engine       engine.Config
	Risk         risk.Limits
	Breaker      risk.CircuitBreakerConfig
	Paper        paper.Config
	Pumpfun      pumpfun.Config
	Dexscreener  dexscreener.Config
	ControlPlane controlplane.Config

	DashboardEnabled bool

	HistoryDBPath  string
	PersistenceDir string

	BacktestDataset string
	BacktestJSON    string
	BacktestFrom    int64
	BacktestTo      int64

	Strategies []StrategyEntry
}

// Load 加载配置文件
// 查找顺序：显式路径 -> FATHOM_CONFIG 环境变量 -> ./fathom.yaml
func Load(path string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("FATHOM_CONFIG")
	}
	explicit := path != ""
	if path == "" {
		path = "fathom.yaml"
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		// 默认路径不存在时退回环境变量和内置默认值
		if os.IsNotExist(err) && !explicit {
			return build(&file{})
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return build(&f)
}

func build(f *file) (*Config, error) {
	cfg := &Config{
		Risk:         f.Risk,
		Breaker:      f.Breaker,
		ControlPlane: f.ControlPlane,

		DashboardEnabled: f.Dashboard.Enabled,
		HistoryDBPath:    f.History.DBPath,
		PersistenceDir:   f.Persistence.Dir,

		BacktestDataset: f.Backtest.Dataset,
		BacktestJSON:    f.Backtest.JSON,
		BacktestFrom:    f.Backtest.From,
		BacktestTo:      f.Backtest.To,

		Strategies: f.Strategies,
	}

	modeStr := f.Mode
	if env := os.Getenv("FATHOM_MODE"); env != "" {
		modeStr = env
	}
	if modeStr == "" {
		modeStr = string(engine.ModePaper)
	}
	mode, err := engine.ParseMode(modeStr)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	// 日志
	cfg.Logging = logger.DefaultConfig()
	if f.Logging.Level != "" {
		cfg.Logging.Level = f.Logging.Level
	}
	cfg.Logging.OutputFile = f.Logging.OutputFile
	if f.Logging.MaxSize > 0 {
		cfg.Logging.MaxSize = f.Logging.MaxSize
	}
	if f.Logging.MaxBackups > 0 {
		cfg.Logging.MaxBackups = f.Logging.MaxBackups
	}
	if f.Logging.MaxAge > 0 {
		cfg.Logging.MaxAge = f.Logging.MaxAge
	}
	if f.Logging.Compress != nil {
		cfg.Logging.Compress = *f.Logging.Compress
	}

	// 引擎
	cfg.Engine = engine.DefaultConfig()
	cfg.Engine.Mode = mode
	if f.Engine.IngressBuffer > 0 {
		cfg.Engine.IngressBuffer = f.Engine.IngressBuffer
	}
	if cfg.Engine.HeartbeatInterval, err = parseDuration(f.Engine.HeartbeatInterval, cfg.Engine.HeartbeatInterval); err != nil {
		return nil, fmt.Errorf("engine.heartbeatInterval: %w", err)
	}
	if cfg.Engine.ShutdownTimeout, err = parseDuration(f.Engine.ShutdownTimeout, cfg.Engine.ShutdownTimeout); err != nil {
		return nil, fmt.Errorf("engine.shutdownTimeout: %w", err)
	}

	// 纸面撮合
	cfg.Paper = paper.DefaultConfig()
	if f.Paper.InitialBalanceUSD > 0 {
		cfg.Paper.InitialBalanceUSD = f.Paper.InitialBalanceUSD
	}
	if f.Paper.SlippageBps > 0 {
		cfg.Paper.SlippageBps = f.Paper.SlippageBps
	}
	if f.Paper.FeeBps > 0 {
		cfg.Paper.FeeBps = f.Paper.FeeBps
	}

	// pump.fun 监控；API key 允许环境变量兜底
	cfg.Pumpfun = pumpfun.DefaultConfig()
	cfg.Pumpfun.APIKey = f.Pumpfun.APIKey
	if cfg.Pumpfun.APIKey == "" {
		cfg.Pumpfun.APIKey = os.Getenv("HELIUS_API_KEY")
	}
	cfg.Pumpfun.WSURL = f.Pumpfun.WSURL
	cfg.Pumpfun.RPCURL = f.Pumpfun.RPCURL
	if cfg.Pumpfun.PingInterval, err = parseDuration(f.Pumpfun.PingInterval, cfg.Pumpfun.PingInterval); err != nil {
		return nil, fmt.Errorf("pumpfun.pingInterval: %w", err)
	}
	if cfg.Pumpfun.ReconnectDelay, err = parseDuration(f.Pumpfun.ReconnectDelay, cfg.Pumpfun.ReconnectDelay); err != nil {
		return nil, fmt.Errorf("pumpfun.reconnectDelay: %w", err)
	}
	if f.Pumpfun.MaxReconnects > 0 {
		cfg.Pumpfun.MaxReconnects = f.Pumpfun.MaxReconnects
	}
	if f.Pumpfun.TrackDevWallets != nil {
		cfg.Pumpfun.TrackDevWallets = *f.Pumpfun.TrackDevWallets
	}

	// DexScreener 轮询
	cfg.Dexscreener = dexscreener.DefaultConfig()
	cfg.Dexscreener.BaseURL = f.Dexscreener.BaseURL
	if cfg.Dexscreener.PollInterval, err = parseDuration(f.Dexscreener.PollInterval, cfg.Dexscreener.PollInterval); err != nil {
		return nil, fmt.Errorf("dexscreener.pollInterval: %w", err)
	}
	if cfg.Dexscreener.MaxWatch, err = parseDuration(f.Dexscreener.MaxWatch, cfg.Dexscreener.MaxWatch); err != nil {
		return nil, fmt.Errorf("dexscreener.maxWatch: %w", err)
	}

	if cfg.Risk.MaxPositions == 0 && cfg.Risk.MaxOrderUSD == 0 {
		cfg.Risk = risk.DefaultLimits()
	}

	return cfg, nil
}

// Validate 校验运行交易引擎所需的配置；纯采集工具不调用
func (c *Config) Validate() error {
	if c.Mode != engine.ModeBacktest && len(c.Strategies) == 0 {
		return fmt.Errorf("no strategies enabled")
	}
	return nil
}

// BacktestConfig 从运行配置导出回测参数
func (c *Config) BacktestConfig() backtest.Config {
	return backtest.Config{
		InitialBalanceUSD: c.Paper.InitialBalanceUSD,
		SlippageBps:       c.Paper.SlippageBps,
		FeeBps:            c.Paper.FeeBps,
		Risk:              c.Risk,
		Breaker:           c.Breaker,
	}
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}
