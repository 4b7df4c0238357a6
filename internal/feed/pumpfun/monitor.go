// Package pumpfun 实现 pump.fun 毕业监控数据源。
// 通过 Helius WebSocket 订阅 pump.fun 和 PumpSwap 程序日志，
// 检测 bonding curve 毕业，补全链上快照后发布毕业事件。
package pumpfun

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/internal/domain"
	"github.com/late-build/fathom/internal/feed"
	"github.com/late-build/fathom/internal/feed/dexscreener"
	"github.com/late-build/fathom/pkg/sigchan"
	"github.com/late-build/fathom/pkg/syncgroup"
)

var pfLog = logrus.WithField("component", "pumpfun")

// FeedName 数据源名称
const FeedName = "pumpfun"

// 链上程序地址
const (
	pumpFunProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	pumpSwapAMM    = "PSwapMdSai8tjrEXcxFeQth87xC4rRsa4VA5mhGhXkP"
	raydiumAMMV4   = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	wrappedSOL     = "So11111111111111111111111111111111111111112"
)

// Config 毕业监控配置
type Config struct {
	APIKey string `yaml:"apiKey"`
	WSURL  string `yaml:"wsUrl"`  // 留空时用 Helius mainnet
	RPCURL string `yaml:"rpcUrl"` // 留空时用 Helius mainnet

	PingInterval    time.Duration `yaml:"pingInterval"`
	ReconnectDelay  time.Duration `yaml:"reconnectDelay"`
	MaxReconnects   int           `yaml:"maxReconnects"`
	TrackDevWallets bool          `yaml:"trackDevWallets"`
}

// DefaultConfig 默认监控配置
func DefaultConfig() Config {
	return Config{
		PingInterval:    10 * time.Second,
		ReconnectDelay:  5 * time.Second,
		MaxReconnects:   10,
		TrackDevWallets: true,
	}
}

// Watcher 毕业后价格跟踪的挂载点（由价格轮询数据源实现）
type Watcher interface {
	Watch(mint string)
}

// Monitor pump.fun 毕业监控器
// 重连是信号驱动的：读循环和 PING 循环发现连接异常时发信号，
// 由单独的重连 goroutine 串行处理，超过上限报致命错误
type Monitor struct {
	cfg     Config
	enrich  *dexscreener.Client
	watcher Watcher
	rpc     *rpcClient

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	reconnectC *sigchan.Chan
	reconnects int

	sink   feed.Sink
	ctx    context.Context
	cancel context.CancelFunc
	sg     *syncgroup.SyncGroup

	devMu      sync.RWMutex
	devWallets map[string]string // creator -> mint

	graduations int
	wsMessages  int
}

// NewMonitor 创建毕业监控器
func NewMonitor(cfg Config, enrich *dexscreener.Client, watcher Watcher) *Monitor {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultConfig().PingInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultConfig().ReconnectDelay
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = DefaultConfig().MaxReconnects
	}
	if enrich == nil {
		enrich = dexscreener.NewClient("")
	}
	return &Monitor{
		cfg:        cfg,
		enrich:     enrich,
		watcher:    watcher,
		rpc:        newRPCClient(cfg.RPCURL, cfg.APIKey),
		reconnectC: sigchan.New(1),
		sg:         syncgroup.NewSyncGroup(),
		devWallets: make(map[string]string),
	}
}

// Name 数据源名称
func (m *Monitor) Name() string { return FeedName }

// Essential 毕业事件是狙击策略的生命线
func (m *Monitor) Essential() bool { return true }

// Start 连接 WebSocket 并启动监控 goroutine
func (m *Monitor) Start(ctx context.Context, sink feed.Sink) error {
	m.sink = sink
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.connect(); err != nil {
		return err
	}

	m.sg.Add(func() { m.readLoop() })
	m.sg.Add(func() { m.pingLoop() })
	m.sg.Add(func() { m.reconnector() })
	m.sg.Run()

	pfLog.Infof("毕业监控已启动: trackDev=%v", m.cfg.TrackDevWallets)
	return nil
}

// Stop 停止监控并等待 goroutine 退出
func (m *Monitor) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	m.closed = true
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.sg.WaitAndClear()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	pfLog.Infof("毕业监控已停止: graduations=%d wsMsgs=%d", m.graduations, m.wsMessages)
	return nil
}

// connect 建立连接并订阅两个程序的日志
func (m *Monitor) connect() error {
	wsURL := m.cfg.WSURL
	if wsURL == "" {
		wsURL = "wss://mainnet.helius-rpc.com/?api-key=" + m.cfg.APIKey
	}

	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "dial helius ws")
	}

	// bonding curve 交易 + 毕业建池，两路订阅
	subs := []map[string]any{
		{
			"jsonrpc": "2.0", "id": 1, "method": "logsSubscribe",
			"params": []any{
				map[string]any{"mentions": []string{pumpFunProgram}},
				map[string]any{"commitment": "confirmed"},
			},
		},
		{
			"jsonrpc": "2.0", "id": 2, "method": "logsSubscribe",
			"params": []any{
				map[string]any{"mentions": []string{pumpSwapAMM}},
				map[string]any{"commitment": "confirmed"},
			},
		},
	}
	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			return pkgerrors.Wrap(err, "subscribe program logs")
		}
	}

	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.conn = conn
	m.closed = false
	m.mu.Unlock()

	pfLog.Infof("WebSocket 已连接并订阅程序日志")
	return nil
}

// triggerReconnect 发出重连信号；信号已在途时自动合并
func (m *Monitor) triggerReconnect() {
	m.reconnectC.Emit()
}

// reconnector 串行处理重连信号
func (m *Monitor) reconnector() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectC.C():
			m.reconnects++
			if m.reconnects > m.cfg.MaxReconnects {
				pfLog.Errorf("重连超过上限 %d 次，放弃", m.cfg.MaxReconnects)
				m.fatal("websocket reconnect limit exceeded")
				return
			}
			pfLog.Warnf("收到重连信号，冷却 %v (第 %d/%d 次)...",
				m.cfg.ReconnectDelay, m.reconnects, m.cfg.MaxReconnects)

			select {
			case <-m.ctx.Done():
				return
			case <-time.After(m.cfg.ReconnectDelay):
			}

			if err := m.connect(); err != nil {
				pfLog.Warnf("重连失败: %v，将再次尝试", err)
				m.triggerReconnect()
				continue
			}
			m.reconnects = 0
			// 老的读循环已随断线退出，给新连接补一个
			m.sg.Go(func() { m.readLoop() })
		}
	}
}

// fatal 上报致命故障，由引擎决定是否终止本次运行
func (m *Monitor) fatal(msg string) {
	ev := domain.EngineError{
		EventMeta: domain.NewMeta(time.Now().UnixNano(), FeedName),
		Err:       msg,
		Fatal:     true,
	}
	if err := m.sink.Publish(m.ctx, ev); err != nil {
		pfLog.Errorf("上报致命错误失败: %v", err)
	}
}

// pingLoop 周期 PING 保活，失败即触发重连
func (m *Monitor) pingLoop() {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.mu.RLock()
			conn, closed := m.conn, m.closed
			m.mu.RUnlock()
			if closed || conn == nil {
				continue
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				if m.ctx.Err() != nil {
					return
				}
				pfLog.Warnf("发送 PING 失败: %v，触发重连", err)
				m.triggerReconnect()
			}
		}
	}
}

// readLoop 读取并分发日志通知；连接断开时退出并交给重连器
func (m *Monitor) readLoop() {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.mu.RLock()
			closed := m.closed
			m.mu.RUnlock()
			if closed {
				return
			}
			pfLog.Warnf("读取消息失败: %v，触发重连", err)
			m.triggerReconnect()
			return
		}
		m.wsMessages++
		m.handleMessage(raw)
	}
}

// logsNotification Helius logsSubscribe 推送的消息体
type logsNotification struct {
	Params struct {
		Result struct {
			Value struct {
				Signature string   `json:"signature"`
				Logs      []string `json:"logs"`
				Err       any      `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// handleMessage 解析单条日志通知
// 毕业 = PumpSwap / Raydium 上的建池指令；dev 砸盘 = 被跟踪钱包的 Sell
func (m *Monitor) handleMessage(raw []byte) {
	var msg logsNotification
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	value := msg.Params.Result.Value
	if len(value.Logs) == 0 || value.Err != nil {
		return
	}
	joined := strings.Join(value.Logs, " ")

	if strings.Contains(joined, "CreatePool") || strings.Contains(joined, "Initialize") {
		if strings.Contains(joined, pumpSwapAMM) || strings.Contains(joined, raydiumAMMV4) {
			m.handleGraduation(value.Signature, joined)
			return
		}
	}
	if m.cfg.TrackDevWallets && strings.Contains(joined, "Sell") {
		m.handleDevActivity(value.Signature, joined)
	}
}

// handleGraduation 处理一次毕业：解析交易拿 mint 和 creator，
// 从 DexScreener 补全快照字段后发布事件
func (m *Monitor) handleGraduation(signature, logs string) {
	ctx, cancel := context.WithTimeout(m.ctx, 15*time.Second)
	defer cancel()

	tx, err := m.rpc.transaction(ctx, signature)
	if err != nil {
		pfLog.Warnf("获取毕业交易失败: %s: %v", signature, err)
		return
	}
	mint, creator := tx.tokenMint(), tx.feePayer()
	if mint == "" {
		return
	}

	poolType := "pumpswap"
	if strings.Contains(logs, raydiumAMMV4) {
		poolType = "raydium"
	}

	ev := domain.Graduation{
		EventMeta: domain.NewMeta(time.Now().UnixNano(), FeedName),
		Mint:      mint,
		PoolType:  poolType,
		Creator:   creator,
	}

	// 快照字段尽力补全；DexScreener 尚未收录时照样发事件，
	// 策略的硬过滤会处理缺字段的情况
	if pair, err := m.enrich.TokenSnapshot(ctx, mint); err == nil && pair != nil {
		ev.Symbol = pair.BaseToken.Symbol
		ev.PoolAddress = pair.PairAddress
		ev.InitialPriceUSD = parsePrice(pair.PriceUSD)
		ev.MarketCapUSD = pair.MarketCap
		if ev.MarketCapUSD == 0 {
			ev.MarketCapUSD = pair.FDV
		}
		ev.LiquidityUSD = pair.Liquidity.USD
		ev.Buys1h = pair.Txns.H1.Buys
		ev.Sells1h = pair.Txns.H1.Sells
		ev.PriceChange5m = pair.PriceChange.M5
		ev.PriceChange1h = pair.PriceChange.H1
		ev.Txns24h = pair.Txns24h()
	}

	m.graduations++
	if m.cfg.TrackDevWallets && creator != "" {
		m.devMu.Lock()
		m.devWallets[creator] = mint
		m.devMu.Unlock()
	}

	if err := m.sink.Publish(m.ctx, ev); err != nil {
		return
	}
	if m.watcher != nil {
		m.watcher.Watch(mint)
	}
	pfLog.Infof("毕业: %s (%s) pool=%s price=$%.8f liq=$%.0f",
		ev.Symbol, mint, poolType, ev.InitialPriceUSD, ev.LiquidityUSD)
}

// handleDevActivity 检测被跟踪 dev 钱包的卖出
func (m *Monitor) handleDevActivity(signature, logs string) {
	m.devMu.RLock()
	var creator, mint string
	for c, mnt := range m.devWallets {
		if strings.Contains(logs, c) {
			creator, mint = c, mnt
			break
		}
	}
	m.devMu.RUnlock()
	if creator == "" {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()
	pct := 0.0
	if tx, err := m.rpc.transaction(ctx, signature); err == nil {
		pct = tx.sellPct(mint, creator)
	}

	ev := domain.DevActivity{
		EventMeta: domain.NewMeta(time.Now().UnixNano(), FeedName),
		Mint:      mint,
		Creator:   creator,
		Action:    domain.DevActionSell,
		AmountPct: pct,
	}
	if err := m.sink.Publish(m.ctx, ev); err != nil {
		return
	}
	pfLog.Warnf("dev 卖出: mint=%s creator=%s pct=%.1f", mint, creator, pct)
}
