// Package dexscreener 封装 DexScreener 公开行情 API。
// 既提供毕业时刻的快照查询，也提供毕业后价格的轮询数据源。
package dexscreener

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/late-build/fathom/pkg/ratelimit"
)

var dexLog = logrus.WithField("component", "dexscreener")

// defaultBaseURL DexScreener 公开 API 根地址
const defaultBaseURL = "https://api.dexscreener.com/latest/dex"

// 公开 API 限速约 300 req/min，留出余量
const (
	rateCapacity = 4
	rateRefill   = 4
)

// Pair DexScreener 交易对快照（只保留决策用到的字段）
type Pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	PriceUSD    string `json:"priceUsd"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Txns struct {
		H1 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h1"`
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	PriceChange struct {
		M5 float64 `json:"m5"`
		H1 float64 `json:"h1"`
	} `json:"priceChange"`
	MarketCap float64 `json:"marketCap"`
	FDV       float64 `json:"fdv"`
}

// Txns24h 24 小时交易笔数
func (p *Pair) Txns24h() int { return p.Txns.H24.Buys + p.Txns.H24.Sells }

type tokenResponse struct {
	Pairs []Pair `json:"pairs"`
}

// Client DexScreener REST 客户端
// 带令牌桶限速，公开 API 没有鉴权但有频率限制
type Client struct {
	http    *resty.Client
	limiter ratelimit.RateLimiter
}

// NewClient 创建客户端
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{
		http:    http,
		limiter: ratelimit.NewTokenBucket(rateCapacity, rateRefill, time.Second),
	}
}

// TokenSnapshot 查询某个 mint 当前最优交易对的快照
// 多个交易对时取流动性最深的那个；没有任何交易对返回 nil
func (c *Client) TokenSnapshot(ctx context.Context, mint string) (*Pair, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/tokens/" + mint)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "dexscreener tokens/%s", mint)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("dexscreener tokens/%s: status %d", mint, resp.StatusCode())
	}

	var best *Pair
	for i := range out.Pairs {
		p := &out.Pairs[i]
		if p.ChainID != "solana" {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD {
			best = p
		}
	}
	return best, nil
}
