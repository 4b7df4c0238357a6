package pumpfun

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"

	"github.com/late-build/fathom/pkg/ratelimit"
)

// Helius 免费档约 10 rps
const rpcRatePerSecond = 10

// rpcClient 精简的 Solana JSON-RPC 客户端，只覆盖毕业解析需要的查询
type rpcClient struct {
	http    *resty.Client
	limiter ratelimit.RateLimiter
}

func newRPCClient(rpcURL, apiKey string) *rpcClient {
	if rpcURL == "" {
		rpcURL = "https://mainnet.helius-rpc.com/?api-key=" + apiKey
	}
	return &rpcClient{
		http: resty.New().
			SetBaseURL(rpcURL).
			SetTimeout(15 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
		limiter: ratelimit.NewTokenBucket(rpcRatePerSecond, rpcRatePerSecond, time.Second),
	}
}

// tokenBalance 交易前后的 token 余额条目
type tokenBalance struct {
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		UIAmount float64 `json:"uiAmount"`
	} `json:"uiTokenAmount"`
}

// txInfo getTransaction 返回中用于毕业解析的部分
type txInfo struct {
	Transaction struct {
		Message struct {
			AccountKeys []struct {
				Pubkey string `json:"pubkey"`
				Signer bool   `json:"signer"`
			} `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
	Meta struct {
		PreTokenBalances  []tokenBalance `json:"preTokenBalances"`
		PostTokenBalances []tokenBalance `json:"postTokenBalances"`
	} `json:"meta"`
}

// tokenMint 返回交易涉及的第一个非 SOL token mint
func (t *txInfo) tokenMint() string {
	for _, b := range t.Meta.PostTokenBalances {
		if b.Mint != "" && b.Mint != wrappedSOL {
			return b.Mint
		}
	}
	return ""
}

// feePayer 返回第一个签名账户（建池交易里即 dev / migration 发起方）
func (t *txInfo) feePayer() string {
	for _, k := range t.Transaction.Message.AccountKeys {
		if k.Signer {
			return k.Pubkey
		}
	}
	return ""
}

// sellPct 计算 owner 在这笔交易中卖掉的 mint 持仓比例（%）
func (t *txInfo) sellPct(mint, owner string) float64 {
	var pre, post float64
	for _, b := range t.Meta.PreTokenBalances {
		if b.Mint == mint && b.Owner == owner {
			pre = b.UITokenAmount.UIAmount
		}
	}
	for _, b := range t.Meta.PostTokenBalances {
		if b.Mint == mint && b.Owner == owner {
			post = b.UITokenAmount.UIAmount
		}
	}
	if pre <= 0 || post >= pre {
		return 0
	}
	return (pre - post) / pre * 100
}

type rpcResponse struct {
	Result *txInfo `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// transaction 按签名查询已确认交易
func (c *rpcClient) transaction(ctx context.Context, signature string) (*txInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "getTransaction",
		"params": []any{
			signature,
			map[string]any{
				"encoding":                       "jsonParsed",
				"commitment":                     "confirmed",
				"maxSupportedTransactionVersion": 0,
			},
		},
	}

	var out rpcResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post("")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "getTransaction")
	}
	if resp.IsError() {
		return nil, fmt.Errorf("getTransaction: status %d", resp.StatusCode())
	}
	if out.Error != nil {
		return nil, fmt.Errorf("getTransaction: rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	if out.Result == nil {
		return nil, fmt.Errorf("getTransaction: transaction %s not found", signature)
	}
	return out.Result, nil
}

// parsePrice DexScreener 的价格是字符串，解析失败按 0 处理
func parsePrice(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
