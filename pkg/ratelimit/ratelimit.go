// Package ratelimit 提供客户端侧的请求限速。
// DexScreener 公开 API 和 Helius RPC 都按频率拒绝超量请求，
// 主动限速比吃 429 再重试更省配额。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 限速器接口
type RateLimiter interface {
	// Wait 阻塞到取得一枚令牌，或 ctx 取消
	Wait(ctx context.Context) error
	// Allow 非阻塞尝试取一枚令牌
	Allow() bool
}

// TokenBucket 令牌桶：容量封顶，按时间连续补充
// 补充是分数化的，过半个周期就补半份，突发允许打满容量
type TokenBucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time

	capacity float64
	rate     float64 // 每纳秒补充的令牌数
}

// NewTokenBucket 创建令牌桶：容量 capacity，每 interval 补充 refill 枚
func NewTokenBucket(capacity, refill int, interval time.Duration) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if refill <= 0 {
		refill = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &TokenBucket{
		tokens:   float64(capacity),
		last:     time.Now(),
		capacity: float64(capacity),
		rate:     float64(refill) / float64(interval),
	}
}

// advance 按流逝时间补充令牌；调用方持锁
func (b *TokenBucket) advance(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.tokens += float64(elapsed) * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}

// Allow 非阻塞尝试取一枚令牌
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(time.Now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait 阻塞到取得令牌；等待时长按令牌缺口精确计算
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.advance(time.Now())
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.rate)
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining 当前可用令牌数（向下取整）
func (b *TokenBucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(time.Now())
	return int(b.tokens)
}
