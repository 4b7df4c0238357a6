package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowDrainsCapacity(t *testing.T) {
	b := NewTokenBucket(3, 1, time.Hour)
	for i := 0; i < 3; i++ {
		if !b.Allow() {
			t.Fatalf("第 %d 枚令牌应可用", i+1)
		}
	}
	if b.Allow() {
		t.Error("容量耗尽后 Allow 应返回 false")
	}
	if b.Remaining() != 0 {
		t.Errorf("剩余令牌应为 0，实际 %d", b.Remaining())
	}
}

func TestWaitRefills(t *testing.T) {
	// 每秒补 1000 枚：耗尽后 Wait 应在几毫秒内拿到新令牌
	b := NewTokenBucket(1, 1000, time.Second)
	if !b.Allow() {
		t.Fatal("初始令牌应可用")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("Wait 失败: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("补充周期 1ms 的桶等了 %v", elapsed)
	}
}

func TestWaitCtxCancel(t *testing.T) {
	b := NewTokenBucket(1, 1, time.Hour)
	b.Allow()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if err := b.Wait(ctx); err != context.Canceled {
		t.Errorf("取消后应返回 context.Canceled，实际 %v", err)
	}
}

func TestCapacityCapped(t *testing.T) {
	b := NewTokenBucket(2, 1000, time.Second)
	time.Sleep(20 * time.Millisecond)
	if r := b.Remaining(); r > 2 {
		t.Errorf("令牌数不应超过容量，实际 %d", r)
	}
}

func TestBadArgsClamped(t *testing.T) {
	b := NewTokenBucket(0, 0, 0)
	if !b.Allow() {
		t.Error("非法参数应回退到最小可用配置")
	}
}
