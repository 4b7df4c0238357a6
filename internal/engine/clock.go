package engine

import (
	"time"
)

// Clock 引擎时间源
// 策略和仓位管理器只能通过它取"现在"，不允许直接读墙钟，
// 这样超时、dev-sell 窗口等时间逻辑在回放下行为完全一致
type Clock interface {
	Now() time.Time
	NowNano() int64
}

// WallClock 真实墙钟（live / paper 模式）
type WallClock struct{}

// Now 返回当前墙钟时间
func (WallClock) Now() time.Time { return time.Now() }

// NowNano 返回当前墙钟纳秒时间戳
func (WallClock) NowNano() int64 { return time.Now().UnixNano() }

// ReplayClock 回放虚拟时钟（backtest 模式）
// "现在"被引擎推进到即将投递的事件的时间戳，只进不退
type ReplayClock struct {
	nowNano int64
}

// NewReplayClock 以给定起点创建回放时钟
func NewReplayClock(startNano int64) *ReplayClock {
	return &ReplayClock{nowNano: startNano}
}

// Advance 将时钟推进到指定时间戳；早于当前时刻的推进被忽略
func (c *ReplayClock) Advance(tsNano int64) {
	if tsNano > c.nowNano {
		c.nowNano = tsNano
	}
}

// Now 返回虚拟时间
func (c *ReplayClock) Now() time.Time { return time.Unix(0, c.nowNano) }

// NowNano 返回虚拟纳秒时间戳
func (c *ReplayClock) NowNano() int64 { return c.nowNano }
