package syncgroup

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAddRunWait(t *testing.T) {
	g := NewSyncGroup()
	var ran atomic.Int32

	for i := 0; i < 3; i++ {
		g.Add(func() { ran.Add(1) })
	}
	g.Run()
	g.Wait()

	if ran.Load() != 3 {
		t.Errorf("应运行 3 个 goroutine，实际 %d", ran.Load())
	}
}

func TestGoWhileRunning(t *testing.T) {
	g := NewSyncGroup()
	release := make(chan struct{})
	started := make(chan struct{})
	var respawned atomic.Bool

	// 常驻 goroutine 仍在运行时补启新的，新函数必须被执行
	g.Add(func() { <-release })
	g.Run()

	g.Go(func() {
		respawned.Store(true)
		close(started)
	})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("组内还有 goroutine 运行时 Go 启动的函数没有被执行")
	}
	close(release)
	g.Wait()

	if !respawned.Load() {
		t.Error("补启的函数未运行")
	}
}

func TestWaitCoversLateGo(t *testing.T) {
	g := NewSyncGroup()
	var done atomic.Bool

	g.Add(func() {
		// 第一个 goroutine 退出前补启第二个，Wait 必须把它也等到
		g.Go(func() {
			time.Sleep(20 * time.Millisecond)
			done.Store(true)
		})
	})
	g.Run()
	g.Wait()

	if !done.Load() {
		t.Error("Wait 返回时补启的 goroutine 还没结束")
	}
}

func TestWaitAndClearDropsPending(t *testing.T) {
	g := NewSyncGroup()
	var ran atomic.Int32

	g.Add(func() { ran.Add(1) })
	g.Run()
	g.Add(func() { ran.Add(1) }) // 尚未 Run 的登记
	g.WaitAndClear()
	g.Run()
	g.Wait()

	if ran.Load() != 1 {
		t.Errorf("WaitAndClear 后未启动的登记应被丢弃，实际运行 %d 次", ran.Load())
	}
}

func TestNilFuncIgnored(t *testing.T) {
	g := NewSyncGroup()
	g.Add(nil)
	g.Go(nil)
	g.Run()
	g.Wait()
}
