// ════════════════════════════════════════════════════════════════════════════════════════════════
// 🧪 TEST SUITE: WORKER COORDINATION FLAGS
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Test Coverage:
//   - Unit tests: initial state, signalling, cooldown, shutdown
//   - Concurrency: many signallers against one poller under -race
//   - Benchmarks: flag reads and cooldown polling on the idle path
// ════════════════════════════════════════════════════════════════════════════════════════════════

package control

import (
	"sync"
	"testing"
	"time"
)

// ============================================================================
// UNIT TESTS
// ============================================================================

func TestFlags_InitialState(t *testing.T) {
	f := NewFlags(time.Second)
	if f.Hot() {
		t.Error("new flags must start cold")
	}
	if f.Stopped() {
		t.Error("new flags must not be stopped")
	}
}

func TestFlags_SignalActivity(t *testing.T) {
	f := NewFlags(time.Second)
	f.SignalActivity()
	if !f.Hot() {
		t.Fatal("SignalActivity must set hot")
	}
	f.PollCooldown()
	if !f.Hot() {
		t.Fatal("hot must survive a poll inside the window")
	}
}

func TestFlags_CooldownClearsHot(t *testing.T) {
	f := NewFlags(5 * time.Millisecond)
	f.SignalActivity()
	time.Sleep(20 * time.Millisecond)
	f.PollCooldown()
	if f.Hot() {
		t.Fatal("hot must clear after the cooldown window")
	}

	f.SignalActivity()
	if !f.Hot() {
		t.Fatal("activity after cooldown must re-arm hot")
	}
}

func TestFlags_ZeroValueNeverCools(t *testing.T) {
	var f Flags
	f.SignalActivity()
	time.Sleep(2 * time.Millisecond)
	f.PollCooldown()
	if !f.Hot() {
		t.Fatal("zero cooldown must keep hot set")
	}
}

func TestFlags_ShutdownIdempotent(t *testing.T) {
	f := NewFlags(time.Second)
	f.Shutdown()
	f.Shutdown()
	if !f.Stopped() {
		t.Fatal("Stopped must report true after Shutdown")
	}
}

func TestFlags_IndependentInstances(t *testing.T) {
	a, b := NewFlags(time.Second), NewFlags(time.Second)
	a.SignalActivity()
	a.Shutdown()
	if b.Hot() || b.Stopped() {
		t.Fatal("flags instances must not share state")
	}
}

// ============================================================================
// CONCURRENCY
// ============================================================================

func TestFlags_ConcurrentSignalAndPoll(t *testing.T) {
	f := NewFlags(time.Millisecond)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				f.SignalActivity()
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		for !f.Stopped() {
			f.PollCooldown()
			_ = f.Hot()
		}
		close(done)
	}()
	wg.Wait()
	f.Shutdown()
	<-done
}

// ============================================================================
// BENCHMARKS
// ============================================================================

func BenchmarkFlags_Hot(b *testing.B) {
	f := NewFlags(time.Second)
	for i := 0; i < b.N; i++ {
		_ = f.Hot()
	}
}

func BenchmarkFlags_PollCooldown(b *testing.B) {
	f := NewFlags(time.Second)
	f.SignalActivity()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.PollCooldown()
	}
}
