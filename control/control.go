// control.go — Activity and shutdown flags for pinned worker loops
// ============================================================================
// WORKER COORDINATION
// ============================================================================
//
// A Flags value couples one spinning worker (the loopback accelerator) with
// the goroutines that feed and stop it.
//
// Architecture overview:
//   • hot/stop words polled by the worker without locks
//   • Nanosecond activity timestamp with automatic cooldown
//   • One Flags per worker; nothing is process-global
//
// Threading model:
//   • Producers call SignalActivity() after publishing work
//   • The worker calls PollCooldown() on idle iterations and checks Stopped()
//   • Shutdown() may be called from any goroutine, any number of times

package control

import (
	"sync/atomic"
	"time"
)

// ============================================================================
// STATE
// ============================================================================

// Flags is safe for concurrent use.  The zero value is usable and never
// cools down on its own.
type Flags struct {
	hot      atomic.Uint32 // 1 = recent activity
	stop     atomic.Uint32 // 1 = worker must exit
	lastHot  atomic.Int64  // UnixNano of the last SignalActivity
	cooldown int64         // ns of silence before hot drops; 0 = never
}

// NewFlags returns flags whose hot state clears after cooldown of silence.
func NewFlags(cooldown time.Duration) *Flags {
	return &Flags{cooldown: int64(cooldown)}
}

// ============================================================================
// ACTIVITY SIGNALING
// ============================================================================

// SignalActivity marks the worker hot and records the time.
func (f *Flags) SignalActivity() {
	f.lastHot.Store(time.Now().UnixNano())
	f.hot.Store(1)
}

// PollCooldown clears the hot flag once cooldown has elapsed since the last
// activity.  Cheap enough to call on every idle spin.
func (f *Flags) PollCooldown() {
	if f.cooldown == 0 || f.hot.Load() == 0 {
		return
	}
	if time.Now().UnixNano()-f.lastHot.Load() > f.cooldown {
		f.hot.Store(0)
	}
}

// Hot reports whether activity was signalled within the cooldown window.
//
//go:nosplit
func (f *Flags) Hot() bool { return f.hot.Load() != 0 }

// ============================================================================
// SHUTDOWN
// ============================================================================

// Shutdown asks the worker to exit.  Idempotent.
//
//go:nosplit
func (f *Flags) Shutdown() { f.stop.Store(1) }

// Stopped reports whether Shutdown has been called.
//
//go:nosplit
func (f *Flags) Stopped() bool { return f.stop.Load() != 0 }
