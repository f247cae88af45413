// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go — Channel layout & registration tunables
//
// Purpose:
//   - Fixes the binary layout shared with the accelerator (alignment, control
//     block geometry).
//   - Holds the registration defaults: backoff threshold, syscall numbers,
//     unregister retry budget.
//
// Notes:
//   - Layout values are part of the wire contract with the accelerator. Changing
//     them breaks every peer that parses control blocks directly.
//   - Tunables below the layout block may be overridden through config.
//
// ⚠️ No runtime logic here; all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

import "time"

// ───────────────────────────── Shared Layout ──────────────────────────────

const (
	// Align is the boundary every control block, index cell and data buffer
	// starts on. Matches the accelerator's line size and keeps head, tail and
	// payload on distinct lines.
	Align = 128

	// ControlBlockSize is the size of one ring control block: a 128-byte
	// metadata line followed by one line for head and one for tail.
	ControlBlockSize = 3 * Align

	// HeadOffset and TailOffset locate the cursors inside a control block.
	HeadOffset = 1 * Align
	TailOffset = 2 * Align

	// AuxCellSize is the region reserved for the auxiliary shared word. Only
	// the first 8 bytes are meaningful; the rest keeps the word on its own line.
	AuxCellSize = Align

	// MaxCapacity is the largest usable slot count the 32-bit capacity field
	// can describe. The sentinel slot must also fit, hence the -1.
	MaxCapacity = 1<<32 - 2
)

// ─────────────────────────── Registration Defaults ─────────────────────────

const (
	// BackoffThreshold is handed to the accelerator unmodified at registration.
	// Its meaning is defined by the accelerator.
	BackoffThreshold = 240

	// SysRegister and SysUnregister are the syscall numbers of the privileged
	// registration pair on the reference accelerator kernel.
	SysRegister   = 258
	SysUnregister = 257

	// UnregisterRetries bounds how often teardown re-issues a failed
	// unregister before the region is leaked.
	UnregisterRetries = 3

	// UnregisterRetryDelay is the initial pause between unregister attempts.
	UnregisterRetryDelay = 10 * time.Millisecond

	// DefaultCapacity is used when configuration does not name one.
	DefaultCapacity = 1024
)

// ───────────────────────────── Loopback Worker ─────────────────────────────

const (
	// LoopbackHotWindow keeps the emulated accelerator in tight spin after
	// the last element it moved.
	LoopbackHotWindow = 50 * time.Millisecond

	// LoopbackStopTimeout bounds how long Unregister waits for the worker.
	LoopbackStopTimeout = 5 * time.Second
)

// ───────────────────────────── Registry ────────────────────────────────────

const (
	// DefaultRegistryPath is the sqlite ledger used by the CLI.
	DefaultRegistryPath = "cohort_registry.db"
)
