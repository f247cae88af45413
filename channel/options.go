package channel

import (
	"time"

	"cohort/constants"
	"cohort/mem"
	"cohort/registry"
)

// Ledger records registrations outside the process.  *registry.Registry
// implements it.
type Ledger interface {
	Claim(d registry.Descriptor) error
	Release(identity uint8) error
	MarkLeaked(identity uint8, cause string) error
}

type options struct {
	identity   uint8
	backoff    uint64
	alloc      mem.Allocator
	ledger     Ledger
	aux        uint64
	retries    int
	retryDelay time.Duration
	stats      bool
	locked     bool
}

func defaults() options {
	return options{
		backoff:    constants.BackoffThreshold,
		retries:    constants.UnregisterRetries,
		retryDelay: constants.UnregisterRetryDelay,
	}
}

// Option configures Register.
type Option func(*options)

// WithIdentity tags the registration.  The accelerator and the ledger key
// on it.
func WithIdentity(id uint8) Option { return func(o *options) { o.identity = id } }

// WithBackoff overrides the threshold handed to the accelerator.
func WithBackoff(threshold uint64) Option { return func(o *options) { o.backoff = threshold } }

// WithAllocator chooses where the shared region comes from.
func WithAllocator(a mem.Allocator) Option { return func(o *options) { o.alloc = a } }

// WithLedger records the registration in l for its lifetime.
func WithLedger(l Ledger) Option { return func(o *options) { o.ledger = l } }

// WithAuxValue sets the aux word before the accelerator first sees it.
func WithAuxValue(v uint64) Option { return func(o *options) { o.aux = v } }

// WithUnregisterRetries sets how many times a failed unregister is retried
// and the first pause between attempts.
func WithUnregisterRetries(n int, delay time.Duration) Option {
	return func(o *options) {
		o.retries = max(n, 0)
		o.retryDelay = delay
	}
}

// WithStats enables push/pop counters.  Off by default so the data path
// carries nothing extra.
func WithStats() Option { return func(o *options) { o.stats = true } }

// WithLockedMemory mlocks the region.  Ignored when WithAllocator is given.
func WithLockedMemory() Option { return func(o *options) { o.locked = true } }
