package channel

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cohort/accel"
	"cohort/debug"
	"cohort/mem"
	"cohort/registry"
	"cohort/ring"
	"cohort/utils"
)

const (
	stateUnregistered uint32 = iota
	stateRegistered
	stateClosed
)

// binding owns everything that must outlive the typed handle until the
// accelerator lets go: the registration record, the region and the ledger
// row.  It never points back at the Channel so a cleanup can run on it.
type binding struct {
	acc        accel.Accelerator
	reg        accel.Registration
	region     *mem.Region
	ledger     Ledger
	retries    int
	retryDelay time.Duration

	mu    sync.Mutex
	state atomic.Uint32
}

func (b *binding) register(l ring.Layout, accName string) error {
	if b.ledger != nil {
		d := registry.Descriptor{
			Identity:    b.reg.Identity,
			PID:         os.Getpid(),
			Accelerator: accName,
			ElemSize:    uint32(l.ElemSize),
			Capacity:    uint32(l.Capacity),
			Backoff:     b.reg.Backoff,
			RegionBytes: b.region.Len(),
			Sender:      utils.Hex(uint64(uintptr(b.reg.Sender))),
			Receiver:    utils.Hex(uint64(uintptr(b.reg.Receiver))),
			Aux:         utils.Hex(uint64(uintptr(b.reg.Aux))),
		}
		if err := b.ledger.Claim(d); err != nil {
			return err
		}
	}
	if err := b.acc.Register(b.reg); err != nil {
		if b.ledger != nil {
			if lerr := b.ledger.Release(b.reg.Identity); lerr != nil {
				debug.DropError("LEDGER release", lerr)
			}
		}
		debug.DropError("REGISTER", err)
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}
	b.state.Store(stateRegistered)
	debug.DropMessage("REGISTER", b.reg.String())
	return nil
}

// teardown runs at most once.  It retries unregister with exponential
// backoff and only frees the region once the accelerator has accepted.
func (b *binding) teardown(why string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.state.CompareAndSwap(stateRegistered, stateClosed) {
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.retryDelay
	policy.MaxElapsedTime = 0
	err := backoff.RetryNotify(
		func() error {
			err := b.acc.Unregister(b.reg)
			if errors.Is(err, accel.ErrUnsupported) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithMaxRetries(policy, uint64(b.retries)),
		func(err error, wait time.Duration) {
			debug.DropError(fmt.Sprintf("UNREGISTER retry in %s", wait), err)
		},
	)
	if err != nil {
		mem.Leak(b.region)
		debug.DropError(fmt.Sprintf("LEAK id=%d (%s)", b.reg.Identity, why), err)
		if b.ledger != nil {
			if lerr := b.ledger.MarkLeaked(b.reg.Identity, err.Error()); lerr != nil {
				debug.DropError("LEDGER mark leaked", lerr)
			}
		}
		return fmt.Errorf("%w: %w", ErrUnregisterFailed, err)
	}

	ferr := b.region.Free()
	if b.ledger != nil {
		if lerr := b.ledger.Release(b.reg.Identity); lerr != nil {
			debug.DropError("LEDGER release", lerr)
		}
	}
	debug.DropMessage("UNREGISTER", fmt.Sprintf("id=%d (%s)", b.reg.Identity, why))
	return ferr
}

// collected is the safety net for channels dropped without Close.
func (b *binding) collected() {
	if b.state.Load() != stateRegistered {
		return
	}
	debug.DropError(fmt.Sprintf("CHANNEL id=%d collected while registered", b.reg.Identity), nil)
	_ = b.teardown("collected")
}
