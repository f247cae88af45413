package loopback

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"cohort/accel"
	"cohort/ring"
)

type rig struct {
	tx, rx *ring.Ring[uint64]
	aux    uint64
}

func newRig(t *testing.T, capacity int) *rig {
	t.Helper()
	r := &rig{tx: ring.MustNew[uint64](capacity), rx: ring.MustNew[uint64](capacity)}
	t.Cleanup(func() {
		_ = r.tx.Close()
		_ = r.rx.Close()
	})
	return r
}

func (r *rig) reg(id uint8) accel.Registration {
	return accel.Registration{
		Sender:   r.tx.Control(),
		Receiver: r.rx.Control(),
		Aux:      unsafe.Pointer(&r.aux),
		Backoff:  240,
		Identity: id,
	}
}

func popWithin(t *testing.T, r *ring.Ring[uint64], d time.Duration) uint64 {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if v, ok := r.TryPop(); ok {
			return v
		}
	}
	t.Fatal("timed out waiting for the receiver ring")
	return 0
}

func TestEchoPreservesOrder(t *testing.T) {
	r := newRig(t, 8)
	a := New()
	if err := a.Register(r.reg(1)); err != nil {
		t.Fatal(err)
	}
	defer a.Unregister(r.reg(1))

	const n = 10_000
	go func() {
		for i := uint64(0); i < n; i++ {
			r.tx.Push(i)
		}
	}()
	for i := uint64(0); i < n; i++ {
		if got := popWithin(t, r.rx, 5*time.Second); got != i {
			t.Fatalf("element %d came back as %d", i, got)
		}
	}
	if moved, ok := a.Moved(1); !ok || moved != n {
		t.Fatalf("Moved = %d/%v", moved, ok)
	}
	if aux := atomic.LoadUint64(&r.aux); aux != n {
		t.Fatalf("aux word = %d, want %d", aux, n)
	}
}

func TestTransformApplied(t *testing.T) {
	r := newRig(t, 4)
	a := New(WithTransform(func(dst, src []byte) {
		binary.NativeEndian.PutUint64(dst, binary.NativeEndian.Uint64(src)*2)
	}))
	if err := a.Register(r.reg(2)); err != nil {
		t.Fatal(err)
	}
	defer a.Unregister(r.reg(2))

	r.tx.Push(21)
	if got := popWithin(t, r.rx, 5*time.Second); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

// A full receiver must stall the worker, not drop elements.
func TestBackpressure(t *testing.T) {
	r := newRig(t, 2)
	a := New(WithHotWindow(time.Millisecond))
	if err := a.Register(r.reg(3)); err != nil {
		t.Fatal(err)
	}
	defer a.Unregister(r.reg(3))

	for i := uint64(0); i < 5; i++ {
		r.tx.Push(i)
	}
	for i := uint64(0); i < 5; i++ {
		if got := popWithin(t, r.rx, 5*time.Second); got != i {
			t.Fatalf("got %d, want %d", got, i)
		}
	}
}

func TestIdentityBusy(t *testing.T) {
	r := newRig(t, 2)
	a := New()
	if err := a.Register(r.reg(4)); err != nil {
		t.Fatal(err)
	}
	defer a.Unregister(r.reg(4))
	if err := a.Register(r.reg(4)); !errors.Is(err, ErrIdentityBusy) {
		t.Fatalf("second Register err = %v", err)
	}
	if a.Active() != 1 {
		t.Fatalf("Active = %d", a.Active())
	}
}

func TestUnregisterStopsWorker(t *testing.T) {
	r := newRig(t, 2)
	a := New()
	if err := a.Register(r.reg(5)); err != nil {
		t.Fatal(err)
	}
	if err := a.Unregister(r.reg(5)); err != nil {
		t.Fatal(err)
	}
	if a.Active() != 0 {
		t.Fatal("worker still listed after Unregister")
	}
	r.tx.Push(1)
	time.Sleep(10 * time.Millisecond)
	if !r.rx.IsEmpty() {
		t.Fatal("stopped worker must not move elements")
	}
	if err := a.Unregister(r.reg(5)); !errors.Is(err, accel.ErrNotRegistered) {
		t.Fatalf("second Unregister err = %v", err)
	}
}

func TestRegisterRejectsMismatchedRings(t *testing.T) {
	tx := ring.MustNew[uint64](2)
	rx := ring.MustNew[uint32](2)
	defer tx.Close()
	defer rx.Close()
	var aux uint64

	err := New().Register(accel.Registration{Sender: tx.Control(), Receiver: rx.Control(), Aux: unsafe.Pointer(&aux)})
	if !errors.Is(err, ErrLayout) {
		t.Fatalf("err = %v", err)
	}
	if err := New().Register(accel.Registration{}); !errors.Is(err, accel.ErrInvalid) {
		t.Fatalf("empty registration err = %v", err)
	}
}

func TestPinnedWorker(t *testing.T) {
	r := newRig(t, 2)
	a := New(WithCore(0))
	if err := a.Register(r.reg(6)); err != nil {
		t.Fatal(err)
	}
	defer a.Unregister(r.reg(6))
	r.tx.Push(9)
	if got := popWithin(t, r.rx, 5*time.Second); got != 9 {
		t.Fatalf("got %d", got)
	}
}
