package ring

import (
	"errors"
	"math"
	"testing"
	"unsafe"

	"cohort/constants"
	"cohort/mem"
)

type frame struct {
	Seq  uint64
	Body [24]byte
}

func newRing[T any](t *testing.T, capacity int) *Ring[T] {
	t.Helper()
	r, err := New[T](capacity)
	if err != nil {
		t.Fatalf("New(%d): %v", capacity, err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// TestNewRejectsBadCapacity verifies that the constructor refuses capacities
// that are non-positive or too large for the 32-bit capacity field.
func TestNewRejectsBadCapacity(t *testing.T) {
	tooBig := uint64(constants.MaxCapacity) + 1
	for _, c := range []int{0, -1, int(tooBig)} {
		if _, err := New[uint8](c); !errors.Is(err, ErrCapacity) {
			t.Errorf("New(%d) err = %v, want ErrCapacity", c, err)
		}
	}
}

// TestNewOverflow checks that a capacity whose byte size wraps the address
// space fails construction instead of allocating a truncated buffer.
func TestNewOverflow(t *testing.T) {
	if _, err := New[uint64](math.MaxInt); !errors.Is(err, ErrSizeOverflow) {
		t.Fatalf("New(MaxInt) err = %v, want ErrSizeOverflow", err)
	}
	if _, err := layoutFor(1<<40, 1<<30); !errors.Is(err, ErrSizeOverflow) {
		t.Fatalf("layoutFor huge element err = %v, want ErrSizeOverflow", err)
	}
}

// TestMustNewPanics wraps MustNew in a closure so recover() can inspect the
// panic without aborting the run.
func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustNew(0) should panic")
		}
	}()
	_ = MustNew[uint32](0)
}

// TestPushPopRoundTrip performs a minimal round-trip on a capacity-8 ring.
func TestPushPopRoundTrip(t *testing.T) {
	r := newRing[frame](t, 8)
	want := frame{Seq: 1, Body: [24]byte{1, 2, 3}}

	if !r.TryPush(want) {
		t.Fatal("first push must succeed")
	}
	got, ok := r.TryPop()
	if !ok || got != want {
		t.Fatalf("got %v/%v, want %v", got, ok, want)
	}
	if _, ok := r.TryPop(); ok {
		t.Fatal("ring should now be empty")
	}
	if !r.IsEmpty() {
		t.Fatal("IsEmpty must report true")
	}
}

// TestExactCapacity fills the ring with exactly C values, checks IsFull and
// that a further TryPush is rejected without touching the cursors.
func TestExactCapacity(t *testing.T) {
	for _, c := range []int{1, 2, 7, 64} {
		r := newRing[uint64](t, c)
		for i := 0; i < c; i++ {
			if r.IsFull() {
				t.Fatalf("cap %d: full after %d pushes", c, i)
			}
			if !r.TryPush(uint64(i)) {
				t.Fatalf("cap %d: push %d failed", c, i)
			}
		}
		if !r.IsFull() || r.Len() != c {
			t.Fatalf("cap %d: IsFull=%v Len=%d", c, r.IsFull(), r.Len())
		}
		head, tail := r.cb.Head, r.cb.Tail
		if r.TryPush(999) {
			t.Fatalf("cap %d: push into full ring succeeded", c)
		}
		if r.cb.Head != head || r.cb.Tail != tail || r.Len() != c {
			t.Fatalf("cap %d: rejected push mutated state", c)
		}
	}
}

// TestCapacityFourWalkthrough walks the documented capacity-4 scenario.
func TestCapacityFourWalkthrough(t *testing.T) {
	r := newRing[int32](t, 4)
	for _, v := range []int32{1, 2, 3, 4} {
		r.Push(v)
	}
	if !r.IsFull() {
		t.Fatal("ring must be full after 4 pushes")
	}
	if r.TryPush(5) {
		t.Fatal("TryPush(5) must be rejected")
	}
	if v := r.Pop(); v != 1 {
		t.Fatalf("Pop = %d, want 1", v)
	}
	if !r.TryPush(5) {
		t.Fatal("TryPush(5) must be accepted after a pop")
	}
	for _, want := range []int32{2, 3, 4, 5} {
		if got := r.Pop(); got != want {
			t.Fatalf("Pop = %d, want %d", got, want)
		}
	}
	if !r.IsEmpty() {
		t.Fatal("ring must be empty")
	}
}

// TestFIFOLaw pushes sequences of every length up to capacity and expects
// them back in order.
func TestFIFOLaw(t *testing.T) {
	const c = 16
	r := newRing[frame](t, c)
	for n := 1; n <= c; n++ {
		for i := 0; i < n; i++ {
			r.Push(frame{Seq: uint64(n*100 + i)})
		}
		for i := 0; i < n; i++ {
			if got := r.Pop(); got.Seq != uint64(n*100+i) {
				t.Fatalf("n=%d i=%d: got %d", n, i, got.Seq)
			}
		}
	}
}

// TestRoundTripCycles repeats push-N/pop-N many times so both cursors wrap
// repeatedly; nothing may be lost or duplicated.
func TestRoundTripCycles(t *testing.T) {
	const c = 5
	r := newRing[uint32](t, c)
	var next, expect uint32
	for cycle := 0; cycle < 1000; cycle++ {
		n := cycle%c + 1
		for i := 0; i < n; i++ {
			r.Push(next)
			next++
		}
		for i := 0; i < n; i++ {
			if got := r.Pop(); got != expect {
				t.Fatalf("cycle %d: got %d, want %d", cycle, got, expect)
			}
			expect++
		}
		if !r.IsEmpty() {
			t.Fatalf("cycle %d: ring not empty", cycle)
		}
	}
}

// TestWrapAround exercises more iterations than slots with one element in
// flight, so masking-free modular arithmetic is exercised at the boundary.
func TestWrapAround(t *testing.T) {
	r := newRing[[32]byte](t, 3)
	for i := 0; i < 10; i++ {
		val := [32]byte{byte(i)}
		if !r.TryPush(val) {
			t.Fatalf("push %d failed unexpectedly", i)
		}
		got, ok := r.TryPop()
		if !ok || got[0] != byte(i) {
			t.Fatalf("iteration %d: got %v, want %v", i, got[0], val[0])
		}
	}
}

// TestAlignment checks the data buffer and control block addresses for a
// minimal, a power-of-two and a large capacity.
func TestAlignment(t *testing.T) {
	for _, c := range []int{1, 1024, 1 << 22} {
		r := newRing[uint8](t, c)
		if uintptr(r.Buffer())%constants.Align != 0 {
			t.Fatalf("cap %d: buffer %p not aligned", c, r.Buffer())
		}
		if uintptr(r.Control())%constants.Align != 0 {
			t.Fatalf("cap %d: control %p not aligned", c, r.Control())
		}
		if uintptr(r.Buffer())-uintptr(r.Control()) != constants.ControlBlockSize {
			t.Fatalf("cap %d: buffer not directly after control block", c)
		}
	}
}

// TestControlBlockContents verifies the metadata the peer will parse.
func TestControlBlockContents(t *testing.T) {
	r := newRing[frame](t, 10)
	cb := (*ControlBlock)(r.Control())
	if cb.Buffer != uint64(uintptr(r.Buffer())) {
		t.Fatalf("Buffer = %#x, want %p", cb.Buffer, r.Buffer())
	}
	if cb.ElemSize != uint32(unsafe.Sizeof(frame{})) {
		t.Fatalf("ElemSize = %d", cb.ElemSize)
	}
	if cb.Capacity != 10 {
		t.Fatalf("Capacity = %d, want 10", cb.Capacity)
	}
	if cb.Head != 0 || cb.Tail != 0 {
		t.Fatal("cursors must start at zero")
	}
}

func TestCursorsStayInRange(t *testing.T) {
	const c = 3
	r := newRing[uint16](t, c)
	for i := 0; i < 50; i++ {
		r.Push(uint16(i))
		if i%2 == 0 {
			r.Pop()
		}
		if r.IsFull() {
			for !r.IsEmpty() {
				r.Pop()
			}
		}
		if r.cb.Head > c || r.cb.Tail > c {
			t.Fatalf("cursor out of range: head=%d tail=%d", r.cb.Head, r.cb.Tail)
		}
	}
}

func TestInitIntoCallerMemory(t *testing.T) {
	size, err := Size[uint64](8)
	if err != nil {
		t.Fatal(err)
	}
	region, err := mem.Heap{}.Alloc(size, constants.Align)
	if err != nil {
		t.Fatal(err)
	}
	defer region.Free()

	r, err := Init[uint64](region.Bytes(), 8)
	if err != nil {
		t.Fatal(err)
	}
	r.Push(7)
	if v := r.Pop(); v != 7 {
		t.Fatalf("Pop = %d", v)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if region.Freed() {
		t.Fatal("Close must not free caller memory")
	}
}

func TestInitRejectsBadMemory(t *testing.T) {
	size, _ := Size[uint64](8)
	region, err := mem.Heap{}.Alloc(size+constants.Align, constants.Align)
	if err != nil {
		t.Fatal(err)
	}
	defer region.Free()

	if _, err := Init[uint64](region.Bytes()[:size-1], 8); !errors.Is(err, ErrShort) {
		t.Fatalf("short region err = %v", err)
	}
	if _, err := Init[uint64](region.Bytes()[8:], 8); !errors.Is(err, ErrMisaligned) {
		t.Fatalf("misaligned region err = %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	r, err := New[uint64](4)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

type failingAllocator struct{}

func (failingAllocator) Alloc(size, align uintptr) (*mem.Region, error) {
	return nil, mem.ErrAlloc
}
func (failingAllocator) Free(*mem.Region) error { return nil }

func TestAllocationFailureIsReported(t *testing.T) {
	r, err := NewWith[uint64](failingAllocator{}, 4)
	if r != nil || !errors.Is(err, ErrAlloc) || !errors.Is(err, mem.ErrAlloc) {
		t.Fatalf("got ring=%v err=%v", r, err)
	}
}
