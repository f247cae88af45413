// volatile.go
//
// Register-style accessors for the shared cursors.  Go has no volatile
// qualifier; sync/atomic loads and stores are the only accesses the compiler
// may neither elide, merge nor reorder, and on amd64/arm64 they lower to
// plain MOV+XCHG / LDAR+STLR which also order against a coherent device.
// Every read of a peer-visible index goes through load, every publish
// through store.

package ring

import "sync/atomic"

// load is a non-elidable acquire read of *p.
//
//go:nosplit
func load(p *uint64) uint64 {
	return atomic.LoadUint64(p)
}

// store is a non-elidable release write to *p.  All slot writes issued
// before it are visible to a peer that observes v.
//
//go:nosplit
func store(p *uint64, v uint64) {
	atomic.StoreUint64(p, v)
}
