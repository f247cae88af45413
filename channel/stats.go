package channel

import "sync/atomic"

// producer-side and consumer-side counters sit on separate lines
type counters struct {
	pushes     atomic.Uint64
	fullPushes atomic.Uint64
	_          [112]byte
	pops       atomic.Uint64
	emptyPops  atomic.Uint64
}

// Stats is a point-in-time view of a channel.  Counters are zero unless the
// channel was registered WithStats.
type Stats struct {
	Identity      uint8  `json:"identity"`
	Capacity      int    `json:"capacity"`
	Pushes        uint64 `json:"pushes"`
	FullPushes    uint64 `json:"full_pushes"`
	Pops          uint64 `json:"pops"`
	EmptyPops     uint64 `json:"empty_pops"`
	SenderDepth   int    `json:"sender_depth"`
	ReceiverDepth int    `json:"receiver_depth"`
	Aux           uint64 `json:"aux"`
}

// Stats samples the counters, both ring depths and the aux word.  After
// Close only the counters are reported.  Must not race with Close.
func (c *Channel[T]) Stats() Stats {
	s := Stats{
		Identity: c.b.reg.Identity,
		Capacity: c.tx.Cap(),
	}
	if c.Registered() {
		s.SenderDepth = c.tx.Len()
		s.ReceiverDepth = c.rx.Len()
		s.Aux = c.LoadAux()
	}
	if c.stats != nil {
		s.Pushes = c.stats.pushes.Load()
		s.FullPushes = c.stats.fullPushes.Load()
		s.Pops = c.stats.pops.Load()
		s.EmptyPops = c.stats.emptyPops.Load()
	}
	return s
}
