// Package metrics exposes channel statistics through VictoriaMetrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"cohort/channel"
	"cohort/debug"
	"cohort/mem"
)

// Source is anything that can report channel statistics; every
// *channel.Channel[T] qualifies.
type Source interface {
	Stats() channel.Stats
}

// Tracker owns the gauges registered for one channel.
type Tracker struct {
	set   *metrics.Set
	names []string
}

// Track registers one gauge per Stats field, labelled with the channel
// identity.  Gauges sample src on every scrape, so Untrack must run before
// the channel is closed.
func Track(set *metrics.Set, src Source) *Tracker {
	id := strconv.Itoa(int(src.Stats().Identity))
	t := &Tracker{set: set}
	gauge := func(base string, read func(channel.Stats) float64) {
		name := labelled(base, id)
		set.NewGauge(name, func() float64 { return read(src.Stats()) })
		t.names = append(t.names, name)
	}
	gauge(PushesMetricName, func(s channel.Stats) float64 { return float64(s.Pushes) })
	gauge(FullPushesMetricName, func(s channel.Stats) float64 { return float64(s.FullPushes) })
	gauge(PopsMetricName, func(s channel.Stats) float64 { return float64(s.Pops) })
	gauge(EmptyPopsMetricName, func(s channel.Stats) float64 { return float64(s.EmptyPops) })
	gauge(SenderDepthMetricName, func(s channel.Stats) float64 { return float64(s.SenderDepth) })
	gauge(ReceiverDepthMetricName, func(s channel.Stats) float64 { return float64(s.ReceiverDepth) })
	gauge(AuxMetricName, func(s channel.Stats) float64 { return float64(s.Aux) })
	return t
}

// Untrack removes the channel's gauges.
func (t *Tracker) Untrack() {
	for _, n := range t.names {
		t.set.UnregisterMetric(n)
	}
	t.names = nil
}

// NewSet returns a set that also reports process-wide leaked region bytes.
func NewSet() *metrics.Set {
	set := metrics.NewSet()
	set.NewGauge(LeakedBytesMetricName, func() float64 { return float64(mem.LeakedBytes()) })
	return set
}

func labelled(name, identity string) string {
	buf := make([]byte, 0, len(name)+20)
	buf = append(buf, name...)
	buf = append(buf, `{identity="`...)
	buf = append(buf, identity...)
	buf = append(buf, `"}`...)
	return string(buf)
}

// Serve exposes set and the process metrics on addr at /metrics until ctx
// is done.
func Serve(ctx context.Context, addr string, set *metrics.Set) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		set.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	debug.DropMessage("METRICS", "listening on "+addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
