package promclient

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itziklerner-pag/depthkeeper/domain"
)

// NewRegistry builds a registry whose book metrics are read live from the
// maintainers' counters.
func NewRegistry(storage *domain.OrderBookStorage) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "open_order_books", Help: "Maintained local order books"},
		func() float64 { return float64(storage.Count()) },
	))
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: "stale_order_books", Help: "Books degraded by resync exhaustion"},
		func() float64 { return float64(storage.AggregateStats().StaleBooks) },
	))

	counter := func(name, help string, value func(domain.AggregateStats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(value(storage.AggregateStats())) },
		)
	}
	reg.MustRegister(counter("depth_updates_applied_total", "Depth updates applied to local books",
		func(s domain.AggregateStats) int64 { return s.Applied }))
	reg.MustRegister(counter("depth_updates_duplicate_total", "Stale or retransmitted updates discarded",
		func(s domain.AggregateStats) int64 { return s.Duplicates }))
	reg.MustRegister(counter("depth_updates_buffered_total", "Out-of-order updates buffered within tolerance",
		func(s domain.AggregateStats) int64 { return s.Buffered }))
	reg.MustRegister(counter("depth_updates_dropped_total", "Updates dropped by the mailbox or replay queue",
		func(s domain.AggregateStats) int64 { return s.Dropped }))
	reg.MustRegister(counter("crossed_books_total", "Updates that would have crossed a book",
		func(s domain.AggregateStats) int64 { return s.CrossedBooks }))
	reg.MustRegister(counter("book_resyncs_total", "Successful baseline resyncs",
		func(s domain.AggregateStats) int64 { return s.Resyncs }))
	reg.MustRegister(counter("book_resync_failures_total", "Resyncs that exhausted their retries",
		func(s domain.AggregateStats) int64 { return s.ResyncFailures }))

	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

func StartPromClientServer(addr string, storage *domain.OrderBookStorage) {
	reg := NewRegistry(storage)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Printf("prometheus server listening at %s", addr)

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("failed to serve metrics: %v", err)
	}
}
