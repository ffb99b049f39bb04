package domain

import "sync"

// OrderBookStorage is the symbol -> maintainer registry. A book and its
// sequence state exist from Subscribe until Unsubscribe; the storage owns
// that lifecycle.
type OrderBookStorage struct {
	mu          sync.RWMutex
	maintainers map[string]*OrderbookMaintainer
	// retained holds the final counters of removed maintainers so the
	// aggregate totals stay monotonic across unsubscriptions.
	retained AggregateStats
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{
		maintainers: make(map[string]*OrderbookMaintainer),
	}
}

func (s *OrderBookStorage) Add(symbol *MarketSymbol, maintainer *OrderbookMaintainer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintainers[symbol.String()] = maintainer
}

func (s *OrderBookStorage) Get(symbol *MarketSymbol) (*OrderbookMaintainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	maintainer, ok := s.maintainers[symbol.String()]
	if !ok {
		return nil, ErrOrderBookNotFound
	}
	return maintainer, nil
}

// Remove stops the maintainer and drops it from the registry.
func (s *OrderBookStorage) Remove(symbol *MarketSymbol) error {
	s.mu.Lock()
	maintainer, ok := s.maintainers[symbol.String()]
	delete(s.maintainers, symbol.String())
	s.mu.Unlock()

	if !ok {
		return ErrOrderBookNotFound
	}
	maintainer.Stop()

	// The counters are final once the maintainer is stopped.
	s.mu.Lock()
	s.retained.addCounters(&maintainer.Stats)
	s.mu.Unlock()
	return nil
}

func (s *OrderBookStorage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.maintainers)
}

// Each calls fn for every registered maintainer.
func (s *OrderBookStorage) Each(fn func(symbol string, maintainer *OrderbookMaintainer)) {
	s.mu.RLock()
	snapshot := make(map[string]*OrderbookMaintainer, len(s.maintainers))
	for symbol, maintainer := range s.maintainers {
		snapshot[symbol] = maintainer
	}
	s.mu.RUnlock()

	for symbol, maintainer := range snapshot {
		fn(symbol, maintainer)
	}
}

// AggregateStats is the cross-symbol event counter totals plus the count of
// currently stale books.
type AggregateStats struct {
	Applied        int64
	Duplicates     int64
	Buffered       int64
	Dropped        int64
	CrossedBooks   int64
	Resyncs        int64
	ResyncFailures int64
	StaleBooks     int64
}

// addCounters folds a maintainer's event counters in. StaleBooks is a gauge
// of live books and never accumulates here.
func (agg *AggregateStats) addCounters(stats *MaintainerStats) {
	agg.Applied += stats.Applied.Load()
	agg.Duplicates += stats.Duplicates.Load()
	agg.Buffered += stats.Buffered.Load()
	agg.Dropped += stats.Dropped.Load()
	agg.CrossedBooks += stats.CrossedBooks.Load()
	agg.Resyncs += stats.Resyncs.Load()
	agg.ResyncFailures += stats.ResyncFailures.Load()
}

// AggregateStats sums the retained totals of removed maintainers with the
// live ones, so the counter totals never move backwards.
func (s *OrderBookStorage) AggregateStats() AggregateStats {
	s.mu.RLock()
	agg := s.retained
	s.mu.RUnlock()

	s.Each(func(_ string, m *OrderbookMaintainer) {
		agg.addCounters(&m.Stats)
		if m.Book() != nil && m.Book().Status() == BookStatus_Stale {
			agg.StaleBooks++
		}
	})
	return agg
}
