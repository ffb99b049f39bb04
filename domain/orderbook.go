package domain

import (
	"sync"

	"github.com/itziklerner-pag/depthkeeper/helpers"
)

type BookStatus string

const (
	BookStatus_Ok      BookStatus = "Ok"
	BookStatus_Syncing BookStatus = "Syncing"
	BookStatus_Stale   BookStatus = "Stale"
)

// OrderBook is the authoritative bid/ask state for one symbol. All mutation
// goes through the single per-symbol writer goroutine of the maintainer;
// the mutex is held only briefly so snapshot readers never block it for long.
type OrderBook struct {
	Symbol *MarketSymbol

	mu           sync.RWMutex
	bids         *bookSide
	asks         *bookSide
	lastUpdateId int64
	maxDepth     int
	status       BookStatus
	updatedAt    int64 // micros
}

func NewOrderBook(symbol *MarketSymbol, maxDepth int) *OrderBook {
	return &OrderBook{
		Symbol:   symbol,
		bids:     newBookSide(true),
		asks:     newBookSide(false),
		maxDepth: maxDepth,
		status:   BookStatus_Syncing,
	}
}

// Rebuild discards all book state and reloads it from a baseline snapshot.
// This is the only path that may replace state wholesale; everything else
// is incremental.
func (ob *OrderBook) Rebuild(baseline *BaselineSnapshot) error {
	bids, err := parseLevelDeltas(baseline.Bids)
	if err != nil {
		return err
	}
	asks, err := parseLevelDeltas(baseline.Asks)
	if err != nil {
		return err
	}

	now := helpers.NowMicros()

	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.clear()
	ob.asks.clear()
	for _, delta := range bids {
		if delta.Qty > 0 {
			ob.bids.put(Level{Price: delta.Price, Qty: delta.Qty, UpdatedAt: now})
		}
	}
	for _, delta := range asks {
		if delta.Qty > 0 {
			ob.asks.put(Level{Price: delta.Price, Qty: delta.Qty, UpdatedAt: now})
		}
	}
	ob.trimDepth()

	ob.lastUpdateId = baseline.LastUpdateId
	ob.updatedAt = now
	ob.status = BookStatus_Ok
	return nil
}

type undoEntry struct {
	side    *bookSide
	price   Price
	prev    Level
	existed bool
}

// ApplyUpdate applies every delta of a validated update. Qty == 0 removes
// the level, anything else upserts it. If the resulting book is crossed the
// whole update is rolled back and ErrBookCrossed is returned; a successful
// apply is all-or-nothing either way.
func (ob *OrderBook) ApplyUpdate(update *DepthUpdate) error {
	now := helpers.NowMicros()

	ob.mu.Lock()
	defer ob.mu.Unlock()

	undo := make([]undoEntry, 0, len(update.Bids)+len(update.Asks))
	undo = ob.applyDeltas(ob.bids, update.Bids, now, undo)
	undo = ob.applyDeltas(ob.asks, update.Asks, now, undo)

	if ob.crossed() {
		// Roll back in reverse so repeated touches of one price unwind cleanly.
		for i := len(undo) - 1; i >= 0; i-- {
			e := undo[i]
			if e.existed {
				e.side.put(e.prev)
			} else {
				e.side.remove(e.price)
			}
		}
		return ErrBookCrossed
	}

	ob.trimDepth()
	ob.lastUpdateId = update.LastUpdateId
	ob.updatedAt = now
	return nil
}

func (ob *OrderBook) applyDeltas(side *bookSide, deltas []LevelDelta, now int64, undo []undoEntry) []undoEntry {
	for _, delta := range deltas {
		prev, existed := side.get(delta.Price)
		undo = append(undo, undoEntry{side: side, price: delta.Price, prev: prev, existed: existed})

		if delta.Qty == 0 {
			side.remove(delta.Price)
		} else {
			side.put(Level{Price: delta.Price, Qty: delta.Qty, UpdatedAt: now})
		}
	}
	return undo
}

func (ob *OrderBook) crossed() bool {
	bestBid, hasBid := ob.bids.best()
	bestAsk, hasAsk := ob.asks.best()
	return hasBid && hasAsk && bestBid.Price >= bestAsk.Price
}

func (ob *OrderBook) trimDepth() {
	if ob.maxDepth <= 0 {
		return
	}
	for ob.bids.len() > ob.maxDepth {
		ob.bids.evictWorst()
	}
	for ob.asks.len() > ob.maxDepth {
		ob.asks.evictWorst()
	}
}

func (ob *OrderBook) BestBid() (Level, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bids.best()
}

func (ob *OrderBook) BestAsk() (Level, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.asks.best()
}

// Spread returns bestAsk - bestBid, or false when either side is empty.
func (ob *OrderBook) Spread() (Price, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	bestBid, hasBid := ob.bids.best()
	bestAsk, hasAsk := ob.asks.best()
	if !hasBid || !hasAsk {
		return 0, false
	}
	return bestAsk.Price - bestBid.Price, true
}

func (ob *OrderBook) Depth() (bids int, asks int) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bids.len(), ob.asks.len()
}

func (ob *OrderBook) LastUpdateId() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastUpdateId
}

func (ob *OrderBook) UpdatedAt() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.updatedAt
}

func (ob *OrderBook) Status() BookStatus {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.status
}

func (ob *OrderBook) setStatus(status BookStatus) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.status = status
}

// TakeSnapshot copies the top `depth` levels per side into an immutable
// snapshot. depth <= 0 copies the whole book.
func (ob *OrderBook) TakeSnapshot(depth int) *Snapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	return &Snapshot{
		Symbol:       ob.Symbol.String(),
		Source:       SnapshotSource_LocalBook,
		LastUpdateId: ob.lastUpdateId,
		TakenAt:      helpers.NowMicros(),
		Status:       ob.status,
		Bids:         ob.bids.top(depth),
		Asks:         ob.asks.top(depth),
	}
}
