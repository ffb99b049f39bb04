package usecase

import (
	"log"
	"os"
	"sync"

	"github.com/itziklerner-pag/depthkeeper/domain"
	"github.com/itziklerner-pag/depthkeeper/helpers"
)

var logger = log.New(os.Stdout, "[orderbook-snapshot-usecase] ", log.LstdFlags)

// OrderBookSnapshotUseCase serves bounded-depth snapshots. A symbol that is
// not maintained yet gets its book created in the background; until the
// local book is live, the baseline provider's snapshot is passed through so
// the caller never blocks on initialization.
type OrderBookSnapshotUseCase struct {
	storage   *domain.OrderBookStorage
	streamAPI domain.DepthStreamAPI
	syncAPI   domain.BaselineProvider
	opts      domain.MaintainerOptions

	waitingRoom sync.Map
}

func NewOrderBookSnapshotUseCase(
	storage *domain.OrderBookStorage,
	streamAPI domain.DepthStreamAPI,
	syncAPI domain.BaselineProvider,
	opts domain.MaintainerOptions,
) *OrderBookSnapshotUseCase {
	return &OrderBookSnapshotUseCase{
		storage:   storage,
		streamAPI: streamAPI,
		syncAPI:   syncAPI,
		opts:      opts,
	}
}

func (o *OrderBookSnapshotUseCase) GetSnapshot(symbol *domain.MarketSymbol, depth int) (*domain.Snapshot, error) {
	if _, initializing := o.waitingRoom.Load(symbol.String()); initializing {
		return o.baselinePassthrough(symbol, depth)
	}

	maintainer, err := o.storage.Get(symbol)
	if err != nil {
		go o.createOrderBook(symbol)
		return o.baselinePassthrough(symbol, depth)
	}

	return maintainer.Book().TakeSnapshot(depth), nil
}

// Subscribe creates and registers a maintained book for the symbol,
// blocking until the initial sync finishes.
func (o *OrderBookSnapshotUseCase) Subscribe(symbol *domain.MarketSymbol) error {
	maintainer := domain.NewOrderBookMaintainer(o.streamAPI, o.syncAPI, o.opts)
	if err := maintainer.Start(symbol); err != nil {
		return err
	}
	o.storage.Add(symbol, maintainer)
	logger.Printf("orderbook for %s is added to the runtime storage", symbol)
	return nil
}

func (o *OrderBookSnapshotUseCase) Unsubscribe(symbol *domain.MarketSymbol) error {
	return o.storage.Remove(symbol)
}

func (o *OrderBookSnapshotUseCase) Storage() *domain.OrderBookStorage {
	return o.storage
}

func (o *OrderBookSnapshotUseCase) createOrderBook(symbol *domain.MarketSymbol) {
	key := symbol.String()
	if _, loaded := o.waitingRoom.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	defer o.waitingRoom.Delete(key)

	if err := o.Subscribe(symbol); err != nil {
		logger.Printf("failed to create orderbook for %s: %s", symbol, err)
	}
}

func (o *OrderBookSnapshotUseCase) baselinePassthrough(symbol *domain.MarketSymbol, depth int) (*domain.Snapshot, error) {
	baseline, err := o.syncAPI.OrderBookSnapshot(symbol, depth)
	if err != nil {
		return nil, err
	}

	parsed, err := domain.NewDepthUpdate(symbol, baseline.LastUpdateId, baseline.LastUpdateId, baseline.Bids, baseline.Asks)
	if err != nil {
		return nil, err
	}

	now := helpers.NowMicros()
	return &domain.Snapshot{
		Symbol:       symbol.String(),
		Source:       domain.SnapshotSource_Baseline,
		Status:       domain.BookStatus_Ok,
		LastUpdateId: baseline.LastUpdateId,
		TakenAt:      now,
		Bids:         deltasToLevels(parsed.Bids, now),
		Asks:         deltasToLevels(parsed.Asks, now),
	}, nil
}

func deltasToLevels(deltas []domain.LevelDelta, now int64) []domain.Level {
	levels := make([]domain.Level, 0, len(deltas))
	for _, d := range deltas {
		if d.Qty == 0 {
			continue
		}
		levels = append(levels, domain.Level{Price: d.Price, Qty: d.Qty, UpdatedAt: now})
	}
	return levels
}
