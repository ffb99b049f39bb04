package domain

// BaselineProvider is the external snapshot collaborator used for resync.
// Any transport error it returns is treated as retryable.
type BaselineProvider interface {
	OrderBookSnapshot(symbol *MarketSymbol, limit int) (*BaselineSnapshot, error)
}

// DepthStreamAPI is the external transport collaborator delivering depth
// updates in arrival order, which is not necessarily sequence order.
type DepthStreamAPI interface {
	DepthDiffStream(symbol *MarketSymbol) (*Subscription[*DepthUpdate], error)
}

type Subscription[T any] struct {
	Stream      chan T
	Unsubscribe func()
	Topic       string
}
