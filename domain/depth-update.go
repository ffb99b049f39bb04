package domain

import "fmt"

// LevelDelta is a single change to one side of the book. Qty == 0 means the
// level at Price is removed.
type LevelDelta struct {
	Price Price
	Qty   Qty
}

// DepthUpdate is an incremental depth diff covering the update id range
// [FirstUpdateId, LastUpdateId].
type DepthUpdate struct {
	Symbol        *MarketSymbol
	FirstUpdateId int64
	LastUpdateId  int64
	Bids          []LevelDelta
	Asks          []LevelDelta
}

func NewDepthUpdate(
	symbol *MarketSymbol,
	firstUpdateId, lastUpdateId int64,
	bids, asks [][]string,
) (*DepthUpdate, error) {
	if firstUpdateId > lastUpdateId {
		return nil, fmt.Errorf("firstUpdateId %d > lastUpdateId %d", firstUpdateId, lastUpdateId)
	}

	parsedBids, err := parseLevelDeltas(bids)
	if err != nil {
		return nil, err
	}
	parsedAsks, err := parseLevelDeltas(asks)
	if err != nil {
		return nil, err
	}

	return &DepthUpdate{
		Symbol:        symbol,
		FirstUpdateId: firstUpdateId,
		LastUpdateId:  lastUpdateId,
		Bids:          parsedBids,
		Asks:          parsedAsks,
	}, nil
}

func parseLevelDeltas(levels [][]string) ([]LevelDelta, error) {
	result := make([]LevelDelta, 0, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			return nil, fmt.Errorf("malformed price level %v", level)
		}
		price, err := ParsePrice(level[0])
		if err != nil {
			return nil, err
		}
		qty, err := ParseQty(level[1])
		if err != nil {
			return nil, err
		}
		result = append(result, LevelDelta{Price: price, Qty: qty})
	}
	return result, nil
}

// BaselineSnapshot is the authoritative book state returned by the external
// snapshot provider. Levels are kept in wire format; parsing happens when
// the book is rebuilt from it.
type BaselineSnapshot struct {
	LastUpdateId int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}
