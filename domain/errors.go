package domain

import "errors"

var (
	// ErrBookCrossed reports that applying an update would leave
	// bestBid >= bestAsk. The offending update is rolled back; the
	// configured policy decides whether to resync or skip it.
	ErrBookCrossed = errors.New("order book is crossed")

	// ErrBaselineUnavailable is returned when every baseline fetch attempt
	// of a resync has failed. The symbol's book is stale until a later
	// resync succeeds.
	ErrBaselineUnavailable = errors.New("baseline snapshot provider unavailable")

	ErrOrderBookNotFound = errors.New("order book not found")
)
