package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Prices and quantities are stored as scaled integer ticks so that two wire
// representations of the same economic value ("50000", "50000.00") land on
// the same map key. Floats are never used as keys.
const (
	PriceExp int32 = 8
	QtyExp   int32 = 8
)

type Price int64

type Qty int64

func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative price %q", s)
	}
	return Price(d.Shift(PriceExp).IntPart()), nil
}

func ParseQty(s string) (Qty, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative quantity %q", s)
	}
	return Qty(d.Shift(QtyExp).IntPart()), nil
}

func (p Price) String() string {
	return decimal.New(int64(p), -PriceExp).String()
}

func (q Qty) String() string {
	return decimal.New(int64(q), -QtyExp).String()
}

// Level is a single price point with its aggregate resting quantity.
type Level struct {
	Price     Price
	Qty       Qty
	UpdatedAt int64 // micros
}
