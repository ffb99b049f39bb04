package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice_EqualRepresentations(t *testing.T) {
	// Two wire representations of the same economic price must land on
	// the same key.
	a, err := ParsePrice("50000.00")
	assert.NoError(t, err)
	b, err := ParsePrice("50000")
	assert.NoError(t, err)

	assert.Equal(t, a, b, "equal prices should parse to the same tick count")
}

func TestParsePrice_Scaling(t *testing.T) {
	tests := []struct {
		in       string
		expected Price
	}{
		{"0.00000001", 1},
		{"1", 100000000},
		{"50000.5", 5000050000000},
	}

	for _, tt := range tests {
		price, err := ParsePrice(tt.in)
		assert.NoError(t, err)
		assert.Equal(t, tt.expected, price, "unexpected ticks for %s", tt.in)
	}
}

func TestParsePrice_Invalid(t *testing.T) {
	_, err := ParsePrice("not-a-number")
	assert.Error(t, err, "garbage should not parse")

	_, err = ParsePrice("-1.5")
	assert.Error(t, err, "negative prices should not parse")
}

func TestPrice_String(t *testing.T) {
	price, err := ParsePrice("50000.25")
	assert.NoError(t, err)
	assert.Equal(t, "50000.25", price.String())

	qty, err := ParseQty("1.5")
	assert.NoError(t, err)
	assert.Equal(t, "1.5", qty.String())
}
