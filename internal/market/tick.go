package market

import (
	"strings"
	"time"
)

// Tick represents a single normalized trade event received from the exchange.
// Ticks are immutable once constructed.
type Tick struct {
	Symbol string    `json:"symbol"` // lowercase trading symbol (e.g., "btcusdt")
	TS     time.Time `json:"ts"`     // trade time in UTC
	Price  float64   `json:"price"`  // trade price
	Size   float64   `json:"size"`   // traded quantity
}

// NormalizeSymbol lowercases and trims a symbol so every component agrees on
// the same key.
func NormalizeSymbol(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}
