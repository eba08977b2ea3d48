package ingest

import (
	"encoding/json"
	"strconv"
	"time"

	"pairstream/internal/market"
)

// tradeMessage is the shape of a Binance futures trade stream event.
type tradeMessage struct {
	Event     string `json:"e"` // event type, "trade" for trade events
	EventTime int64  `json:"E"` // event time in ms
	TradeTime int64  `json:"T"` // trade time in ms
	Price     string `json:"p"`
	Quantity  string `json:"q"`
}

// parseTrade normalizes a raw feed message into a Tick. Messages of
// unrecognized shape or with missing required fields report ok=false and are
// dropped by the caller.
func parseTrade(symbol string, raw []byte) (market.Tick, bool) {
	var msg tradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return market.Tick{}, false
	}
	if msg.Event != "trade" {
		return market.Tick{}, false
	}

	tsMillis := msg.TradeTime
	if tsMillis == 0 {
		tsMillis = msg.EventTime
	}
	if tsMillis == 0 {
		return market.Tick{}, false
	}

	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil || price < 0 {
		return market.Tick{}, false
	}
	size, err := strconv.ParseFloat(msg.Quantity, 64)
	if err != nil || size < 0 {
		return market.Tick{}, false
	}

	return market.Tick{
		Symbol: symbol,
		TS:     time.UnixMilli(tsMillis).UTC(),
		Price:  price,
		Size:   size,
	}, true
}
