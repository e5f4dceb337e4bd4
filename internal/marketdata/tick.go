package marketdata

import "github.com/rovshanmuradov/trading-core/internal/atomicfloat"

// Tick is a single market-data observation for one token.
type Tick struct {
	Token     string  // token mint address
	Price     float64 // token price in USD
	Volume    float64 // traded volume over the reporting window
	Timestamp int64   // unix milliseconds at the source
	Source    string  // feed identifier, e.g. "dexscreener"
}

// Valid reports whether the tick carries usable numeric data. Non-finite
// prices are a feed anomaly and never enter a queue.
func (t Tick) Valid() bool {
	return t.Token != "" && atomicfloat.IsFinite(t.Price) && atomicfloat.IsFinite(t.Volume)
}
