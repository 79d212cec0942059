package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Candle is an OHLC bar keyed by its bucket start time (unix seconds).
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume,omitempty"`
}

// Closes extracts the close prices of a candle slice.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// Feed supplies candle history and live candle updates for a symbol.
type Feed interface {
	// FetchHistory returns up to limit candles ordered by time ascending.
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// Subscribe delivers candle mutations, including intra-bucket updates
	// before the bucket closes. The returned cancel func stops delivery.
	Subscribe(ctx context.Context, symbol, interval string, onCandle func(Candle)) (func(), error)
}

// QuoteAsset is appended to plain symbols to form an exchange pair.
const QuoteAsset = "USDT"

// PairFor maps a plain symbol to its exchange pair (BTC -> BTCUSDT).
// Symbols already carrying the quote asset are returned upper-cased.
func PairFor(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, QuoteAsset) && len(s) > len(QuoteAsset) {
		return s
	}
	return s + QuoteAsset
}

// SymbolFor maps an exchange pair back to its plain symbol (BTCUSDT -> BTC).
func SymbolFor(pair string) string {
	p := strings.ToUpper(pair)
	if strings.HasSuffix(p, QuoteAsset) && len(p) > len(QuoteAsset) {
		return strings.TrimSuffix(p, QuoteAsset)
	}
	return p
}

// IntervalDuration converts a kline interval such as "1m", "15m", "4h" or
// "1d" to its bucket length.
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	unit := map[byte]time.Duration{
		's': time.Second,
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	}[interval[len(interval)-1]]
	if unit == 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	return time.Duration(n) * unit, nil
}
