package market

import (
	"errors"
	"sync"
)

// DefaultMaxCandles bounds how many candles a Series keeps in memory.
const DefaultMaxCandles = 1000

var ErrOutOfOrder = errors.New("candle older than last bucket")

// Series is an ordered candle window for one symbol. An update for the
// current bucket replaces it; a newer bucket appends; older buckets are
// rejected.
type Series struct {
	mu      sync.RWMutex
	candles []Candle
	maxLen  int
}

// NewSeries creates a series capped at maxLen candles (DefaultMaxCandles if maxLen <= 0).
func NewSeries(maxLen int) *Series {
	if maxLen <= 0 {
		maxLen = DefaultMaxCandles
	}
	return &Series{maxLen: maxLen}
}

// Reset replaces the whole window, e.g. after loading history for a new symbol.
func (s *Series) Reset(candles []Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if len(candles) > s.maxLen {
		start = len(candles) - s.maxLen
	}
	s.candles = append(make([]Candle, 0, len(candles)-start), candles[start:]...)
}

// Apply merges a live candle update into the window.
func (s *Series) Apply(c Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.candles)
	if n > 0 {
		last := s.candles[n-1]
		switch {
		case c.Time == last.Time:
			s.candles[n-1] = c
			return nil
		case c.Time < last.Time:
			return ErrOutOfOrder
		}
	}

	s.candles = append(s.candles, c)
	if len(s.candles) > s.maxLen {
		s.candles = append(s.candles[:0:0], s.candles[len(s.candles)-s.maxLen:]...)
	}
	return nil
}

// Candles returns a copy of the window.
func (s *Series) Candles() []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Candle(nil), s.candles...)
}

// Last returns the most recent candle.
func (s *Series) Last() (Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}
