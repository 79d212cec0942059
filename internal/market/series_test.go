package market

import (
	"errors"
	"testing"
	"time"
)

func TestSeriesApply(t *testing.T) {
	s := NewSeries(3)
	s.Reset([]Candle{{Time: 60, Close: 1}, {Time: 120, Close: 2}})

	// same bucket replaces
	if err := s.Apply(Candle{Time: 120, Close: 2.5}); err != nil {
		t.Fatalf("apply same bucket: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 candles after replace, got %d", s.Len())
	}
	if last, _ := s.Last(); last.Close != 2.5 {
		t.Errorf("expected replaced close 2.5, got %v", last.Close)
	}

	// older bucket rejected
	if err := s.Apply(Candle{Time: 60, Close: 9}); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("expected ErrOutOfOrder, got %v", err)
	}

	// newer buckets append, capped at max
	for _, ts := range []int64{180, 240} {
		if err := s.Apply(Candle{Time: ts, Close: float64(ts)}); err != nil {
			t.Fatalf("apply %d: %v", ts, err)
		}
	}
	got := s.Candles()
	if len(got) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(got))
	}
	if got[0].Time != 120 || got[2].Time != 240 {
		t.Errorf("unexpected window: %+v", got)
	}
}

func TestSeriesResetTrimsAndCopies(t *testing.T) {
	s := NewSeries(2)
	in := []Candle{{Time: 1}, {Time: 2}, {Time: 3}}
	s.Reset(in)
	in[2].Close = 42

	got := s.Candles()
	if len(got) != 2 || got[0].Time != 2 {
		t.Fatalf("unexpected window: %+v", got)
	}
	if got[1].Close == 42 {
		t.Error("series must not alias the caller's slice")
	}
}

func TestPairMapping(t *testing.T) {
	tests := []struct {
		symbol, pair string
	}{
		{"BTC", "BTCUSDT"},
		{"eth", "ETHUSDT"},
		{"SOLUSDT", "SOLUSDT"},
	}
	for _, tt := range tests {
		if got := PairFor(tt.symbol); got != tt.pair {
			t.Errorf("PairFor(%q) = %q, want %q", tt.symbol, got, tt.pair)
		}
	}
	if got := SymbolFor("BTCUSDT"); got != "BTC" {
		t.Errorf("SymbolFor(BTCUSDT) = %q", got)
	}
}

func TestIntervalDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1m", time.Minute, false},
		{"15m", 15 * time.Minute, false},
		{"4h", 4 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"m", 0, true},
		{"5x", 0, true},
		{"0m", 0, true},
	}
	for _, tt := range tests {
		got, err := IntervalDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("IntervalDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("IntervalDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
