package binance

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"cryptosim-bot/internal/market"
)

// MockFeed provides simulated random-walk market data for offline runs and tests
type MockFeed struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	now    func() time.Time
	tick   time.Duration
}

// NewMockFeed creates a mock feed that emits a live update every tick
func NewMockFeed(tick time.Duration) *MockFeed {
	if tick <= 0 {
		tick = time.Second
	}
	return &MockFeed{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		prices: map[string]float64{
			"BTCUSDT": 104500.00,
			"ETHUSDT": 3900.00,
			"BNBUSDT": 710.00,
			"SOLUSDT": 220.00,
			"XRPUSDT": 2.35,
		},
		now:  time.Now,
		tick: tick,
	}
}

func (m *MockFeed) basePrice(pair string) float64 {
	if p, ok := m.prices[pair]; ok {
		return p
	}
	return 100.0
}

// nextCandle draws one random-walk bar from open, with 0.2% volatility.
func (m *MockFeed) nextCandle(ts int64, open float64) market.Candle {
	volatility := open * 0.002
	closePrice := open + (m.rng.Float64()-0.5)*volatility
	high := math.Max(open, closePrice) + m.rng.Float64()*volatility*0.5
	low := math.Min(open, closePrice) - m.rng.Float64()*volatility*0.5
	return market.Candle{
		Time:   ts,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: m.rng.Float64() * 100,
	}
}

func (m *MockFeed) FetchHistory(_ context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	step, err := market.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pair := market.PairFor(symbol)
	bucket := int64(step / time.Second)
	current := m.now().Unix() / bucket * bucket
	start := current - int64(limit-1)*bucket

	candles := make([]market.Candle, 0, limit)
	price := m.basePrice(pair)
	for i := 0; i < limit; i++ {
		c := m.nextCandle(start+int64(i)*bucket, price)
		candles = append(candles, c)
		price = c.Close
	}
	m.prices[pair] = price
	return candles, nil
}

func (m *MockFeed) Subscribe(ctx context.Context, symbol, interval string, onCandle func(market.Candle)) (func(), error) {
	step, err := market.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	pair := market.PairFor(symbol)
	bucket := int64(step / time.Second)

	go func() {
		ticker := time.NewTicker(m.tick)
		defer ticker.Stop()

		var current market.Candle
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			m.mu.Lock()
			ts := m.now().Unix() / bucket * bucket
			price := m.basePrice(pair)
			next := m.nextCandle(ts, price)
			if current.Time == ts {
				// intra-bucket update keeps the bucket's open and extremes
				next.Open = current.Open
				next.High = math.Max(current.High, next.High)
				next.Low = math.Min(current.Low, next.Low)
			}
			current = next
			m.prices[pair] = next.Close
			m.mu.Unlock()

			onCandle(next)
		}
	}()
	return cancel, nil
}
