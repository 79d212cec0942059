package strategy

import (
	"cryptosim-bot/internal/market"
)

// SignalType is the evaluator's recommendation
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

const (
	DefaultMinCandles = 25

	shortEMAPeriod  = 9
	longEMAPeriod   = 21
	rsiPeriod       = 9
	bollingerPeriod = 20
	bollingerStdDev = 2.0

	trendWeight      = 0.4
	momentumWeight   = 0.3
	volatilityWeight = 0.3

	// BUY at or above buyThreshold, SELL at or below sellThreshold. The gap
	// makes exits easier to trigger than entries.
	buyThreshold  = 55.0
	sellThreshold = 48.0

	neutralScore = 50.0
)

// Indicators are the raw values behind a composite score
type Indicators struct {
	ShortEMA float64 `json:"short_ema"`
	LongEMA  float64 `json:"long_ema"`
	RSI      float64 `json:"rsi"`
	Upper    float64 `json:"bb_upper"`
	Middle   float64 `json:"bb_middle"`
	Lower    float64 `json:"bb_lower"`
	Price    float64 `json:"price"`
}

// Result is one evaluation of a candle window
type Result struct {
	Name            string     `json:"name"`
	Signal          SignalType `json:"signal"`
	Confidence      float64    `json:"confidence"`
	TrendScore      float64    `json:"trend_score"`
	MomentumScore   float64    `json:"momentum_score"`
	VolatilityScore float64    `json:"volatility_score"`
	Indicators      Indicators `json:"indicators"`
}

// Evaluator computes a weighted composite score from trend, momentum and
// volatility components
type Evaluator struct {
	minCandles int
}

// NewEvaluator creates an evaluator requiring at least minCandles candles
func NewEvaluator(minCandles int) *Evaluator {
	if minCandles < longEMAPeriod {
		minCandles = DefaultMinCandles
	}
	return &Evaluator{minCandles: minCandles}
}

func (e *Evaluator) Name() string {
	return "Composite Probability"
}

// MinCandles returns the minimum window size
func (e *Evaluator) MinCandles() int {
	return e.minCandles
}

// Evaluate scores the candle window. Short windows yield HOLD at 50.
func (e *Evaluator) Evaluate(candles []market.Candle) Result {
	if len(candles) < e.minCandles {
		return Result{
			Name:            e.Name(),
			Signal:          SignalHold,
			Confidence:      neutralScore,
			TrendScore:      neutralScore,
			MomentumScore:   neutralScore,
			VolatilityScore: neutralScore,
		}
	}

	ind := Indicators{
		ShortEMA: CalculateEMA(candles, shortEMAPeriod),
		LongEMA:  CalculateEMA(candles, longEMAPeriod),
		RSI:      CalculateRSI(candles, rsiPeriod),
		Price:    candles[len(candles)-1].Close,
	}
	bb := CalculateBollingerBands(candles, bollingerPeriod, bollingerStdDev)
	ind.Upper, ind.Middle, ind.Lower = bb.Upper, bb.Middle, bb.Lower

	trend := trendScore(ind.ShortEMA, ind.LongEMA)
	momentum := momentumScore(ind.RSI)
	volatility := volatilityScore(ind.Price, bb)

	score := trend*trendWeight + momentum*momentumWeight + volatility*volatilityWeight

	return Result{
		Name:            e.Name(),
		Signal:          classify(score),
		Confidence:      score,
		TrendScore:      trend,
		MomentumScore:   momentum,
		VolatilityScore: volatility,
		Indicators:      ind,
	}
}

func trendScore(shortEMA, longEMA float64) float64 {
	switch {
	case shortEMA > longEMA:
		return 70
	case shortEMA < longEMA:
		return 30
	default:
		return neutralScore
	}
}

func momentumScore(rsi float64) float64 {
	switch {
	case rsi < 40:
		return 70
	case rsi > 60:
		return 30
	default:
		return neutralScore
	}
}

func volatilityScore(price float64, bb BollingerBandsResult) float64 {
	switch {
	case price <= bb.Lower:
		return 80
	case price >= bb.Upper:
		return 20
	default:
		return neutralScore
	}
}

func classify(score float64) SignalType {
	switch {
	case score >= buyThreshold:
		return SignalBuy
	case score <= sellThreshold:
		return SignalSell
	default:
		return SignalHold
	}
}
