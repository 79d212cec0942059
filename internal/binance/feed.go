package binance

import (
	"context"

	"github.com/rs/zerolog"

	"cryptosim-bot/internal/market"
)

// Feed implements market.Feed on top of the public REST and websocket APIs.
type Feed struct {
	client *Client
	wsURL  string
	logger zerolog.Logger
}

// NewFeed creates a live Binance market feed
func NewFeed(baseURL, wsURL string, logger zerolog.Logger) *Feed {
	return &Feed{
		client: NewClient(baseURL, logger),
		wsURL:  wsURL,
		logger: logger,
	}
}

func (f *Feed) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	return f.client.GetKlines(ctx, market.PairFor(symbol), interval, limit)
}

func (f *Feed) Subscribe(ctx context.Context, symbol, interval string, onCandle func(market.Candle)) (func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)
	stream := NewKlineStream(f.wsURL, market.PairFor(symbol), interval, onCandle, f.logger)
	go stream.Run(streamCtx)
	return cancel, nil
}
