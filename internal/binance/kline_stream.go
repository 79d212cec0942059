package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cryptosim-bot/internal/logging"
	"cryptosim-bot/internal/market"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 60 * time.Second

	// Klines arrive every few seconds and the server pings every few
	// minutes; silence longer than this means a half-open connection.
	defaultReadTimeout = 3 * time.Minute
	controlWriteWait   = 10 * time.Second
)

// klineEvent is the payload of a <pair>@kline_<interval> stream message
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     *struct {
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// ParseKlineMessage decodes a kline stream message into a candle. ok is
// false for messages that carry no kline.
func ParseKlineMessage(message []byte) (candle market.Candle, ok bool, err error) {
	var evt klineEvent
	if err := json.Unmarshal(message, &evt); err != nil {
		return market.Candle{}, false, fmt.Errorf("error parsing kline message: %w", err)
	}
	if evt.Kline == nil {
		return market.Candle{}, false, nil
	}
	k := evt.Kline
	return market.Candle{
		Time:   k.OpenTime / 1000,
		Open:   parseFloat(k.Open),
		High:   parseFloat(k.High),
		Low:    parseFloat(k.Low),
		Close:  parseFloat(k.Close),
		Volume: parseFloat(k.Volume),
	}, true, nil
}

// KlineStream keeps a websocket subscription to one kline stream alive,
// reconnecting with exponential backoff until its context is cancelled.
type KlineStream struct {
	url      string
	onCandle func(market.Candle)
	logger   zerolog.Logger
	dialer   *websocket.Dialer

	readTimeout time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	reconnects int
}

// NewKlineStream creates a stream for pair and interval on wsURL.
func NewKlineStream(wsURL, pair, interval string, onCandle func(market.Candle), logger zerolog.Logger) *KlineStream {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(pair), interval)
	return &KlineStream{
		url:      strings.TrimRight(wsURL, "/") + "/" + stream,
		onCandle: onCandle,
		logger:   logging.WebSocketContext(logger, market.SymbolFor(pair), stream),
		dialer:   websocket.DefaultDialer,

		readTimeout: defaultReadTimeout,
	}
}

// Run connects and reads until ctx is done.
func (s *KlineStream) Run(ctx context.Context) {
	delay := initialReconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.mu.Lock()
			s.reconnects++
			attempt := s.reconnects
			s.mu.Unlock()
			s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Kline stream connection failed")
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.reconnects = 0
		s.mu.Unlock()
		delay = initialReconnectDelay
		s.logger.Info().Msg("Kline stream connected")

		// Unblock ReadMessage when the context is cancelled, and ping so an
		// idle but healthy connection keeps extending its read deadline
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(s.readTimeout / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					conn.Close()
					return
				case <-done:
					return
				case <-ticker.C:
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait))
				}
			}
		}()

		s.readLoop(conn)
		close(done)
		conn.Close()

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Dur("retry_in", delay).Msg("Kline stream disconnected, reconnecting")
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *KlineStream) readLoop(conn *websocket.Conn) {
	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	_ = extend()
	conn.SetPongHandler(func(string) error { return extend() })
	conn.SetPingHandler(func(data string) error {
		if err := extend(); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(controlWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Warn().Dur("read_timeout", s.readTimeout).Msg("Kline stream silent, reconnecting")
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info().Msg("Kline stream closed normally")
			} else {
				s.logger.Debug().Err(err).Msg("Kline stream read error")
			}
			return
		}

		_ = extend()

		candle, ok, err := ParseKlineMessage(message)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed kline message")
			continue
		}
		if ok {
			s.onCandle(candle)
		}
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
