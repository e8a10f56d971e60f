// Package wsfeed implements the live.DataFeed port over a websocket
// kline stream plus a REST backfill endpoint. Any venue exposing a
// combined kline-stream websocket and a /klines-shaped REST endpoint can
// be plugged in through Config without touching this file.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/live"
)

// Config points the feed at a venue's websocket/REST endpoints.
type Config struct {
	Market        domain.Market
	WSBaseURL     string // e.g. "wss://stream.example.com/ws"
	RESTBaseURL   string // e.g. "https://api.example.com"
	ReconnectWait time.Duration
}

// Feed streams closed candles for a fixed symbol/interval set over a
// combined kline websocket stream, reconnecting with a fixed backoff on
// disconnect.
type Feed struct {
	cfg    Config
	logger zerolog.Logger
	client *http.Client

	mu       sync.Mutex
	conn     *websocket.Conn
	symbols  []string
	interval string
	running  bool

	bars chan domain.Bar
	errs chan error
	stop chan struct{}
}

// New constructs a disconnected Feed.
func New(cfg Config, logger zerolog.Logger) *Feed {
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	return &Feed{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
		bars:   make(chan domain.Bar, 256),
		errs:   make(chan error, 16),
		stop:   make(chan struct{}),
	}
}

func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	return nil
}

func (f *Feed) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	conn := f.conn
	f.mu.Unlock()

	close(f.stop)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// SubscribeCandles records the symbol/interval set and starts the
// reconnecting websocket loop. Calling it again while already subscribed
// replaces the stream (the loop picks up the new symbol set on its next
// reconnect).
func (f *Feed) SubscribeCandles(ctx context.Context, symbols []string, interval string) error {
	f.mu.Lock()
	f.symbols = symbols
	f.interval = interval
	f.mu.Unlock()

	go f.run(ctx)
	return nil
}

// Unsubscribe clears the symbol set and forces a reconnect, which drops the
// stream (the venue sends nothing once no streams are requested).
func (f *Feed) Unsubscribe(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	f.symbols = nil
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (f *Feed) StreamBars(ctx context.Context) (<-chan domain.Bar, <-chan error) {
	return f.bars, f.errs
}

func (f *Feed) run(ctx context.Context) {
	for {
		f.mu.Lock()
		running := f.running
		f.mu.Unlock()
		if !running {
			return
		}

		if err := f.connectAndRead(ctx); err != nil {
			select {
			case f.errs <- err:
			default:
				f.logger.Warn().Err(err).Msg("wsfeed error channel full, dropping")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-f.stop:
			return
		case <-time.After(f.cfg.ReconnectWait):
		}
	}
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	f.mu.Lock()
	symbols := append([]string(nil), f.symbols...)
	interval := f.interval
	f.mu.Unlock()

	if len(symbols) == 0 {
		return nil
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(s), interval))
	}
	url := fmt.Sprintf("%s/stream?streams=%s", f.cfg.WSBaseURL, strings.Join(streams, "/"))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return coreerrors.DataFeed(fmt.Sprintf("dial kline stream %s", url), err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.logger.Info().Str("url", url).Msg("wsfeed connected")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return coreerrors.DataFeed("kline stream read", err)
		}
		bar, closed, err := parseKlineMessage(message, f.cfg.Market)
		if err != nil {
			f.logger.Warn().Err(err).Msg("failed to parse kline message, skipping")
			continue
		}
		if !closed {
			continue
		}
		select {
		case f.bars <- bar:
		case <-ctx.Done():
			return nil
		}
	}
}

type klineEnvelope struct {
	Data struct {
		Symbol string `json:"s"`
		Kline  struct {
			StartTime int64  `json:"t"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Close     string `json:"c"`
			Volume    string `json:"v"`
			QuoteVol  string `json:"q"`
			Trades    int64  `json:"n"`
			IsClosed  bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func parseKlineMessage(raw []byte, market domain.Market) (domain.Bar, bool, error) {
	var env klineEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.Bar{}, false, err
	}
	k := env.Data.Kline

	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return domain.Bar{}, false, fmt.Errorf("invalid open: %w", err)
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return domain.Bar{}, false, fmt.Errorf("invalid high: %w", err)
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return domain.Bar{}, false, fmt.Errorf("invalid low: %w", err)
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return domain.Bar{}, false, fmt.Errorf("invalid close: %w", err)
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		volume = decimal.Zero
	}

	bar := domain.Bar{
		Market:    market,
		Symbol:    env.Data.Symbol,
		Timestamp: time.UnixMilli(k.StartTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Interval:  k.Interval,
		IsClosed:  k.IsClosed,
	}
	if k.QuoteVol != "" {
		if qv, err := decimal.NewFromString(k.QuoteVol); err == nil {
			bar.QuoteVolume = &qv
		}
	}
	if k.Trades > 0 {
		tc := k.Trades
		bar.TradeCount = &tc
	}
	return bar, k.IsClosed, bar.Validate()
}

// GetHistorical backfills via the venue's REST klines endpoint,
// returning validated rows restricted to [start, *end) when end is
// non-nil.
func (f *Feed) GetHistorical(ctx context.Context, symbol, interval string, start time.Time, end *time.Time, limit int) ([]domain.Bar, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&startTime=%d&limit=%d",
		f.cfg.RESTBaseURL, symbol, interval, start.UnixMilli(), limit)
	if end != nil {
		url = fmt.Sprintf("%s&endTime=%d", url, end.UnixMilli())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, coreerrors.DataFeed("build historical klines request", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, coreerrors.DataFeed(fmt.Sprintf("fetch historical klines for %s", symbol), err)
	}
	defer resp.Body.Close()

	var raw [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, coreerrors.DataFeed("decode historical klines response", err)
	}

	bars := make([]domain.Bar, 0, len(raw))
	for _, row := range raw {
		if len(row) < 7 {
			continue
		}
		openTime, _ := row[0].(float64)
		open, _ := decimal.NewFromString(row[1].(string))
		high, _ := decimal.NewFromString(row[2].(string))
		low, _ := decimal.NewFromString(row[3].(string))
		closePrice, _ := decimal.NewFromString(row[4].(string))
		volume, _ := decimal.NewFromString(row[5].(string))

		bar := domain.Bar{
			Market:    f.cfg.Market,
			Symbol:    symbol,
			Timestamp: time.UnixMilli(int64(openTime)).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			Interval:  interval,
			IsClosed:  true,
		}
		if err := bar.Validate(); err != nil {
			return nil, coreerrors.DataFeed(fmt.Sprintf("historical kline for %s at %s", symbol, bar.Timestamp), err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

var _ live.DataFeed = (*Feed)(nil)
