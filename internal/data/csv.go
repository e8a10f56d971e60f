// Package data provides historical candle providers for the backtest
// engine and walk-forward validator: CSV and parquet files of closed
// OHLCV bars.
package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/domain"
)

// CSVCandleProvider loads closed bars from a CSV file with a header row
// containing at minimum timestamp,open,high,low,close; symbol, volume,
// quote_volume, trade_count and interval are optional and default per
// column. Columns are resolved by name, not position.
type CSVCandleProvider struct {
	Path     string
	Market   domain.Market
	Interval string
}

// Load reads every row, validates bar invariants, sorts ascending by
// timestamp, and restricts the result to [start, end) and the given
// symbol set when either is non-empty.
func (p CSVCandleProvider) Load(start, end time.Time, symbols []string) ([]domain.Bar, error) {
	file, err := os.Open(p.Path)
	if err != nil {
		return nil, coreerrors.DataFeed(fmt.Sprintf("open candle csv %s", p.Path), err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, coreerrors.DataFeed(fmt.Sprintf("read candle csv %s", p.Path), err)
	}
	if len(records) < 2 {
		return nil, coreerrors.DataFeed(fmt.Sprintf("candle csv %s has no data rows", p.Path), nil)
	}

	header := make(map[string]int, len(records[0]))
	for idx, col := range records[0] {
		header[strings.ToLower(strings.TrimSpace(col))] = idx
	}

	required := []string{"timestamp", "open", "high", "low", "close"}
	for _, key := range required {
		if _, ok := header[key]; !ok {
			return nil, coreerrors.DataFeed(fmt.Sprintf("candle csv %s missing required column %q", p.Path, key), nil)
		}
	}

	symbolSet := toSet(symbols)

	var bars []domain.Bar
	for i, record := range records[1:] {
		bar, err := p.parseRow(record, header)
		if err != nil {
			return nil, coreerrors.DataFeed(fmt.Sprintf("candle csv %s row %d", p.Path, i+2), err)
		}
		if err := bar.Validate(); err != nil {
			return nil, coreerrors.DataFeed(fmt.Sprintf("candle csv %s row %d", p.Path, i+2), err)
		}
		if len(symbolSet) > 0 && !symbolSet[bar.Symbol] {
			continue
		}
		if !start.IsZero() && bar.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !bar.Timestamp.Before(end) {
			continue
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func (p CSVCandleProvider) parseRow(record []string, header map[string]int) (domain.Bar, error) {
	ts, err := time.Parse(time.RFC3339, record[header["timestamp"]])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("invalid timestamp %q: %w", record[header["timestamp"]], err)
	}

	open, err := parseDecimal(record[header["open"]])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("invalid open: %w", err)
	}
	high, err := parseDecimal(record[header["high"]])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("invalid high: %w", err)
	}
	low, err := parseDecimal(record[header["low"]])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("invalid low: %w", err)
	}
	closePrice, err := parseDecimal(record[header["close"]])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("invalid close: %w", err)
	}

	volume := decimal.Zero
	if idx, ok := header["volume"]; ok && idx < len(record) && record[idx] != "" {
		if volume, err = parseDecimal(record[idx]); err != nil {
			volume = decimal.Zero
		}
	}

	symbol := "UNKNOWN"
	if idx, ok := header["symbol"]; ok && idx < len(record) && record[idx] != "" {
		symbol = record[idx]
	}

	interval := p.Interval
	if idx, ok := header["interval"]; ok && idx < len(record) && record[idx] != "" {
		interval = record[idx]
	}

	var quoteVolume *decimal.Decimal
	if idx, ok := header["quote_volume"]; ok && idx < len(record) && record[idx] != "" {
		if qv, err := parseDecimal(record[idx]); err == nil {
			quoteVolume = &qv
		}
	}

	var tradeCount *int64
	if idx, ok := header["trade_count"]; ok && idx < len(record) && record[idx] != "" {
		if tc, err := strconv.ParseInt(record[idx], 10, 64); err == nil {
			tradeCount = &tc
		}
	}

	return domain.Bar{
		Market:      p.Market,
		Symbol:      symbol,
		Timestamp:   ts.UTC(),
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePrice,
		Volume:      volume,
		QuoteVolume: quoteVolume,
		TradeCount:  tradeCount,
		Interval:    interval,
		IsClosed:    true,
	}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
