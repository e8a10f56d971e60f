package data

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/domain"
)

// parquetBarRow is the on-disk schema closed bars are written in; only
// closed bars reach storage, so every loaded row is a closed bar.
type parquetBarRow struct {
	Timestamp   int64   `parquet:"name=timestamp"`
	Symbol      string  `parquet:"name=symbol"`
	Open        float64 `parquet:"name=open"`
	High        float64 `parquet:"name=high"`
	Low         float64 `parquet:"name=low"`
	Close       float64 `parquet:"name=close"`
	Volume      float64 `parquet:"name=volume"`
	QuoteVolume float64 `parquet:"name=quote_volume"`
	TradeCount  int64   `parquet:"name=trade_count"`
	Interval    string  `parquet:"name=interval"`
}

// ParquetCandleProvider loads closed bars from a local parquet file.
type ParquetCandleProvider struct {
	Path   string
	Market domain.Market
}

// Load reads every row, converts it to a domain.Bar, and restricts the
// result to [start, end) and the given symbol set when either is non-empty.
func (p ParquetCandleProvider) Load(start, end time.Time, symbols []string) ([]domain.Bar, error) {
	fr, err := local.NewLocalFileReader(p.Path)
	if err != nil {
		return nil, coreerrors.DataFeed(fmt.Sprintf("open candle parquet %s", p.Path), err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(parquetBarRow), 4)
	if err != nil {
		return nil, coreerrors.DataFeed(fmt.Sprintf("init candle parquet reader %s", p.Path), err)
	}
	defer pr.ReadStop()

	numRows := int(pr.GetNumRows())
	rows := make([]parquetBarRow, numRows)
	if err := pr.Read(&rows); err != nil {
		return nil, coreerrors.DataFeed(fmt.Sprintf("read candle parquet %s", p.Path), err)
	}

	symbolSet := toSet(symbols)

	var bars []domain.Bar
	for _, row := range rows {
		if len(symbolSet) > 0 && !symbolSet[row.Symbol] {
			continue
		}
		ts := parquetTimestamp(row.Timestamp)
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && !ts.Before(end) {
			continue
		}

		bar := domain.Bar{
			Market:    p.Market,
			Symbol:    row.Symbol,
			Timestamp: ts,
			Open:      decimal.NewFromFloat(row.Open),
			High:      decimal.NewFromFloat(row.High),
			Low:       decimal.NewFromFloat(row.Low),
			Close:     decimal.NewFromFloat(row.Close),
			Volume:    decimal.NewFromFloat(row.Volume),
			Interval:  row.Interval,
			IsClosed:  true,
		}
		if row.QuoteVolume != 0 {
			qv := decimal.NewFromFloat(row.QuoteVolume)
			bar.QuoteVolume = &qv
		}
		if row.TradeCount != 0 {
			tc := row.TradeCount
			bar.TradeCount = &tc
		}
		if err := bar.Validate(); err != nil {
			return nil, coreerrors.DataFeed(fmt.Sprintf("candle parquet %s row for %s at %s", p.Path, row.Symbol, ts), err)
		}
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

// parquetTimestamp sniffs the epoch unit of a raw timestamp: seconds,
// milliseconds, or nanoseconds.
func parquetTimestamp(raw int64) time.Time {
	switch {
	case raw > 1e16:
		return time.Unix(0, raw).UTC()
	case raw > 1e12:
		return time.Unix(0, raw*int64(time.Millisecond)).UTC()
	default:
		return time.Unix(raw, 0).UTC()
	}
}
