package etl

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"marketetl/pkg/marketdata"
)

const defaultRetryBackoff = time.Second

// Extractor fetches raw daily observations for a set of symbols, trying an
// ordered list of sources per symbol with exactly one retry after a fixed
// backoff. Symbols that stay empty after both attempts are logged as
// warnings and dropped; extraction itself never fails the batch.
type Extractor struct {
	sources []marketdata.Provider
	backoff time.Duration
}

// NewExtractor builds an extractor over the given ordered sources.
func NewExtractor(sources []marketdata.Provider, backoff time.Duration) *Extractor {
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &Extractor{sources: sources, backoff: backoff}
}

// FetchPrices fetches daily observations for every symbol over [start, end].
// The result contains no rows for symbols that yielded no data. Rows carry
// the name of the source that produced them.
func (e *Extractor) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) []PriceObservation {
	var out []PriceObservation
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		rows := e.fetchSymbol(ctx, symbol, start, end)
		if len(rows) == 0 {
			logx.WithContext(ctx).Infof("extract: no data for symbol=%s after retry, dropping from batch", symbol)
			continue
		}
		out = append(out, rows...)
	}
	return out
}

// fetchSymbol runs the primary attempt and, after the backoff, one retry.
func (e *Extractor) fetchSymbol(ctx context.Context, symbol string, start, end time.Time) []PriceObservation {
	if rows := e.fetchOnce(ctx, symbol, start, end); len(rows) > 0 {
		return rows
	}
	if !sleepWithContext(ctx, e.backoff) {
		return nil
	}
	return e.fetchOnce(ctx, symbol, start, end)
}

// fetchOnce walks the source list in order and returns the first non-empty
// result. Source failures degrade to warnings; the next strategy is tried.
func (e *Extractor) fetchOnce(ctx context.Context, symbol string, start, end time.Time) []PriceObservation {
	for _, source := range e.sources {
		bars, err := source.DailyHistory(ctx, symbol, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logx.WithContext(ctx).Errorf("extract: source=%s symbol=%s err=%v", source.Name(), symbol, err)
			continue
		}
		if len(bars) == 0 {
			continue
		}
		return observations(symbol, source.Name(), bars)
	}
	return nil
}

func observations(symbol, source string, bars []marketdata.Bar) []PriceObservation {
	rows := make([]PriceObservation, 0, len(bars))
	for _, bar := range bars {
		rows = append(rows, PriceObservation{
			Symbol:    symbol,
			TradeDate: bar.Date,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			AdjClose:  bar.AdjClose,
			Volume:    bar.Volume,
			Source:    source,
		})
	}
	return rows
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
