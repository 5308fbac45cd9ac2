package etl

import (
	"sort"
	"strings"
	"time"

	"marketetl/pkg/indicators"
)

const (
	smaWindow = 20
	emaPeriod = 20
	rsiPeriod = 14
)

// ApplyTransformations converts raw observations into enriched rows. It is
// pure: the input is never mutated. Symbols are canonicalized to upper-case
// trimmed form and trade dates reduced to a UTC calendar date; rows are then
// partitioned by symbol and sorted ascending by date, deduplicated keep-last
// per (symbol, date), and enriched with return_1d, sma_20, ema_20 and rsi_14.
// No computation ever reads across a symbol boundary. Rows missing a required
// identity field fail the whole call with a SchemaError.
func ApplyTransformations(rows []PriceObservation) ([]EnrichedPrice, error) {
	if len(rows) == 0 {
		return []EnrichedPrice{}, nil
	}

	work := make([]PriceObservation, len(rows))
	for i, r := range rows {
		symbol := strings.ToUpper(strings.TrimSpace(r.Symbol))
		switch {
		case symbol == "":
			return nil, &SchemaError{Row: i, Field: "symbol"}
		case r.TradeDate.IsZero():
			return nil, &SchemaError{Row: i, Field: "trade_date"}
		case strings.TrimSpace(r.Source) == "":
			return nil, &SchemaError{Row: i, Field: "source"}
		}
		w := r
		w.Symbol = symbol
		w.TradeDate = dateOnly(r.TradeDate)
		work[i] = w
	}

	partitions := make(map[string][]PriceObservation)
	for _, r := range work {
		partitions[r.Symbol] = append(partitions[r.Symbol], r)
	}
	symbols := make([]string, 0, len(partitions))
	for symbol := range partitions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	out := make([]EnrichedPrice, 0, len(work))
	for _, symbol := range symbols {
		out = append(out, enrichPartition(dedupeByDate(partitions[symbol]))...)
	}
	return out, nil
}

// dedupeByDate sorts a partition ascending by trade date and collapses
// duplicate dates, keeping the observation that appeared last in the input.
// Overlapping fetches may legitimately produce the same (symbol, date) twice.
func dedupeByDate(partition []PriceObservation) []PriceObservation {
	sort.SliceStable(partition, func(i, j int) bool {
		return partition[i].TradeDate.Before(partition[j].TradeDate)
	})
	deduped := partition[:0]
	for _, r := range partition {
		if n := len(deduped); n > 0 && deduped[n-1].TradeDate.Equal(r.TradeDate) {
			deduped[n-1] = r
			continue
		}
		deduped = append(deduped, r)
	}
	return deduped
}

// enrichPartition computes all indicators for one symbol's ordered history.
func enrichPartition(partition []PriceObservation) []EnrichedPrice {
	closes := make([]float64, len(partition))
	for i, r := range partition {
		closes[i] = r.Close
	}

	return1d := indicators.Return1D(closes)
	sma := indicators.SMA(closes, smaWindow)
	ema := indicators.EMA(closes, emaPeriod)
	rsi := indicators.WilderRSI(closes, rsiPeriod)

	enriched := make([]EnrichedPrice, len(partition))
	for i, r := range partition {
		enriched[i] = EnrichedPrice{
			Symbol:    r.Symbol,
			TradeDate: r.TradeDate,
			Open:      nullFloat(r.Open),
			High:      nullFloat(r.High),
			Low:       nullFloat(r.Low),
			Close:     nullFloat(r.Close),
			AdjClose:  nullFloat(r.AdjClose),
			Volume:    nullVolume(r.Volume),
			Return1D:  nullFloat(return1d[i]),
			SMA20:     nullFloat(sma[i]),
			EMA20:     nullFloat(ema[i]),
			RSI14:     nullFloat(rsi[i]),
			Source:    r.Source,
		}
	}
	return enriched
}

// indicatorFields is the fixed reporting order for null diagnostics.
var indicatorFields = []string{"return_1d", "sma_20", "ema_20", "rsi_14"}

// MissingCounts reports how many rows carry a null for each indicator.
// Warm-up windows make non-zero counts normal; the counts end up in the run
// record's summary message.
func MissingCounts(rows []EnrichedPrice) map[string]int {
	counts := map[string]int{"return_1d": 0, "sma_20": 0, "ema_20": 0, "rsi_14": 0}
	for _, r := range rows {
		if !r.Return1D.Valid {
			counts["return_1d"]++
		}
		if !r.SMA20.Valid {
			counts["sma_20"]++
		}
		if !r.EMA20.Valid {
			counts["ema_20"]++
		}
		if !r.RSI14.Valid {
			counts["rsi_14"]++
		}
	}
	return counts
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
