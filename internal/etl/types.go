// Package etl implements the daily price pipeline: extraction with per-symbol
// retry, per-symbol indicator enrichment, idempotent loading, and the run
// audit lifecycle around them.
package etl

import (
	"database/sql"
	"math"
	"time"
)

// PriceObservation is one raw daily OHLCV row as produced by extraction.
// Numeric fields use NaN for values the upstream source did not report;
// rows are not yet guaranteed unique per (symbol, date) across sources.
type PriceObservation struct {
	Symbol    string
	TradeDate time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	AdjClose  float64
	Volume    float64
	Source    string
}

// EnrichedPrice is a PriceObservation after normalization and indicator
// computation. All numeric fields carry explicit nullability: nothing NaN
// crosses this boundary. Per symbol, rows are strictly increasing by
// TradeDate with no duplicates.
type EnrichedPrice struct {
	Symbol    string
	TradeDate time.Time
	Open      sql.NullFloat64
	High      sql.NullFloat64
	Low       sql.NullFloat64
	Close     sql.NullFloat64
	AdjClose  sql.NullFloat64
	Volume    sql.NullInt64
	Return1D  sql.NullFloat64
	SMA20     sql.NullFloat64
	EMA20     sql.NullFloat64
	RSI14     sql.NullFloat64
	Source    string
}

// nullFloat is the single missing-value normalization applied to every
// numeric field on its way out of the transformer.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullVolume(v float64) sql.NullInt64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}
