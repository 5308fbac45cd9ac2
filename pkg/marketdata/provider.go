// Package marketdata defines the upstream daily price sources the extraction
// stage pulls from, plus the yaml-driven registry used to build them.
package marketdata

import (
	"context"
	"time"
)

// Bar is one daily OHLCV observation as reported by a venue. Price and volume
// fields use NaN when the venue reports no value for that day.
type Bar struct {
	Date     time.Time // trading day, time-of-day is venue noise
	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   float64
}

// Provider is a single extraction strategy for daily price history.
// Implementations return bars ordered oldest to newest and an empty slice,
// not an error, when the venue simply has no data for the range.
type Provider interface {
	// Name identifies the provider; it is recorded as row provenance.
	Name() string
	// DailyHistory fetches daily bars for symbol over [start, end].
	DailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}
