package etl

import (
	"context"
	"fmt"
	"sort"
)

// LoadResult reports how many rows each load step wrote.
type LoadResult struct {
	SecurityUpserts int
	PriceUpserts    int
}

// Loader persists enriched rows: first the security stubs that anchor the
// price rows' foreign keys, then the prices themselves. Both steps are bulk
// upserts; any storage failure aborts the call and is fatal to the run.
type Loader struct {
	store Store
}

// NewLoader builds a loader over the given store.
func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// LoadPrices upserts rows into persistent storage. Empty input short-circuits
// without touching the store. Re-loading an overlapping batch converges to
// the same final state: prices are keyed by (symbol, trade_date) and fully
// overwritten on conflict, never duplicated.
func (l *Loader) LoadPrices(ctx context.Context, rows []EnrichedPrice) (LoadResult, error) {
	if len(rows) == 0 {
		return LoadResult{}, nil
	}

	symbols := distinctSymbols(rows)
	securities, err := l.store.UpsertSecurities(ctx, symbols)
	if err != nil {
		return LoadResult{}, fmt.Errorf("load: upsert securities: %w", err)
	}

	prices, err := l.store.UpsertPrices(ctx, rows)
	if err != nil {
		return LoadResult{}, fmt.Errorf("load: upsert prices: %w", err)
	}

	return LoadResult{SecurityUpserts: securities, PriceUpserts: prices}, nil
}

func distinctSymbols(rows []EnrichedPrice) []string {
	seen := make(map[string]struct{}, len(rows))
	var symbols []string
	for _, r := range rows {
		if _, ok := seen[r.Symbol]; ok {
			continue
		}
		seen[r.Symbol] = struct{}{}
		symbols = append(symbols, r.Symbol)
	}
	sort.Strings(symbols)
	return symbols
}
