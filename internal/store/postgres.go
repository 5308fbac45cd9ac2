// Package store implements the Postgres persistence layer behind the
// pipeline: security stubs, daily price upserts, and the run audit table.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "marketetl/internal/cache"
	"marketetl/internal/etl"
)

// priceChunkSize keeps multi-row VALUES statements comfortably under the
// Postgres parameter limit (13 columns per row).
const priceChunkSize = 400

var _ etl.Store = (*Postgres)(nil)

// Postgres implements etl.Store on a go-zero SqlConn. When a Redis client is
// attached, the newest close per symbol is mirrored into the cache after each
// successful price load; cache failures are logged and never fail the load.
type Postgres struct {
	conn     sqlx.SqlConn
	cache    *redis.Redis
	cacheTTL time.Duration
}

// Option customises the store.
type Option func(*Postgres)

// WithLatestPriceCache attaches the Redis mirror for latest closes.
func WithLatestPriceCache(cache *redis.Redis, ttl time.Duration) Option {
	return func(p *Postgres) {
		if cache != nil && ttl > 0 {
			p.cache = cache
			p.cacheTTL = ttl
		}
	}
}

// NewPostgres builds a store over an open connection.
func NewPostgres(conn sqlx.SqlConn, opts ...Option) *Postgres {
	p := &Postgres{conn: conn}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// UpsertSecurities inserts a stub row per symbol. Already-known symbols are
// left completely untouched so previously enriched descriptive fields are
// never overwritten with nulls.
func (p *Postgres) UpsertSecurities(ctx context.Context, symbols []string) (int, error) {
	if len(symbols) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(symbols))
	args := make([]any, len(symbols))
	for i, symbol := range symbols {
		placeholders[i] = fmt.Sprintf("($%d)", i+1)
		args[i] = symbol
	}
	stmt := fmt.Sprintf(`
INSERT INTO securities (symbol)
VALUES %s
ON CONFLICT (symbol) DO NOTHING;`, strings.Join(placeholders, ", "))

	if _, err := p.conn.ExecCtx(ctx, stmt, args...); err != nil {
		return 0, fmt.Errorf("upsert securities: %w", err)
	}
	return len(symbols), nil
}

// UpsertPrices bulk-upserts enriched rows keyed by (symbol, trade_date). On
// conflict every value column is overwritten and loaded_at refreshed, so
// replaying an overlapping range converges instead of duplicating. All chunks
// run inside one transaction: a storage failure leaves no partial batch
// behind.
func (p *Postgres) UpsertPrices(ctx context.Context, rows []etl.EnrichedPrice) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	err := p.conn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for start := 0; start < len(rows); start += priceChunkSize {
			end := start + priceChunkSize
			if end > len(rows) {
				end = len(rows)
			}
			if err := upsertPriceChunk(ctx, session, rows[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert prices: %w", err)
	}

	p.mirrorLatestCloses(ctx, rows)
	return len(rows), nil
}

func upsertPriceChunk(ctx context.Context, session sqlx.Session, rows []etl.EnrichedPrice) error {
	const columns = 13
	placeholders := make([]string, len(rows))
	args := make([]any, 0, len(rows)*columns)
	for i, r := range rows {
		base := i * columns
		marks := make([]string, columns)
		for j := range marks {
			marks[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders[i] = "(" + strings.Join(marks, ", ") + ")"
		args = append(args,
			r.Symbol, r.TradeDate,
			r.Open, r.High, r.Low, r.Close, r.AdjClose, r.Volume,
			r.Return1D, r.SMA20, r.EMA20, r.RSI14,
			r.Source,
		)
	}

	stmt := fmt.Sprintf(`
INSERT INTO prices_daily (
    symbol, trade_date, open, high, low, close, adj_close, volume,
    return_1d, sma_20, ema_20, rsi_14, source
)
VALUES %s
ON CONFLICT (symbol, trade_date) DO UPDATE SET
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    adj_close = EXCLUDED.adj_close,
    volume = EXCLUDED.volume,
    return_1d = EXCLUDED.return_1d,
    sma_20 = EXCLUDED.sma_20,
    ema_20 = EXCLUDED.ema_20,
    rsi_14 = EXCLUDED.rsi_14,
    source = EXCLUDED.source,
    loaded_at = NOW();`, strings.Join(placeholders, ", "))

	_, err := session.ExecCtx(ctx, stmt, args...)
	return err
}

// StartRun opens a run record and returns its generated id.
func (p *Postgres) StartRun(ctx context.Context) (int64, error) {
	var runID int64
	err := p.conn.QueryRowCtx(ctx, &runID,
		`INSERT INTO pipeline_runs (status, run_started) VALUES ($1, NOW()) RETURNING run_id;`,
		string(etl.StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return runID, nil
}

// FinishRun performs the single terminal transition for a run. Finalizing a
// run that is not in the running state is an error: a finished run can never
// be reopened or re-finalized.
func (p *Postgres) FinishRun(ctx context.Context, runID int64, status etl.RunStatus, message string) error {
	result, err := p.conn.ExecCtx(ctx,
		`UPDATE pipeline_runs
SET status = $2, message = $3, run_finished = NOW()
WHERE run_id = $1 AND status = $4;`,
		runID, string(status), nullString(message), string(etl.StatusRunning))
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %d: rows affected: %w", runID, err)
	}
	if affected == 0 {
		return fmt.Errorf("finish run %d: run is not in the running state", runID)
	}
	return nil
}

// mirrorLatestCloses pushes the newest close per symbol into Redis.
func (p *Postgres) mirrorLatestCloses(ctx context.Context, rows []etl.EnrichedPrice) {
	if p.cache == nil {
		return
	}
	latest := make(map[string]etl.EnrichedPrice, 8)
	for _, r := range rows {
		if !r.Close.Valid {
			continue
		}
		if prev, ok := latest[r.Symbol]; !ok || r.TradeDate.After(prev.TradeDate) {
			latest[r.Symbol] = r
		}
	}
	seconds := int(p.cacheTTL / time.Second)
	for symbol, r := range latest {
		payload, err := json.Marshal(map[string]any{
			"close":      r.Close.Float64,
			"trade_date": r.TradeDate.Format("2006-01-02"),
		})
		if err != nil {
			continue
		}
		key := cachekeys.PriceLatestKey(symbol)
		if err := p.cache.SetexCtx(ctx, key, string(payload), seconds); err != nil {
			logx.WithContext(ctx).Errorf("store: cache latest close key=%s err=%v", key, err)
		}
	}
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
