//go:build integration
// +build integration

package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"marketetl/internal/etl"
	"marketetl/internal/store"
)

// Run with:
//
//	MARKETETL_TEST_DSN=postgres://... go test -tags integration ./internal/store/...
//
// The schema from etc/schema.sql must already be applied.
func newIntegrationStore(t *testing.T) (*store.Postgres, sqlx.SqlConn) {
	t.Helper()
	dsn := os.Getenv("MARKETETL_TEST_DSN")
	if dsn == "" {
		t.Skip("MARKETETL_TEST_DSN not set")
	}
	conn := sqlx.NewSqlConn("pgx", dsn)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var one int
	require.NoError(t, conn.QueryRowCtx(ctx, &one, "SELECT 1"), "postgres connectivity check failed")

	return store.NewPostgres(conn), conn
}

func testSymbol(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("ITEST%d", time.Now().UnixNano()%1_000_000_000)
}

func enrichedRow(symbol string, date time.Time, close float64) etl.EnrichedPrice {
	return etl.EnrichedPrice{
		Symbol:    symbol,
		TradeDate: date,
		Open:      sql.NullFloat64{Float64: close - 1, Valid: true},
		High:      sql.NullFloat64{Float64: close + 1, Valid: true},
		Low:       sql.NullFloat64{Float64: close - 2, Valid: true},
		Close:     sql.NullFloat64{Float64: close, Valid: true},
		AdjClose:  sql.NullFloat64{Float64: close, Valid: true},
		Volume:    sql.NullInt64{Int64: 1000, Valid: true},
		Source:    "yahoo",
	}
}

func cleanupSymbol(t *testing.T, conn sqlx.SqlConn, symbol string) {
	t.Helper()
	ctx := context.Background()
	_, _ = conn.ExecCtx(ctx, "DELETE FROM prices_daily WHERE symbol = $1", symbol)
	_, _ = conn.ExecCtx(ctx, "DELETE FROM securities WHERE symbol = $1", symbol)
}

func TestUpsertPricesIsIdempotent(t *testing.T) {
	st, conn := newIntegrationStore(t)
	ctx := context.Background()
	symbol := testSymbol(t)
	t.Cleanup(func() { cleanupSymbol(t, conn, symbol) })

	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	rows := []etl.EnrichedPrice{
		enrichedRow(symbol, base, 191),
		enrichedRow(symbol, base.AddDate(0, 0, 1), 192),
		enrichedRow(symbol, base.AddDate(0, 0, 2), 193),
	}

	_, err := st.UpsertSecurities(ctx, []string{symbol})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		n, err := st.UpsertPrices(ctx, rows)
		require.NoError(t, err)
		require.Equal(t, 3, n)
	}

	var count int
	require.NoError(t, conn.QueryRowCtx(ctx, &count,
		"SELECT COUNT(*) FROM prices_daily WHERE symbol = $1", symbol))
	require.Equal(t, 3, count, "replaying the batch must not duplicate rows")
}

func TestUpsertPricesOverwritesOnConflict(t *testing.T) {
	st, conn := newIntegrationStore(t)
	ctx := context.Background()
	symbol := testSymbol(t)
	t.Cleanup(func() { cleanupSymbol(t, conn, symbol) })

	date := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	_, err := st.UpsertSecurities(ctx, []string{symbol})
	require.NoError(t, err)

	_, err = st.UpsertPrices(ctx, []etl.EnrichedPrice{enrichedRow(symbol, date, 191)})
	require.NoError(t, err)

	corrected := enrichedRow(symbol, date, 196)
	corrected.Source = "stooq"
	_, err = st.UpsertPrices(ctx, []etl.EnrichedPrice{corrected})
	require.NoError(t, err)

	var close float64
	var source string
	require.NoError(t, conn.QueryRowCtx(ctx, &close,
		"SELECT close FROM prices_daily WHERE symbol = $1 AND trade_date = $2", symbol, date))
	require.NoError(t, conn.QueryRowCtx(ctx, &source,
		"SELECT source FROM prices_daily WHERE symbol = $1 AND trade_date = $2", symbol, date))
	require.InDelta(t, 196, close, 1e-9)
	require.Equal(t, "stooq", source)
}

func TestUpsertSecuritiesPreservesExistingFields(t *testing.T) {
	st, conn := newIntegrationStore(t)
	ctx := context.Background()
	symbol := testSymbol(t)
	t.Cleanup(func() { cleanupSymbol(t, conn, symbol) })

	_, err := conn.ExecCtx(ctx,
		"INSERT INTO securities (symbol, name) VALUES ($1, $2)", symbol, "Integration Test Corp")
	require.NoError(t, err)

	_, err = st.UpsertSecurities(ctx, []string{symbol})
	require.NoError(t, err)

	var name string
	require.NoError(t, conn.QueryRowCtx(ctx, &name,
		"SELECT name FROM securities WHERE symbol = $1", symbol))
	require.Equal(t, "Integration Test Corp", name, "stub upsert must not blank enriched fields")
}

func TestRunLifecycle(t *testing.T) {
	st, conn := newIntegrationStore(t)
	ctx := context.Background()

	runID, err := st.StartRun(ctx)
	require.NoError(t, err)
	require.Positive(t, runID)
	t.Cleanup(func() {
		_, _ = conn.ExecCtx(ctx, "DELETE FROM pipeline_runs WHERE run_id = $1", runID)
	})

	var status string
	require.NoError(t, conn.QueryRowCtx(ctx, &status,
		"SELECT status FROM pipeline_runs WHERE run_id = $1", runID))
	require.Equal(t, "running", status)

	require.NoError(t, st.FinishRun(ctx, runID, etl.StatusSuccess, "extracted=3 enriched=3"))

	err = st.FinishRun(ctx, runID, etl.StatusError, "late failure")
	require.Error(t, err, "a finished run can never be re-finalized")

	var finished sql.NullTime
	require.NoError(t, conn.QueryRowCtx(ctx, &finished,
		"SELECT run_finished FROM pipeline_runs WHERE run_id = $1", runID))
	require.True(t, finished.Valid)

	require.NoError(t, conn.QueryRowCtx(ctx, &status,
		"SELECT status FROM pipeline_runs WHERE run_id = $1", runID))
	require.Equal(t, "success", status, "the first terminal transition wins")
}
