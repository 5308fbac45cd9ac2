package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketetl/pkg/marketdata"
)

type finishCall struct {
	runID   int64
	status  RunStatus
	message string
}

// fakeStore records every persistence call and fails on demand.
type fakeStore struct {
	startErr      error
	securitiesErr error
	pricesErr     error

	securities [][]string
	prices     [][]EnrichedPrice
	finishes   []finishCall
}

func (f *fakeStore) UpsertSecurities(_ context.Context, symbols []string) (int, error) {
	if f.securitiesErr != nil {
		return 0, f.securitiesErr
	}
	f.securities = append(f.securities, symbols)
	return len(symbols), nil
}

func (f *fakeStore) UpsertPrices(_ context.Context, rows []EnrichedPrice) (int, error) {
	if f.pricesErr != nil {
		return 0, f.pricesErr
	}
	f.prices = append(f.prices, rows)
	return len(rows), nil
}

func (f *fakeStore) StartRun(context.Context) (int64, error) {
	if f.startErr != nil {
		return 0, f.startErr
	}
	return 42, nil
}

func (f *fakeStore) FinishRun(_ context.Context, runID int64, status RunStatus, message string) error {
	f.finishes = append(f.finishes, finishCall{runID: runID, status: status, message: message})
	return nil
}

func newTestPipeline(store *fakeStore, sources ...marketdata.Provider) *Pipeline {
	return NewPipeline(
		NewExtractor(sources, time.Millisecond),
		NewLoader(store),
		store,
	)
}

func TestPipelineRunSuccess(t *testing.T) {
	store := &fakeStore{}
	source := &scriptedSource{name: "yahoo", fetch: func(int, string) ([]marketdata.Bar, error) {
		return barsOf(25), nil
	}}

	p := newTestPipeline(store, source)
	start, end := window()
	require.NoError(t, p.Run(context.Background(), []string{"AAPL"}, start, end))

	require.Equal(t, [][]string{{"AAPL"}}, store.securities)
	require.Len(t, store.prices, 1)
	require.Len(t, store.prices[0], 25)

	require.Len(t, store.finishes, 1, "exactly one terminal transition")
	finish := store.finishes[0]
	require.Equal(t, int64(42), finish.runID)
	require.Equal(t, StatusSuccess, finish.status)
	require.Equal(t,
		"extracted=25 enriched=25 securities_upserts=1 price_upserts=25 nulls[return_1d=1 sma_20=19 ema_20=0 rsi_14=2]",
		finish.message)
}

func TestPipelineRunEmptyExtractionWarns(t *testing.T) {
	store := &fakeStore{}
	source := &scriptedSource{name: "yahoo", fetch: func(int, string) ([]marketdata.Bar, error) {
		return nil, nil
	}}

	p := newTestPipeline(store, source)
	start, end := window()
	require.NoError(t, p.Run(context.Background(), []string{"AAPL", "MSFT"}, start, end))

	require.Empty(t, store.securities, "loader must not run on an empty batch")
	require.Empty(t, store.prices)
	require.Len(t, store.finishes, 1)
	require.Equal(t, StatusWarning, store.finishes[0].status)
	require.Equal(t, "no data extracted for any of 2 symbols", store.finishes[0].message)
}

func TestPipelineRunTransformFailure(t *testing.T) {
	store := &fakeStore{}
	source := &scriptedSource{name: "yahoo", fetch: func(int, string) ([]marketdata.Bar, error) {
		return barsOf(3), nil
	}}

	p := newTestPipeline(store, source)
	start, end := window()
	err := p.Run(context.Background(), []string{"  "}, start, end)

	require.Error(t, err)
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))

	require.Empty(t, store.prices)
	require.Len(t, store.finishes, 1)
	require.Equal(t, StatusError, store.finishes[0].status)
	require.Contains(t, store.finishes[0].message, "transform failed")
}

func TestPipelineRunLoadFailure(t *testing.T) {
	store := &fakeStore{pricesErr: errors.New("connection reset")}
	source := &scriptedSource{name: "yahoo", fetch: func(int, string) ([]marketdata.Bar, error) {
		return barsOf(3), nil
	}}

	p := newTestPipeline(store, source)
	start, end := window()
	err := p.Run(context.Background(), []string{"AAPL"}, start, end)

	require.Error(t, err)
	require.Len(t, store.finishes, 1)
	require.Equal(t, StatusError, store.finishes[0].status)
	require.Contains(t, store.finishes[0].message, "load failed")
}

func TestPipelineRunStartFailure(t *testing.T) {
	store := &fakeStore{startErr: errors.New("db down")}
	source := &scriptedSource{name: "yahoo", fetch: func(int, string) ([]marketdata.Bar, error) {
		t.Fatal("extraction must not run when the run record cannot be opened")
		return nil, nil
	}}

	p := newTestPipeline(store, source)
	start, end := window()
	err := p.Run(context.Background(), []string{"AAPL"}, start, end)

	require.Error(t, err)
	require.Empty(t, store.finishes, "no run record exists to finalize")
}

func TestPipelineRunFinalizesOnPanic(t *testing.T) {
	store := &fakeStore{}
	source := &scriptedSource{name: "yahoo", fetch: func(int, string) ([]marketdata.Bar, error) {
		panic("unexpected provider bug")
	}}

	p := newTestPipeline(store, source)
	start, end := window()
	require.PanicsWithValue(t, "unexpected provider bug", func() {
		_ = p.Run(context.Background(), []string{"AAPL"}, start, end)
	})

	require.Len(t, store.finishes, 1)
	require.Equal(t, StatusError, store.finishes[0].status)
	require.Contains(t, store.finishes[0].message, "panic")
}
