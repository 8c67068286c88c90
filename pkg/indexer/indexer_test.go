package indexer_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/indexer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesDataset(id string) *dataset.Dataset {
	return dataset.New(id, []dataset.Row{
		{"region": "East", "amount": 100, "status": "paid"},
		{"region": "west", "amount": "250.5", "status": "paid"},
		{"region": "east", "amount": 50, "status": ""},
		{"region": nil, "amount": 10, "status": "refunded"},
		{"region": "north", "amount": "", "status": "paid"},
	}, []string{"region", "amount", "status"})
}

func TestIndexer_Build(t *testing.T) {
	t.Parallel()

	ds := salesDataset("sales")
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	idx, err := indexer.Build(t.Context(), ds, now)
	require.NoError(t, err)

	require.Equal(t, "sales", idx.DatasetID)
	require.Equal(t, 5, idx.RowCount)
	require.Equal(t, now, idx.CreatedAt)

	region := idx.Columns["region"]
	require.NotNil(t, region)
	require.False(t, region.Numeric)
	require.Equal(t, []any{"East", "west", "east", "north"}, region.Values)
	require.Equal(t, 1, region.Count("East"))
	require.Equal(t, 1, region.NullCount)
	require.Equal(t, []any{"East", "east", "north", "west"}, region.Sorted)

	amount := idx.Columns["amount"]
	require.True(t, amount.Numeric)
	require.Equal(t, []any{10, 50, 100, "250.5"}, amount.Sorted)

	sum, ok := idx.Aggregate("amount", "sum")
	require.True(t, ok)
	assert.Equal(t, 410.5, sum)
	avg, _ := idx.Aggregate("amount", "avg")
	assert.InDelta(t, 102.625, avg, 1e-9)
	lo, _ := idx.Aggregate("amount", "min")
	assert.Equal(t, 10.0, lo)
	hi, _ := idx.Aggregate("amount", "max")
	assert.Equal(t, 250.5, hi)
	n, _ := idx.Aggregate("amount", "count")
	assert.Equal(t, 4.0, n)

	_, ok = idx.Aggregate("region", "sum")
	require.False(t, ok)
}

func TestIndexer_Build_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := indexer.Build(ctx, salesDataset("x"), time.Now())
	require.ErrorIs(t, err, context.Canceled)
}

func TestIndexer_FastFilter_MatchesScan(t *testing.T) {
	t.Parallel()

	ds := salesDataset("sales")
	idx, err := indexer.Build(t.Context(), ds, time.Now())
	require.NoError(t, err)

	ops := []dataset.Operator{
		dataset.OpEq, dataset.OpNe, dataset.OpGt, dataset.OpLt,
		dataset.OpGe, dataset.OpLe, dataset.OpLike, dataset.OpNotLike,
	}
	values := []any{"east", "EAST", "paid", 50, "100", 250.5, nil, "", "zzz"}
	for _, col := range ds.Columns {
		for _, op := range ops {
			for _, v := range values {
				t.Run(fmt.Sprintf("%s %s %v", col, op, v), func(t *testing.T) {
					var want []dataset.Row
					for _, row := range ds.Rows {
						if op.Apply(row[col], v) {
							want = append(want, row)
						}
					}
					got := idx.FastFilter(ds.Rows, col, op, v)
					require.Len(t, got, len(want))
					for i := range want {
						require.Equal(t, want[i], got[i])
					}
				})
			}
		}
	}
}

func TestIndexer_FastFilter_SubsetFallsBackToScan(t *testing.T) {
	t.Parallel()

	ds := salesDataset("sales")
	idx, err := indexer.Build(t.Context(), ds, time.Now())
	require.NoError(t, err)

	subset := ds.Rows[2:]
	got := idx.FastFilter(subset, "region", dataset.OpEq, "east")
	require.Len(t, got, 1)
	require.Equal(t, 50, got[0]["amount"])
}

func TestIndexer_GetOrBuild(t *testing.T) {
	t.Parallel()

	t.Run("caches until ttl elapses", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		ix, err := indexer.New(indexer.Config{Logger: logger, Clock: clock, TTL: time.Hour})
		require.NoError(t, err)

		ds := salesDataset("sales")
		first, err := ix.GetOrBuild(t.Context(), ds)
		require.NoError(t, err)

		clock.Advance(59 * time.Minute)
		second, err := ix.GetOrBuild(t.Context(), ds)
		require.NoError(t, err)
		require.Same(t, first, second)

		clock.Advance(2 * time.Minute)
		_, ok := ix.Get("sales")
		require.False(t, ok)
		third, err := ix.GetOrBuild(t.Context(), ds)
		require.NoError(t, err)
		require.NotSame(t, first, third)
		require.Equal(t, clock.Now(), third.CreatedAt)
	})

	t.Run("rebuilds when row count changes", func(t *testing.T) {
		t.Parallel()

		ix, err := indexer.New(indexer.Config{Logger: logger, Clock: clockwork.NewFakeClock()})
		require.NoError(t, err)

		ds := salesDataset("sales")
		first, err := ix.GetOrBuild(t.Context(), ds)
		require.NoError(t, err)

		grown := dataset.New("sales", append(append([]dataset.Row{}, ds.Rows...), dataset.Row{"amount": 1}), ds.Columns)
		second, err := ix.GetOrBuild(t.Context(), grown)
		require.NoError(t, err)
		require.NotSame(t, first, second)
		require.Equal(t, 6, second.RowCount)
	})

	t.Run("invalidate", func(t *testing.T) {
		t.Parallel()

		store := indexer.NewTTLStore(time.Hour)
		ix, err := indexer.New(indexer.Config{Logger: logger, Store: store, Clock: clockwork.NewFakeClock()})
		require.NoError(t, err)

		_, err = ix.GetOrBuild(t.Context(), salesDataset("a"))
		require.NoError(t, err)
		_, err = ix.GetOrBuild(t.Context(), salesDataset("b"))
		require.NoError(t, err)
		require.Equal(t, 2, store.Len())

		ix.Invalidate("a")
		_, ok := ix.Get("a")
		require.False(t, ok)
		_, ok = ix.Get("b")
		require.True(t, ok)

		ix.InvalidateAll()
		require.Equal(t, 0, store.Len())
	})

	t.Run("concurrent callers", func(t *testing.T) {
		t.Parallel()

		ix, err := indexer.New(indexer.Config{Logger: logger})
		require.NoError(t, err)

		var rows []dataset.Row
		for i := 0; i < 5000; i++ {
			rows = append(rows, dataset.Row{"k": i % 7, "v": i})
		}
		ds := dataset.New("big", rows, nil)

		var wg sync.WaitGroup
		results := make([]*indexer.DatasetIndex, 8)
		errs := make([]error, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = ix.GetOrBuild(t.Context(), ds)
			}(i)
		}
		wg.Wait()
		for i := range results {
			require.NoError(t, errs[i])
			require.Equal(t, 5000, results[i].RowCount)
			require.Equal(t, 7, len(results[i].Columns["k"].Values))
		}
	})

	t.Run("cancelled caller does not cancel the shared build", func(t *testing.T) {
		t.Parallel()

		ix, err := indexer.New(indexer.Config{Logger: logger})
		require.NoError(t, err)
		ds := salesDataset("shared")

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, _ = ix.GetOrBuild(ctx, ds)

		require.Eventually(t, func() bool {
			_, ok := ix.Get("shared")
			return ok
		}, 5*time.Second, 10*time.Millisecond)

		idx, err := ix.GetOrBuild(t.Context(), ds)
		require.NoError(t, err)
		require.Equal(t, 5, idx.RowCount)
	})

	t.Run("requires logger", func(t *testing.T) {
		t.Parallel()

		_, err := indexer.New(indexer.Config{})
		require.Error(t, err)
	})
}
