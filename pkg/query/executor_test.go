package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/indexer"
	"github.com/malbeclabs/nlquery/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesDataset() *dataset.Dataset {
	return dataset.New("sales", []dataset.Row{
		{"region": "east", "sales": 10},
		{"region": "east", "sales": 20},
		{"region": "west", "sales": 5},
	}, nil)
}

func ordersDataset() *dataset.Dataset {
	return dataset.New("orders", []dataset.Row{
		{"id": 1, "customer": "ann", "amount": 120.5, "status": "paid", "city": "Austin"},
		{"id": 2, "customer": "bob", "amount": "80", "status": "paid", "city": nil},
		{"id": 3, "customer": "cy", "amount": nil, "status": "refunded", "city": "Boston"},
		{"id": 4, "customer": "ann", "amount": 40, "status": "Paid", "city": ""},
		{"id": 5, "customer": "dee", "amount": "n/a", "status": "pending", "city": "austin"},
		{"id": 6, "customer": "bob", "amount": 200, "status": "paid", "city": "Chicago"},
	}, []string{"id", "customer", "amount", "status", "city"})
}

func run(t *testing.T, ds *dataset.Dataset, text string) *query.Result {
	t.Helper()
	res, err := query.Run(t.Context(), text, ds, query.Options{})
	require.NoError(t, err, text)
	return res
}

func TestQuery_Execute_GroupedSales(t *testing.T) {
	t.Parallel()

	t.Run("total sales by region", func(t *testing.T) {
		t.Parallel()

		res := run(t, salesDataset(), "SELECT region, SUM(sales) AS total_sales FROM data GROUP BY region")
		require.Equal(t, []string{"region", "total_sales"}, res.Columns)
		require.Equal(t, []dataset.Row{
			{"region": "east", "total_sales": 30.0},
			{"region": "west", "total_sales": 5.0},
		}, res.Rows)
	})

	t.Run("top region by sales", func(t *testing.T) {
		t.Parallel()

		res := run(t, salesDataset(), "SELECT region, SUM(sales) AS total_sales FROM data GROUP BY region ORDER BY total_sales DESC LIMIT 1")
		require.Equal(t, []dataset.Row{{"region": "east", "total_sales": 30.0}}, res.Rows)
		require.True(t, res.Truncated)
		require.Equal(t, 2, res.RowCountBeforeLimit)
	})
}

func TestQuery_Execute_Filters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		ids  []any
	}{
		{"equality folds case", "SELECT id FROM t WHERE status = 'PAID'", []any{1, 2, 4, 6}},
		{"numeric string equality", "SELECT id FROM t WHERE amount = 80", []any{2}},
		{"numeric comparison skips non-numeric", "SELECT id FROM t WHERE amount > 50", []any{1, 2, 6}},
		{"not equal skips nulls", "SELECT id FROM t WHERE city != 'austin'", []any{3, 6}},
		{"like", "SELECT id FROM t WHERE city LIKE 'AUS'", []any{1, 5}},
		{"not like", "SELECT id FROM t WHERE customer NOT LIKE 'b%'", []any{1, 3, 4, 5}},
		{"is null covers blank", "SELECT id FROM t WHERE city IS NULL", []any{2, 4}},
		{"is not null", "SELECT id FROM t WHERE amount IS NOT NULL", []any{1, 2, 4, 5, 6}},
		{"boolean composition", "SELECT id FROM t WHERE (status = 'paid' AND amount >= 100) OR customer = 'cy'", []any{1, 3, 6}},
		{"not", "SELECT id FROM t WHERE NOT status = 'paid'", []any{3, 5}},
		{"not equality leaves null cells out", "SELECT id FROM t WHERE NOT city = 'austin'", []any{3, 6}},
		{"not ordering leaves null and non-numeric out", "SELECT id FROM t WHERE NOT amount > 50", []any{4}},
		{"not over or stays unknown for nulls", "SELECT id FROM t WHERE NOT (city = 'boston' OR amount > 100)", []any{5}},
		{"or with unknown side keeps true rows", "SELECT id FROM t WHERE amount > 100 OR city = 'boston'", []any{1, 3, 6}},
		{"column names ignore case", "SELECT ID FROM t WHERE Customer = 'dee'", []any{5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := run(t, ordersDataset(), tt.text)
			var ids []any
			for _, row := range res.Rows {
				ids = append(ids, row["id"])
			}
			require.Equal(t, tt.ids, ids)
		})
	}
}

func TestQuery_Execute_Aggregates(t *testing.T) {
	t.Parallel()

	t.Run("sum equals arithmetic sum of numeric values", func(t *testing.T) {
		t.Parallel()

		ds := ordersDataset()
		var want float64
		for _, row := range ds.Rows {
			if f, ok := dataset.ToFloat(row["amount"]); ok {
				want += f
			}
		}
		for _, text := range []string{
			"SELECT SUM(amount) FROM t",
			"select sum(AMOUNT) as s from whatever",
			"SELECT SUM(amount) FROM t WHERE id > 0",
		} {
			res := run(t, ds, text)
			v, ok := res.Scalar()
			require.True(t, ok)
			require.Equal(t, want, v, text)
		}
	})

	t.Run("functions and default names", func(t *testing.T) {
		t.Parallel()

		res := run(t, ordersDataset(), "SELECT COUNT(*), COUNT(amount), COUNT(DISTINCT customer), AVG(amount), MIN(amount), MAX(amount) FROM t")
		require.Equal(t, []string{"count", "count_amount", "count_distinct_customer", "avg_amount", "min_amount", "max_amount"}, res.Columns)
		row := res.Rows[0]
		assert.Equal(t, 6, row["count"])
		assert.Equal(t, 5, row["count_amount"])
		assert.Equal(t, 4, row["count_distinct_customer"])
		assert.InDelta(t, 110.125, row["avg_amount"], 1e-9)
		assert.Equal(t, 40.0, row["min_amount"])
		assert.Equal(t, 200.0, row["max_amount"])
	})

	t.Run("no numeric values", func(t *testing.T) {
		t.Parallel()

		res := run(t, ordersDataset(), "SELECT SUM(amount), AVG(amount), MIN(customer), MAX(customer) FROM t WHERE id = 3")
		row := res.Rows[0]
		assert.Equal(t, 0.0, row["sum_amount"])
		assert.Nil(t, row["avg_amount"])
		assert.Equal(t, "cy", row["min_customer"])
		assert.Equal(t, "cy", row["max_customer"])

		res = run(t, ordersDataset(), "SELECT AVG(city) FROM t")
		assert.Nil(t, res.Rows[0]["avg_city"])
	})

	t.Run("group by nulls share one bucket", func(t *testing.T) {
		t.Parallel()

		res := run(t, ordersDataset(), "SELECT city, COUNT(*) AS n FROM t GROUP BY city")
		require.Equal(t, []dataset.Row{
			{"city": "Austin", "n": 1},
			{"city": nil, "n": 2},
			{"city": "Boston", "n": 1},
			{"city": "austin", "n": 1},
			{"city": "Chicago", "n": 1},
		}, res.Rows)
	})

	t.Run("one row per distinct group value", func(t *testing.T) {
		t.Parallel()

		res := run(t, ordersDataset(), "SELECT customer, SUM(amount) FROM t WHERE amount IS NOT NULL GROUP BY customer")
		seen := map[any]bool{}
		for _, row := range res.Rows {
			require.False(t, seen[row["customer"]])
			seen[row["customer"]] = true
		}
		require.Len(t, res.Rows, 3)
	})

	t.Run("bare column takes first value of group", func(t *testing.T) {
		t.Parallel()

		res := run(t, ordersDataset(), "SELECT customer, id, SUM(amount) AS total FROM t GROUP BY customer ORDER BY total DESC")
		require.Equal(t, dataset.Row{"customer": "bob", "id": 2, "total": 280.0}, res.Rows[0])
	})

	t.Run("order by aggregate call and group column", func(t *testing.T) {
		t.Parallel()

		res := run(t, ordersDataset(), "SELECT COUNT(*) FROM t GROUP BY customer ORDER BY COUNT(*) DESC, customer DESC")
		require.Equal(t, []any{2, 2, 1, 1}, []any{res.Rows[0]["count"], res.Rows[1]["count"], res.Rows[2]["count"], res.Rows[3]["count"]})
	})
}

func TestQuery_Execute_OrderAndLimit(t *testing.T) {
	t.Parallel()

	t.Run("nulls last in both directions", func(t *testing.T) {
		t.Parallel()

		ds := ordersDataset()
		asc := run(t, ds, "SELECT id, amount FROM t ORDER BY amount")
		desc := run(t, ds, "SELECT id, amount FROM t ORDER BY amount DESC")
		ids := func(r *query.Result) []any {
			var out []any
			for _, row := range r.Rows {
				out = append(out, row["id"])
			}
			return out
		}
		require.Equal(t, []any{4, 2, 1, 6, 5, 3}, ids(asc))
		require.Equal(t, []any{5, 6, 1, 2, 4, 3}, ids(desc))
	})

	t.Run("order by unselected column and alias", func(t *testing.T) {
		t.Parallel()

		res := run(t, ordersDataset(), "SELECT customer AS who FROM t ORDER BY id DESC LIMIT 2")
		require.Equal(t, []dataset.Row{{"who": "bob"}, {"who": "dee"}}, res.Rows)

		res = run(t, ordersDataset(), "SELECT customer AS who FROM t ORDER BY who, id DESC")
		require.Equal(t, "ann", res.Rows[0]["who"])
	})

	t.Run("multi-key stable", func(t *testing.T) {
		t.Parallel()

		res := run(t, ordersDataset(), "SELECT id FROM t ORDER BY customer, status")
		var got []any
		for _, row := range res.Rows {
			got = append(got, row["id"])
		}
		require.Equal(t, []any{4, 1, 2, 6, 3, 5}, got)
	})

	t.Run("limit returns min(k, n)", func(t *testing.T) {
		t.Parallel()

		ds := ordersDataset()
		for k := 0; k <= 8; k++ {
			res, err := query.Execute(t.Context(), &query.Query{
				Select:  []query.SelectItem{{Column: "id"}},
				From:    "t",
				OrderBy: []query.OrderItem{{Column: "id", Desc: true}},
				Limit:   &k,
			}, ds, query.Options{})
			require.NoError(t, err)
			require.Len(t, res.Rows, min(k, 6))
			require.Equal(t, k < 6, res.Truncated)
			require.Equal(t, 6, res.RowCountBeforeLimit)
			if k > 0 {
				require.Equal(t, 6, res.Rows[0]["id"])
			}
		}
	})

	t.Run("does not reorder the dataset", func(t *testing.T) {
		t.Parallel()

		ds := ordersDataset()
		run(t, ds, "SELECT id FROM t ORDER BY id DESC")
		require.Equal(t, 1, ds.Rows[0]["id"])
	})
}

func TestQuery_Execute_Empty(t *testing.T) {
	t.Parallel()

	t.Run("empty dataset", func(t *testing.T) {
		t.Parallel()

		ds := dataset.New("empty", nil, []string{"x"})
		for _, text := range []string{"SELECT x FROM t", "SELECT SUM(x) FROM t", "SELECT x, COUNT(*) FROM t GROUP BY x"} {
			res := run(t, ds, text)
			require.True(t, res.Empty(), text)
			require.NotNil(t, res.Rows)
		}
	})

	t.Run("filter matches nothing", func(t *testing.T) {
		t.Parallel()

		res := run(t, ordersDataset(), "SELECT COUNT(*) FROM t WHERE status = 'lost'")
		require.True(t, res.Empty())
		require.Equal(t, []string{"count"}, res.Columns)
	})
}

func TestQuery_Execute_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown column lists available columns", func(t *testing.T) {
		t.Parallel()

		for _, text := range []string{
			"SELECT revenue FROM t",
			"SELECT id FROM t WHERE revenue > 1",
			"SELECT id FROM t GROUP BY revenue",
			"SELECT id FROM t ORDER BY revenue",
			"SELECT SUM(revenue) FROM t",
		} {
			_, err := query.Run(t.Context(), text, ordersDataset(), query.Options{})
			var colErr *query.UnknownColumnError
			require.True(t, errors.As(err, &colErr), "%q: %v", text, err)
			require.Equal(t, "revenue", colErr.Column)
			require.Equal(t, []string{"id", "customer", "amount", "status", "city"}, colErr.Available)
		}
	})

	t.Run("order by in aggregate query must be an output", func(t *testing.T) {
		t.Parallel()

		_, err := query.Run(t.Context(), "SELECT SUM(amount) FROM t GROUP BY customer ORDER BY status", ordersDataset(), query.Options{})
		var syntaxErr *query.SyntaxError
		require.ErrorAs(t, err, &syntaxErr)

		_, err = query.Run(t.Context(), "SELECT id FROM t ORDER BY SUM(amount)", ordersDataset(), query.Options{})
		require.ErrorAs(t, err, &syntaxErr)
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := query.Run(ctx, "SELECT id FROM t WHERE id > 1", ordersDataset(), query.Options{})
		var execErr *query.ExecutionError
		require.ErrorAs(t, err, &execErr)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unexpected predicate is recovered", func(t *testing.T) {
		t.Parallel()

		_, err := query.Execute(t.Context(), &query.Query{
			Select: []query.SelectItem{{Column: "id"}},
			From:   "t",
			Where:  &query.Not{Expr: nil},
		}, ordersDataset(), query.Options{})
		require.Error(t, err)
	})
}

func TestQuery_Execute_WithIndex(t *testing.T) {
	t.Parallel()

	ds := ordersDataset()
	idx, err := indexer.Build(t.Context(), ds, time.Now())
	require.NoError(t, err)

	for _, text := range []string{
		"SELECT id FROM t WHERE status = 'paid'",
		"SELECT id FROM t WHERE amount = 80",
		"SELECT id FROM t WHERE city = 'nowhere'",
		"SELECT SUM(id), AVG(id), MIN(id), MAX(id), COUNT(*), COUNT(city) FROM t",
		"SELECT SUM(amount), COUNT(amount) FROM t",
		"SELECT customer, COUNT(*) FROM t WHERE status = 'paid' GROUP BY customer",
	} {
		plain, err := query.Run(t.Context(), text, ds, query.Options{})
		require.NoError(t, err)
		indexed, err := query.Run(t.Context(), text, ds, query.Options{Index: idx})
		require.NoError(t, err)
		require.Equal(t, plain.Rows, indexed.Rows, text)
		require.Equal(t, plain.Columns, indexed.Columns, text)
	}

	res, err := query.Run(t.Context(), "SELECT SUM(id) FROM t", ds, query.Options{Index: idx})
	require.NoError(t, err)
	require.True(t, res.UsedIndex)

	other := dataset.New("other", ds.Rows[:2], ds.Columns)
	res, err = query.Run(t.Context(), "SELECT id FROM t WHERE status = 'paid'", other, query.Options{Index: idx})
	require.NoError(t, err)
	require.False(t, res.UsedIndex)
	require.Len(t, res.Rows, 2)
}

func TestQuery_Execute_Idempotent(t *testing.T) {
	t.Parallel()

	ds := ordersDataset()
	text := "SELECT customer, SUM(amount) AS total FROM t GROUP BY customer ORDER BY total DESC"
	first := run(t, ds, text)
	second := run(t, ds, text)
	require.Equal(t, first, second)
	require.Equal(t, [][]any{{"bob", 280.0}, {"ann", 160.5}, {"cy", 0.0}, {"dee", 0.0}}, first.Values())
}
