package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/malbeclabs/nlquery/pkg/indexer"
	"github.com/malbeclabs/nlquery/pkg/metadata"
	"github.com/malbeclabs/nlquery/pkg/pipeline"
	"github.com/malbeclabs/nlquery/pkg/server"
	"github.com/stretchr/testify/require"
)

const salesRows = `[
	{"region": "east", "sales": 10},
	{"region": "east", "sales": 20},
	{"region": "west", "sales": 5}
]`

func newServer(t *testing.T) (*server.Server, *indexer.Indexer) {
	t.Helper()

	ix, err := indexer.New(indexer.Config{Logger: logger})
	require.NoError(t, err)
	cache, err := metadata.NewCache(metadata.CacheConfig{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	p, err := pipeline.New(pipeline.Config{Logger: logger, Indexer: ix, Metadata: cache})
	require.NoError(t, err)

	srv, err := server.New(server.Config{
		Logger:   logger,
		Pipeline: p,
		Indexer:  ix,
		Metadata: cache,
		MaxRows:  2,
	})
	require.NoError(t, err)
	return srv, ix
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Config(t *testing.T) {
	t.Parallel()

	_, err := server.New(server.Config{})
	require.ErrorContains(t, err, "logger is required")

	_, err = server.New(server.Config{Logger: logger})
	require.ErrorContains(t, err, "pipeline is required")
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestServer_Ask(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	h := srv.Handler()

	t.Run("answers with fallback aggregation", func(t *testing.T) {
		t.Parallel()

		rec := do(t, h, http.MethodPost, "/v1/ask", `{"question": "how many orders", "rows": `+salesRows+`}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var res pipeline.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.True(t, res.Success)
		require.Equal(t, pipeline.MethodAggregation, res.Method)
		require.Equal(t, pipeline.KindLLMUnavailable, res.ErrorKind)
		require.Len(t, res.Data, 1)
		require.EqualValues(t, 3, res.Data[0]["count"])
	})

	t.Run("ambiguous question asks for clarification", func(t *testing.T) {
		t.Parallel()

		rows := `[{"product": "a", "revenue": 1, "rating": 2}, {"product": "b", "revenue": 3, "rating": 4}]`
		rec := do(t, h, http.MethodPost, "/v1/ask", `{"question": "which product is best", "rows": `+rows+`}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var res pipeline.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		require.False(t, res.Success)
		require.True(t, res.NeedsClarification)
		require.NotEmpty(t, res.ClarificationQuestions)
	})

	t.Run("rejects missing question", func(t *testing.T) {
		t.Parallel()

		rec := do(t, h, http.MethodPost, "/v1/ask", `{"rows": []}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		t.Parallel()

		rec := do(t, h, http.MethodPost, "/v1/ask", `{"question":`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Query(t *testing.T) {
	t.Parallel()

	srv, ix := newServer(t)
	h := srv.Handler()

	t.Run("executes query", func(t *testing.T) {
		t.Parallel()

		body := `{"dataset_id": "sales", "query": "SELECT region, SUM(sales) AS total FROM data GROUP BY region ORDER BY total DESC", "rows": ` + salesRows + `}`
		rec := do(t, h, http.MethodPost, "/v1/query", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp server.QueryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Empty(t, resp.Error)
		require.Equal(t, []string{"region", "total"}, resp.Columns)
		require.Equal(t, [][]any{{"east", float64(30)}, {"west", float64(5)}}, resp.Rows)
		require.Equal(t, 2, resp.RowCount)
		require.False(t, resp.Truncated)

		_, ok := ix.Get("sales")
		require.True(t, ok)
	})

	t.Run("caps returned rows", func(t *testing.T) {
		t.Parallel()

		rec := do(t, h, http.MethodPost, "/v1/query", `{"query": "SELECT * FROM data", "rows": `+salesRows+`}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp server.QueryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Rows, 2)
		require.True(t, resp.Truncated)
	})

	t.Run("reports unknown column", func(t *testing.T) {
		t.Parallel()

		rec := do(t, h, http.MethodPost, "/v1/query", `{"query": "SELECT profit FROM data", "rows": `+salesRows+`}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp server.QueryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, pipeline.KindUnknownColumn, resp.ErrorKind)
		require.Contains(t, resp.Error, "profit")
	})

	t.Run("reports disallowed statements", func(t *testing.T) {
		t.Parallel()

		rec := do(t, h, http.MethodPost, "/v1/query", `{"query": "DELETE FROM data", "rows": `+salesRows+`}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp server.QueryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, pipeline.KindSyntaxError, resp.ErrorKind)
	})

	t.Run("requires query", func(t *testing.T) {
		t.Parallel()

		rec := do(t, h, http.MethodPost, "/v1/query", `{"rows": []}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Profile(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	rec := do(t, srv.Handler(), http.MethodPost, "/v1/profile", `{"rows": `+salesRows+`}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var md metadata.DatasetMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &md))
	require.Equal(t, 3, md.RowCount)
	require.Equal(t, 2, md.ColumnCount)

	sales, ok := md.Column("sales")
	require.True(t, ok)
	require.Equal(t, metadata.TypeNumeric, sales.Type)
	require.NotNil(t, sales.Numeric)
	require.InDelta(t, 35, sales.Numeric.Sum, 1e-9)
}

func TestServer_InvalidateIndexes(t *testing.T) {
	t.Parallel()

	srv, ix := newServer(t)
	h := srv.Handler()

	for _, id := range []string{"a", "b"} {
		rec := do(t, h, http.MethodPost, "/v1/query", `{"dataset_id": "`+id+`", "query": "SELECT COUNT(*) FROM data", "rows": `+salesRows+`}`)
		require.Equal(t, http.StatusOK, rec.Code)
		_, ok := ix.Get(id)
		require.True(t, ok)
	}

	rec := do(t, h, http.MethodDelete, "/v1/indexes/a", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := ix.Get("a")
	require.False(t, ok)
	_, ok = ix.Get("b")
	require.True(t, ok)

	rec = do(t, h, http.MethodDelete, "/v1/indexes", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, ok = ix.Get("b")
	require.False(t, ok)
}

func TestServer_Serve(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, listener)
	}()

	url := "http://" + listener.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Post(url+"/v1/ask", "application/json", bytes.NewBufferString(`{"question": "total sales", "rows": `+salesRows+`}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
