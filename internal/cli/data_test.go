package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCLI_LoadRows(t *testing.T) {
	t.Parallel()

	t.Run("json array keeps numbers exact", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "rows.json", `[{"id": 9007199254740993, "name": "a"}, {"id": 2, "name": null}]`)
		rows, columns, err := LoadRows(path)
		require.NoError(t, err)
		require.Nil(t, columns)
		require.Equal(t, []dataset.Row{
			{"id": json.Number("9007199254740993"), "name": "a"},
			{"id": json.Number("2"), "name": nil},
		}, rows)
	})

	t.Run("json object with rows", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "rows.json", `{"rows": [{"a": 1}]}`)
		rows, _, err := LoadRows(path)
		require.NoError(t, err)
		require.Equal(t, []dataset.Row{{"a": json.Number("1")}}, rows)
	})

	t.Run("ndjson", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "rows.ndjson", "{\"a\": 1}\n{\"a\": 2}\n")
		rows, _, err := LoadRows(path)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.Equal(t, json.Number("2"), rows[1]["a"])
	})

	t.Run("csv keeps header order and pads short records", func(t *testing.T) {
		t.Parallel()

		path := writeFile(t, "rows.csv", "region, sales\neast,10\nwest\n")
		rows, columns, err := LoadRows(path)
		require.NoError(t, err)
		require.Equal(t, []string{"region", "sales"}, columns)
		require.Equal(t, []dataset.Row{
			{"region": "east", "sales": "10"},
			{"region": "west", "sales": nil},
		}, rows)
	})

	t.Run("empty csv", func(t *testing.T) {
		t.Parallel()

		rows, columns, err := LoadRows(writeFile(t, "rows.csv", ""))
		require.NoError(t, err)
		require.Empty(t, rows)
		require.Empty(t, columns)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		t.Parallel()

		_, _, err := LoadRows(writeFile(t, "rows.xml", "<rows/>"))
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()

		_, _, err := LoadRows(writeFile(t, "rows.json", `[{"a": `))
		require.ErrorContains(t, err, "failed to decode json rows")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, _, err := LoadRows(filepath.Join(t.TempDir(), "missing.json"))
		require.Error(t, err)
	})
}
