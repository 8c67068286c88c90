package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/spf13/pflag"
)

var ErrUnsupportedFormat = errors.New("unsupported data format")

// addDataFlags registers the flags that select the input dataset.
func addDataFlags(fs *pflag.FlagSet) {
	fs.String("data", "", "path to the dataset (.json array of objects, .ndjson or .csv)")
	fs.String("dataset-id", "", "stable dataset identifier used for caching (default: content fingerprint)")
}

func readDataFlags(fs *pflag.FlagSet) (*dataset.Dataset, error) {
	path, err := fs.GetString("data")
	if err != nil {
		return nil, fmt.Errorf("failed to get data flag: %w", err)
	}
	id, err := fs.GetString("dataset-id")
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset-id flag: %w", err)
	}
	if path == "" {
		return nil, errors.New("--data is required")
	}
	rows, columns, err := LoadRows(path)
	if err != nil {
		return nil, err
	}
	return dataset.New(id, rows, columns), nil
}

// LoadRows reads a dataset file, picking the decoder from its extension.
// CSV columns follow the header order; JSON columns are inferred.
func LoadRows(path string) ([]dataset.Row, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		rows, err := ParseJSONRows(data)
		return rows, nil, err
	case ".ndjson", ".jsonl":
		rows, err := ParseNDJSONRows(data)
		return rows, nil, err
	case ".csv":
		return ParseCSVRows(data)
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// ParseJSONRows accepts an array of objects or an object with a "rows" array.
// Numbers are kept as json.Number so integers keep their exact value.
func ParseJSONRows(data []byte) ([]dataset.Row, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Rows []dataset.Row `json:"rows"`
		}
		if err := decodeJSON(trimmed, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Rows, nil
	}
	var rows []dataset.Row
	if err := decodeJSON(trimmed, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func ParseNDJSONRows(data []byte) ([]dataset.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []dataset.Row
	for {
		var row dataset.Row
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
}

// ParseCSVRows reads a header row followed by records. Cells stay strings and
// are typed by the metadata analyzer.
func ParseCSVRows(data []byte) ([]dataset.Row, []string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []dataset.Row
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read csv record %d: %w", len(rows)+1, err)
		}
		row := make(dataset.Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode json rows: %w", err)
	}
	return nil
}
