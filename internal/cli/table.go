package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/metadata"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetRowLine(true)
	table.SetHeader(header)
	return table
}

func renderRows(w io.Writer, columns []string, rows []dataset.Row) {
	table := newTable(w, columns)
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = formatCell(row[c])
		}
		table.Append(cells)
	}
	table.Render()
}

func renderProfile(w io.Writer, md *metadata.DatasetMetadata) {
	fmt.Fprintf(w, "Dataset %s: %d rows, %d columns\n", md.DatasetID, md.RowCount, md.ColumnCount)

	table := newTable(w, []string{
		"Column", "Type", "Nulls", "Unique",
		"Min", "Max", "Mean", "Median", "StdDev", "Outliers",
		"Top Values",
	})
	for _, c := range md.Columns {
		cells := []string{c.Name, string(c.Type), strconv.Itoa(c.NullCount), strconv.Itoa(c.UniqueCount)}
		if s := c.Numeric; s != nil {
			cells = append(cells,
				formatFloat(s.Min), formatFloat(s.Max), formatFloat(s.Mean),
				formatFloat(s.Median), formatFloat(s.StdDev), strconv.Itoa(s.Outliers),
			)
		} else {
			cells = append(cells, "", "", "", "", "", "")
		}
		cells = append(cells, formatTopValues(c.TopValues))
		table.Append(cells)
	}
	table.Render()
}

func formatCell(v any) string {
	if dataset.IsNull(v) {
		return "NULL"
	}
	if f, ok := v.(float64); ok {
		return formatFloat(f)
	}
	return dataset.ToString(v)
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func formatTopValues(values []metadata.ValueCount) string {
	var out string
	for i, v := range values {
		if i == 3 {
			break
		}
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("%s (%d)", v.Value, v.Count)
	}
	return out
}
