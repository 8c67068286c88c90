package pipeline

import (
	"fmt"
	"strings"

	"github.com/malbeclabs/nlquery/pkg/dataset"
	"github.com/malbeclabs/nlquery/pkg/metadata"
	"github.com/malbeclabs/nlquery/pkg/query"
)

const maxSchemaSamples = 5

// DescribeSchema renders dataset metadata as the schema section of the
// generation prompt.
func DescribeSchema(md *metadata.DatasetMetadata) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Table: data (%d rows, %d columns)\n\n", md.RowCount, md.ColumnCount)
	for _, c := range md.Columns {
		fmt.Fprintf(&sb, "- %s (%s)", query.QuoteIdent(c.Name), c.Type)
		if c.NullCount > 0 {
			fmt.Fprintf(&sb, ", %d nulls", c.NullCount)
		}
		fmt.Fprintf(&sb, ", %d unique", c.UniqueCount)
		sb.WriteString("\n")

		if s := c.Numeric; s != nil {
			fmt.Fprintf(&sb, "  range %s to %s, mean %s, median %s\n",
				formatNumber(s.Min), formatNumber(s.Max), formatNumber(s.Mean), formatNumber(s.Median))
		}
		if len(c.TopValues) > 0 {
			parts := make([]string, len(c.TopValues))
			for i, tv := range c.TopValues {
				parts[i] = fmt.Sprintf("%q (%d)", tv.Value, tv.Count)
			}
			fmt.Fprintf(&sb, "  top values: %s\n", strings.Join(parts, ", "))
		} else if len(c.SampleValues) > 0 {
			n := min(len(c.SampleValues), maxSchemaSamples)
			parts := make([]string, n)
			for i := range n {
				parts[i] = fmt.Sprintf("%q", dataset.ToString(c.SampleValues[i]))
			}
			fmt.Fprintf(&sb, "  samples: %s\n", strings.Join(parts, ", "))
		}
	}
	return sb.String()
}

// formatNumber renders integral values without a fraction and everything else
// rounded to two decimals.
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
