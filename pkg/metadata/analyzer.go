package metadata

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/malbeclabs/nlquery/pkg/dataset"
)

const (
	defaultNumericThreshold = 0.8
	defaultSampleSize       = 100
	defaultTopK             = 5
	defaultMaxSamples       = 10
)

var temporalLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"2006-01",
}

type AnalyzerConfig struct {
	// NumericThreshold is the fraction of sampled values that must match a
	// type for the column to be detected as that type.
	NumericThreshold float64
	SampleSize       int
	TopK             int
	MaxSamples       int
}

func (cfg *AnalyzerConfig) Validate() error {
	if cfg.NumericThreshold < 0 || cfg.NumericThreshold > 1 {
		return errors.New("numeric threshold must be between 0 and 1")
	}
	if cfg.NumericThreshold == 0 {
		cfg.NumericThreshold = defaultNumericThreshold
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = defaultSampleSize
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = defaultMaxSamples
	}
	return nil
}

// Analyzer derives per-column metadata from a dataset. It holds no state
// beyond its configuration and is safe for concurrent use.
type Analyzer struct {
	cfg AnalyzerConfig
}

func NewAnalyzer(cfg AnalyzerConfig) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Analyzer{cfg: cfg}, nil
}

// DefaultAnalyzer returns an analyzer with default settings.
func DefaultAnalyzer() *Analyzer {
	a, _ := NewAnalyzer(AnalyzerConfig{})
	return a
}

func (a *Analyzer) Analyze(ds *dataset.Dataset) *DatasetMetadata {
	md := &DatasetMetadata{
		DatasetID:   ds.ID,
		RowCount:    len(ds.Rows),
		ColumnCount: len(ds.Columns),
		Columns:     make([]ColumnMetadata, 0, len(ds.Columns)),
	}
	for _, col := range ds.Columns {
		md.Columns = append(md.Columns, a.analyzeColumn(ds.Rows, col))
	}
	return md
}

func (a *Analyzer) analyzeColumn(rows []dataset.Row, col string) ColumnMetadata {
	cm := ColumnMetadata{Name: col}

	type seenValue struct {
		value any
		count int
	}
	counts := make(map[string]*seenValue)
	var order []string
	var sample []any
	for _, row := range rows {
		v := row[col]
		if dataset.IsNull(v) {
			cm.NullCount++
			continue
		}
		if len(sample) < a.cfg.SampleSize {
			sample = append(sample, v)
		}
		k := dataset.GroupKey(v)
		if s, ok := counts[k]; ok {
			s.count++
			continue
		}
		counts[k] = &seenValue{value: v, count: 1}
		order = append(order, k)
	}
	cm.UniqueCount = len(order)
	for i := 0; i < len(order) && i < a.cfg.MaxSamples; i++ {
		cm.SampleValues = append(cm.SampleValues, counts[order[i]].value)
	}

	cm.Type = a.detectType(sample)
	switch cm.Type {
	case TypeNumeric:
		cm.Numeric = numericStats(rows, col)
	case TypeText, TypeBoolean:
		top := make([]ValueCount, 0, len(order))
		for _, k := range order {
			s := counts[k]
			top = append(top, ValueCount{Value: dataset.ToString(s.value), Count: s.count})
		}
		sort.SliceStable(top, func(i, j int) bool { return top[i].Count > top[j].Count })
		if len(top) > a.cfg.TopK {
			top = top[:a.cfg.TopK]
		}
		cm.TopValues = top
	}
	return cm
}

// detectType checks boolean, temporal and numeric in that order against the
// threshold; anything else is text.
func (a *Analyzer) detectType(sample []any) ColumnType {
	if len(sample) == 0 {
		return TypeText
	}
	need := a.cfg.NumericThreshold * float64(len(sample))
	var nBool, nTime, nNum int
	for _, v := range sample {
		if isBoolean(v) {
			nBool++
		}
		if isTemporal(v) {
			nTime++
		}
		if _, ok := dataset.ToFloat(v); ok {
			nNum++
		}
	}
	switch {
	case float64(nBool) >= need:
		return TypeBoolean
	case float64(nTime) >= need:
		return TypeTemporal
	case float64(nNum) >= need:
		return TypeNumeric
	}
	return TypeText
}

func isBoolean(v any) bool {
	switch x := v.(type) {
	case bool:
		return true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "false", "yes", "no":
			return true
		}
	}
	return false
}

func isTemporal(v any) bool {
	switch x := v.(type) {
	case time.Time:
		return true
	case string:
		_, ok := ParseTime(x)
		return ok
	}
	return false
}

// ParseTime parses the date and timestamp layouts recognized as temporal.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range temporalLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func numericStats(rows []dataset.Row, col string) *NumericStats {
	values := make([]float64, 0, len(rows))
	st := &NumericStats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, row := range rows {
		f, ok := dataset.ToFloat(row[col])
		if !ok {
			continue
		}
		values = append(values, f)
		st.Sum += f
		st.Min = math.Min(st.Min, f)
		st.Max = math.Max(st.Max, f)
	}
	st.Count = len(values)
	if st.Count == 0 {
		return &NumericStats{}
	}
	st.Mean = st.Sum / float64(st.Count)
	var sq float64
	for _, f := range values {
		d := f - st.Mean
		sq += d * d
	}
	st.StdDev = math.Sqrt(sq / float64(st.Count))

	sort.Float64s(values)
	st.Median = percentile(values, 0.5)
	st.Q1 = percentile(values, 0.25)
	st.Q3 = percentile(values, 0.75)
	lo, hi := st.OutlierBounds()
	for _, f := range values {
		if f < lo || f > hi {
			st.Outliers++
		}
	}
	return st
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}
