package metadata

// ColumnType is the detected semantic type of a column.
type ColumnType string

const (
	TypeNumeric  ColumnType = "numeric"
	TypeText     ColumnType = "text"
	TypeBoolean  ColumnType = "boolean"
	TypeTemporal ColumnType = "temporal"
)

// NumericStats summarizes the numeric values of a column. Quartiles use linear
// interpolation and StdDev is the population standard deviation.
type NumericStats struct {
	Count    int     `json:"count"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Sum      float64 `json:"sum"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"stddev"`
	Q1       float64 `json:"q1"`
	Q3       float64 `json:"q3"`
	Outliers int     `json:"outliers"`
}

// IQR is the interquartile range.
func (s NumericStats) IQR() float64 {
	return s.Q3 - s.Q1
}

// OutlierBounds returns the 1.5*IQR fences.
func (s NumericStats) OutlierBounds() (float64, float64) {
	iqr := s.IQR()
	return s.Q1 - 1.5*iqr, s.Q3 + 1.5*iqr
}

type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

type ColumnMetadata struct {
	Name         string        `json:"name"`
	Type         ColumnType    `json:"type"`
	NullCount    int           `json:"null_count"`
	UniqueCount  int           `json:"unique_count"`
	SampleValues []any         `json:"sample_values"`
	Numeric      *NumericStats `json:"numeric,omitempty"`
	TopValues    []ValueCount  `json:"top_values,omitempty"`
}

// IsCategorical reports whether the column holds text or boolean labels.
func (c ColumnMetadata) IsCategorical() bool {
	return c.Type == TypeText || c.Type == TypeBoolean
}

type DatasetMetadata struct {
	DatasetID   string           `json:"dataset_id"`
	RowCount    int              `json:"row_count"`
	ColumnCount int              `json:"column_count"`
	Columns     []ColumnMetadata `json:"columns"`
}

// Column looks up a column by exact name.
func (m *DatasetMetadata) Column(name string) (ColumnMetadata, bool) {
	for _, c := range m.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnMetadata{}, false
}

func (m *DatasetMetadata) ColumnNames() []string {
	names := make([]string, 0, len(m.Columns))
	for _, c := range m.Columns {
		names = append(names, c.Name)
	}
	return names
}

func (m *DatasetMetadata) NumericColumns() []string {
	return m.columnsOfType(TypeNumeric)
}

func (m *DatasetMetadata) TemporalColumns() []string {
	return m.columnsOfType(TypeTemporal)
}

func (m *DatasetMetadata) CategoricalColumns() []string {
	var names []string
	for _, c := range m.Columns {
		if c.IsCategorical() {
			names = append(names, c.Name)
		}
	}
	return names
}

func (m *DatasetMetadata) columnsOfType(t ColumnType) []string {
	var names []string
	for _, c := range m.Columns {
		if c.Type == t {
			names = append(names, c.Name)
		}
	}
	return names
}
