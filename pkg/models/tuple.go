package models

import "time"

// Tuple is one synthetic record: a code for each variable, in variable order.
type Tuple []int

// Clone returns a copy of the tuple.
func (t Tuple) Clone() Tuple {
	return append(Tuple(nil), t...)
}

// DateTuple extends the tuple at Index with its derived dates. Dates is
// aligned with the date fields of the DateModel; a zero time marks an
// absent date.
type DateTuple struct {
	Index  int         `json:"index"`
	Anchor time.Time   `json:"anchor"`
	Dates  []time.Time `json:"dates"`
}

// DateModel describes how record dates relate to the record's anchor (its
// earliest date).
type DateModel struct {
	Fields    []string             `json:"fields"`
	AnchorCDF []float64            `json:"anchor_cdf"`
	Offsets   []OffsetDistribution `json:"offsets"`
}

// OffsetDistribution is the distribution of one date field's offset, in
// days, from the anchor date.
type OffsetDistribution struct {
	Field              string        `json:"field"`
	MissingProbability float64       `json:"missing_probability"`
	Days               *EmpiricalCDF `json:"days,omitempty"`
}

// AnchorField maps a rank in [0,1] to the index of the field that carries
// the anchor date.
func (d *DateModel) AnchorField(u float64) int {
	return searchCDF(d.AnchorCDF, u)
}

// ModelData is everything the synthesis engine needs from the source data.
type ModelData struct {
	Jurisdiction    string            `json:"jurisdiction"`
	Codes           []int             `json:"codes"`
	InputFiles      []string          `json:"input_files"`
	Variables       []*Variable       `json:"variables"`
	Tau             CorrelationMatrix `json:"tau"`
	Signal          []int             `json:"signal"`
	Days            []time.Time       `json:"days"`
	MaxOriginalDate time.Time         `json:"max_original_date"`
	DateModel       *DateModel        `json:"date_model"`
	Records         []Tuple           `json:"records"`
	SkippedRecords  int               `json:"skipped_records"`
}

// VariableNames returns the variable names in model order.
func (m *ModelData) VariableNames() []string {
	names := make([]string, len(m.Variables))
	for i, v := range m.Variables {
		names[i] = v.Name
	}
	return names
}

// SignalSum returns the total case count of the source signal.
func (m *ModelData) SignalSum() int {
	total := 0
	for _, c := range m.Signal {
		total += c
	}
	return total
}
