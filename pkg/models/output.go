package models

import "time"

// SynthesisOutput is the serializable result of a synthesis run.
type SynthesisOutput struct {
	RunID           string      `json:"run_id"`
	SampleCount     int         `json:"sample_count"`
	SyntheticSignal []int       `json:"synthetic_signal"`
	Days            []time.Time `json:"days"`
	Variables       []*Variable `json:"variables"`
	Tuples          []Tuple     `json:"tuples"`
	MaxOriginalDate time.Time   `json:"max_original_date"`
	DateFields      []string    `json:"date_fields"`
	DateTuples      []DateTuple `json:"date_tuples"`
	Truncated       bool        `json:"truncated"`
}
