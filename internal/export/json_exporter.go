package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/inferloop/casesynth/internal/hl7"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/models"
)

// JSONExporter writes the synthetic records with run metadata as a single
// JSON document.
type JSONExporter struct {
	header []string
	pretty bool
}

// JSONDocument is the top-level JSON output.
type JSONDocument struct {
	RunID           string              `json:"run_id"`
	SchemaVersion   string              `json:"schema_version"`
	SampleCount     int                 `json:"sample_count"`
	MaxOriginalDate string              `json:"max_original_date"`
	Truncated       bool                `json:"truncated"`
	Records         []Record `json:"records"`
}

// Record is one output row. It marshals as a JSON object whose keys follow
// the schema column order.
type Record struct {
	Fields []string
	Values []string
}

// Get returns the value of field, or "" when the record has no such field.
func (r Record) Get(field string) string {
	for i, f := range r.Fields {
		if f == field {
			return r.Values[i]
		}
	}
	return ""
}

// MarshalJSON implements json.Marshaler
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping the key order of the
// input object.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record must be a JSON object")
	}

	r.Fields, r.Values = nil, nil
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record key must be a string")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("record field %q: %w", key, err)
		}
		r.Fields = append(r.Fields, key)
		r.Values = append(r.Values, value)
	}
	_, err = dec.Token()
	return err
}

// NewJSONExporter creates a JSON exporter for the given field order
func NewJSONExporter(header []string, pretty bool) *JSONExporter {
	return &JSONExporter{header: header, pretty: pretty}
}

// Format returns the file extension handled
func (je *JSONExporter) Format() string {
	return constants.ExtJSON
}

// Export exports the synthetic records to JSON format
func (je *JSONExporter) Export(ctx context.Context, writer io.Writer, output *models.SynthesisOutput) error {
	layout, err := newRowLayout(je.header, output)
	if err != nil {
		return err
	}

	doc := JSONDocument{
		RunID:         output.RunID,
		SchemaVersion: hl7.SchemaVersion,
		SampleCount:   output.SampleCount,
		Truncated:     output.Truncated,
		Records:       make([]Record, 0, len(output.DateTuples)),
	}
	if !output.MaxOriginalDate.IsZero() {
		doc.MaxOriginalDate = output.MaxOriginalDate.Format(constants.DateLayout)
	}

	for _, dt := range output.DateTuples {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		doc.Records = append(doc.Records, Record{Fields: je.header, Values: layout.row(output, dt)})
	}

	encoder := json.NewEncoder(writer)
	if je.pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(doc)
}
