package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/models"
)

// CSVExporter writes one row per dated tuple under the schema header.
type CSVExporter struct {
	header []string
}

// NewCSVExporter creates a CSV exporter for the given column order
func NewCSVExporter(header []string) *CSVExporter {
	return &CSVExporter{header: header}
}

// Format returns the file extension handled
func (ce *CSVExporter) Format() string {
	return constants.ExtCSV
}

// Export exports the synthetic records to CSV format
func (ce *CSVExporter) Export(ctx context.Context, writer io.Writer, output *models.SynthesisOutput) error {
	csvWriter := csv.NewWriter(writer)

	if err := csvWriter.Write(ce.header); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	layout, err := newRowLayout(ce.header, output)
	if err != nil {
		return err
	}

	for _, dt := range output.DateTuples {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := csvWriter.Write(layout.row(output, dt)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
