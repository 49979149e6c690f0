package hl7

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

// ReadTuples reads a generated case-report CSV back into tuples encoded
// against variables. Every value must lie in its variable's domain.
func ReadTuples(r io.Reader, variables []*models.Variable) ([]models.Tuple, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeReadFailed, "failed to read header")
	}
	if err := CheckHeader(header); err != nil {
		return nil, err
	}

	cols := make([]int, len(variables))
	for k, v := range variables {
		cols[k] = indexOf(Header, v.Name)
		if cols[k] < 0 {
			return nil, errors.NewConfigurationError(errors.CodeSchemaMismatch, "variable is not a schema field").
				WithDetails(v.Name)
		}
	}

	var tuples []models.Tuple
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeReadFailed, "failed to read CSV").
				WithDetails(fmt.Sprintf("line %d", line))
		}

		tuple := make(models.Tuple, len(variables))
		for k, v := range variables {
			value := Normalize(v.Name, row[cols[k]])
			code, ok := v.Encode(value)
			if !ok {
				return nil, errors.NewValidationError(errors.CodeInvalidInput, "value outside the model domain").
					WithDetails(fmt.Sprintf("line %d: %s=%q", line, v.Name, value))
			}
			tuple[k] = code
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}
