package export

import (
	"fmt"

	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/models"
)

// column sources
const (
	sourceEmpty = iota
	sourceVariable
	sourceCount
	sourceDate
)

// rowLayout maps each output column to the variable or date field that
// fills it.
type rowLayout struct {
	source []int
	index  []int
}

func newRowLayout(header []string, output *models.SynthesisOutput) (*rowLayout, error) {
	vars := make(map[string]int, len(output.Variables))
	for i, v := range output.Variables {
		vars[v.Name] = i
	}
	dates := make(map[string]int, len(output.DateFields))
	for i, f := range output.DateFields {
		dates[f] = i
	}

	layout := &rowLayout{
		source: make([]int, len(header)),
		index:  make([]int, len(header)),
	}
	for c, field := range header {
		if i, ok := vars[field]; ok {
			layout.source[c], layout.index[c] = sourceVariable, i
		} else if i, ok := dates[field]; ok {
			layout.source[c], layout.index[c] = sourceDate, i
		} else if field == constants.FieldCount {
			layout.source[c] = sourceCount
		}
	}

	for _, dt := range output.DateTuples {
		if dt.Index < 0 || dt.Index >= len(output.Tuples) {
			return nil, fmt.Errorf("date tuple references tuple %d of %d", dt.Index, len(output.Tuples))
		}
	}
	return layout, nil
}

// row renders one dated tuple. Every record has count 1.
func (l *rowLayout) row(output *models.SynthesisOutput, dt models.DateTuple) []string {
	tuple := output.Tuples[dt.Index]
	row := make([]string, len(l.source))
	for c, src := range l.source {
		switch src {
		case sourceVariable:
			row[c] = output.Variables[l.index[c]].Decode(tuple[l.index[c]])
		case sourceCount:
			row[c] = "1"
		case sourceDate:
			if i := l.index[c]; i < len(dt.Dates) && !dt.Dates[i].IsZero() {
				row[c] = dt.Dates[i].Format(constants.DateLayout)
			}
		}
	}
	return row
}
