package pseudoperson

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	mathutil "github.com/inferloop/casesynth/internal/utils/math"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

const secondsPerDay = 24 * 60 * 60

// DateDeriver assigns each tuple an anchor date taken from the synthetic
// series and derives the record's remaining date fields from it.
type DateDeriver struct {
	logger *logrus.Logger
	model  *models.DateModel
}

// DeriveResult holds the dated tuples. When the date ceiling was reached
// Truncated is set and Diagnostic explains how far derivation got.
type DeriveResult struct {
	Fields     []string
	DateTuples []models.DateTuple
	Truncated  bool
	Diagnostic error
}

// NewDateDeriver creates a deriver for the given date model. A nil model
// yields anchor dates only.
func NewDateDeriver(model *models.DateModel, logger *logrus.Logger) *DateDeriver {
	if logger == nil {
		logger = logrus.New()
	}
	return &DateDeriver{
		logger: logger,
		model:  model,
	}
}

// Derive walks the synthetic series day by day and gives the next c tuples
// that day as their anchor, where c is the day's count. Past the last day
// the series repeats. A series with no counts places one tuple per day.
func (d *DateDeriver) Derive(n int, synthetic []int, days []time.Time, variables []*models.Variable, tuples []models.Tuple, maxOriginalDate time.Time, rng *rand.Rand) (*DeriveResult, error) {
	if len(days) != len(synthetic) {
		return nil, errors.NewConfigurationError(errors.CodeInvalidInput, "days and synthetic series differ in length").
			WithDetails(fmt.Sprintf("%d days, %d counts", len(days), len(synthetic))).
			WithStage(constants.StageDerive)
	}
	if n < 0 || n > len(tuples) {
		return nil, errors.NewConfigurationError(errors.CodeInvalidSampleCount, "sample count exceeds the number of tuples").
			WithDetails(fmt.Sprintf("n=%d, %d tuples", n, len(tuples))).
			WithStage(constants.StageDerive)
	}
	for i := 1; i < len(days); i++ {
		if !days[i].Equal(days[i-1].AddDate(0, 0, 1)) {
			return nil, errors.NewConfigurationError(errors.CodeInvalidInput, "days are not consecutive").
				WithContext("index", i).
				WithStage(constants.StageDerive)
		}
	}

	result := &DeriveResult{
		Fields:     d.fields(),
		DateTuples: make([]models.DateTuple, 0, n),
	}
	if n == 0 {
		return result, nil
	}
	if len(days) == 0 {
		return nil, errors.NewConfigurationError(errors.CodeInvalidInput, "at least one day is required").
			WithStage(constants.StageDerive)
	}

	d.logger.WithFields(logrus.Fields{
		"tuples":    n,
		"days":      len(days),
		"variables": len(variables),
	}).Info("Starting date derivation")

	ceiling := constants.MaxDate()
	zeroSum := mathutil.SumInts(synthetic) == 0
	date := days[0]

	for day := 0; len(result.DateTuples) < n; day++ {
		if day > 0 {
			date = date.AddDate(0, 0, 1)
		}
		if date.After(ceiling) {
			result.Truncated = true
			result.Diagnostic = errors.NewDateOverflowError(errors.CodeDateCeiling, "date ceiling reached before all tuples were dated").
				WithDetails(fmt.Sprintf("dated %d of %d tuples before %s", len(result.DateTuples), n, constants.MaxRepresentableDate)).
				WithContext("dated", len(result.DateTuples)).
				WithContext("requested", n).
				WithStage(constants.StageDerive)
			d.logger.WithFields(logrus.Fields{
				"dated":     len(result.DateTuples),
				"requested": n,
			}).Warn("Date ceiling reached, output truncated")
			break
		}

		count := 1
		if !zeroSum {
			count = synthetic[day%len(synthetic)]
		}
		for c := 0; c < count && len(result.DateTuples) < n; c++ {
			idx := len(result.DateTuples)
			result.DateTuples = append(result.DateTuples, d.dateTuple(idx, date, maxOriginalDate, ceiling, rng))
		}
	}

	d.logger.WithFields(logrus.Fields{
		"dated":     len(result.DateTuples),
		"truncated": result.Truncated,
	}).Info("Date derivation completed")

	return result, nil
}

func (d *DateDeriver) fields() []string {
	if d.model == nil {
		return nil
	}
	return append([]string(nil), d.model.Fields...)
}

// dateTuple draws the date fields of one record anchored at anchor.
func (d *DateDeriver) dateTuple(index int, anchor, maxOriginalDate, ceiling time.Time, rng *rand.Rand) models.DateTuple {
	dt := models.DateTuple{Index: index, Anchor: anchor}
	if d.model == nil || len(d.model.Fields) == 0 {
		return dt
	}

	limit := ceiling
	if !anchor.After(maxOriginalDate) {
		limit = maxOriginalDate
	}
	maxOffset := daysBetween(anchor, limit)

	dt.Dates = make([]time.Time, len(d.model.Fields))
	anchorField := d.model.AnchorField(rng.Float64())
	for f := range d.model.Fields {
		if f == anchorField {
			dt.Dates[f] = anchor
			continue
		}
		if f >= len(d.model.Offsets) {
			continue
		}
		dist := d.model.Offsets[f]
		if dist.Days == nil || rng.Float64() < dist.MissingProbability {
			continue
		}
		offset := dist.Days.Inverse(rng.Float64())
		if offset < 0 {
			offset = 0
		}
		if offset > maxOffset {
			offset = maxOffset
		}
		dt.Dates[f] = anchor.AddDate(0, 0, offset)
	}
	return dt
}

// daysBetween returns the whole days from a to b without the range limit of
// time.Duration.
func daysBetween(a, b time.Time) int {
	return int((b.Unix() - a.Unix()) / secondsPerDay)
}
