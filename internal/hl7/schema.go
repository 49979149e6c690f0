package hl7

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
)

// SchemaVersion identifies the preprocessed case-report layout.
const SchemaVersion = "hl7-v2"

// Field names of the preprocessed case-report files.
const (
	FieldAge               = constants.FieldAge
	FieldSex               = constants.FieldSex
	FieldRace              = "race"
	FieldEthnicity         = "ethnicity"
	FieldCaseStatus        = "case_status"
	FieldCounty            = "county"
	FieldPregnant          = constants.FieldPregnant
	FieldCount             = constants.FieldCount
	FieldFirstElecSubmitDt = "first_elec_submit_dt"
	FieldDiagDt            = "diag_dt"
	FieldDiedDt            = "died_dt"
	FieldHospAdmitDt       = "hosp_admit_dt"
	FieldIllnessOnsetDt    = "illness_onset_dt"
	FieldInvestStartDt     = "invest_start_dt"
)

// Header is the column order of input and output files.
var Header = []string{
	FieldAge,
	FieldSex,
	FieldRace,
	FieldEthnicity,
	FieldCaseStatus,
	FieldCounty,
	FieldPregnant,
	FieldCount,
	FieldFirstElecSubmitDt,
	FieldDiagDt,
	FieldDiedDt,
	FieldHospAdmitDt,
	FieldIllnessOnsetDt,
	FieldInvestStartDt,
}

// CategoricalFields are the variables of the copula model.
var CategoricalFields = []string{
	FieldAge,
	FieldSex,
	FieldRace,
	FieldEthnicity,
	FieldCaseStatus,
	FieldCounty,
	FieldPregnant,
}

// DateFields are the date columns, in header order.
var DateFields = []string{
	FieldFirstElecSubmitDt,
	FieldDiagDt,
	FieldDiedDt,
	FieldHospAdmitDt,
	FieldIllnessOnsetDt,
	FieldInvestStartDt,
}

// CheckHeader verifies that header matches the schema. Names are compared
// case-insensitively after trimming.
func CheckHeader(header []string) error {
	if len(header) != len(Header) {
		return errors.NewConfigurationError(errors.CodeSchemaMismatch, "header has the wrong number of fields").
			WithDetails(fmt.Sprintf("got %d fields, want %d", len(header), len(Header)))
	}
	for i, name := range header {
		got := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if got != Header[i] {
			return errors.NewConfigurationError(errors.CodeSchemaMismatch, "header field does not match the schema").
				WithDetails(fmt.Sprintf("field %d is %q, want %q", i, got, Header[i]))
		}
	}
	return nil
}

// Normalize maps a raw categorical value onto its canonical form. Missing
// ages become the unknown age code.
func Normalize(field, raw string) string {
	value := strings.TrimSpace(raw)
	if field == FieldAge && value == "" {
		return constants.UnknownAge
	}
	return value
}

// SortDomain orders the observed values of a field. Numeric domains sort
// numerically with the unknown age code first; others sort lexically.
func SortDomain(field string, values []string) {
	keys := make(map[string]float64, len(values))
	numeric := true
	for _, v := range values {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			numeric = false
			break
		}
		if field == FieldAge && v == constants.UnknownAge {
			f = -1
		}
		keys[v] = f
	}

	if !numeric {
		sort.Strings(values)
		return
	}
	sort.SliceStable(values, func(i, j int) bool {
		return keys[values[i]] < keys[values[j]]
	})
}
