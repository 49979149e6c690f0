package hl7

import (
	"fmt"
	"sort"
	"strings"

	"github.com/inferloop/casesynth/pkg/errors"
)

// jurisdictions maps a jurisdiction's directory name to its abbreviation.
var jurisdictions = map[string]string{
	"Alabama":                        "AL",
	"Alaska":                         "AK",
	"Arizona":                        "AZ",
	"Arkansas":                       "AR",
	"California":                     "CA",
	"Colorado":                       "CO",
	"Connecticut":                    "CT",
	"Delaware":                       "DE",
	"District of Columbia":           "DC",
	"Florida":                        "FL",
	"Georgia":                        "GA",
	"Hawaii":                         "HI",
	"Idaho":                          "ID",
	"Illinois":                       "IL",
	"Indiana":                        "IN",
	"Iowa":                           "IA",
	"Kansas":                         "KS",
	"Kentucky":                       "KY",
	"Louisiana":                      "LA",
	"Maine":                          "ME",
	"Maryland":                       "MD",
	"Massachusetts":                  "MA",
	"Michigan":                       "MI",
	"Minnesota":                      "MN",
	"Mississippi":                    "MS",
	"Missouri":                       "MO",
	"Montana":                        "MT",
	"Nebraska":                       "NE",
	"Nevada":                         "NV",
	"New Hampshire":                  "NH",
	"New Jersey":                     "NJ",
	"New Mexico":                     "NM",
	"New York":                       "NY",
	"New York City":                  "NYC",
	"North Carolina":                 "NC",
	"North Dakota":                   "ND",
	"Ohio":                           "OH",
	"Oklahoma":                       "OK",
	"Oregon":                         "OR",
	"Pennsylvania":                   "PA",
	"Rhode Island":                   "RI",
	"South Carolina":                 "SC",
	"South Dakota":                   "SD",
	"Tennessee":                      "TN",
	"Texas":                          "TX",
	"Utah":                           "UT",
	"Vermont":                        "VT",
	"Virginia":                       "VA",
	"Washington":                     "WA",
	"West Virginia":                  "WV",
	"Wisconsin":                      "WI",
	"Wyoming":                        "WY",
	"American Samoa":                 "AS",
	"Federated States of Micronesia": "FM",
	"Guam":                           "GU",
	"Marshall Islands":               "MH",
	"Northern Mariana Islands":       "MP",
	"Palau":                          "PW",
	"Puerto Rico":                    "PR",
	"Virgin Islands":                 "VI",
}

// Jurisdiction identifies the source of a dataset.
type Jurisdiction struct {
	Name         string
	Abbreviation string
}

// ResolveJurisdiction accepts a full name or an abbreviation, in any case.
func ResolveJurisdiction(s string) (Jurisdiction, error) {
	want := strings.TrimSpace(s)
	for name, abbrev := range jurisdictions {
		if strings.EqualFold(name, want) || strings.EqualFold(abbrev, want) {
			return Jurisdiction{Name: name, Abbreviation: abbrev}, nil
		}
	}
	return Jurisdiction{}, errors.NewConfigurationError(errors.CodeInvalidInput, "unknown jurisdiction").
		WithDetails(fmt.Sprintf("%q", s))
}

// JurisdictionNames returns every known jurisdiction name, sorted.
func JurisdictionNames() []string {
	names := make([]string, 0, len(jurisdictions))
	for name := range jurisdictions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
