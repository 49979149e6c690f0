package pseudoperson

import (
	"strconv"

	"github.com/inferloop/casesynth/pkg/constants"
)

// Rule is a validity constraint on a decoded record. When a record breaks
// the rule only the Target field is changed to repair it.
type Rule struct {
	Name        string
	Description string
	Variables   []string
	Target      string
	Fallback    string
	Check       func(record map[string]string) bool
}

// RuleViolation records one rule broken by one tuple.
type RuleViolation struct {
	RuleName string `json:"rule_name"`
	Index    int    `json:"index"`
	Field    string `json:"field"`
	Value    string `json:"value"`
}

const (
	minChildbearingAge = 10
	maxChildbearingAge = 55
	maxPlausibleAge    = 120
)

// DefaultRules returns the record validity rules for case reports.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        "pregnancy-requires-female",
			Description: "a pregnant case must be female",
			Variables:   []string{constants.FieldPregnant, constants.FieldSex},
			Target:      constants.FieldPregnant,
			Fallback:    "N",
			Check: func(r map[string]string) bool {
				return r[constants.FieldPregnant] != "Y" || r[constants.FieldSex] == "F"
			},
		},
		{
			Name:        "pregnancy-requires-childbearing-age",
			Description: "a pregnant case must have an unknown age or an age in the childbearing range",
			Variables:   []string{constants.FieldPregnant, constants.FieldAge},
			Target:      constants.FieldPregnant,
			Fallback:    "N",
			Check: func(r map[string]string) bool {
				if r[constants.FieldPregnant] != "Y" {
					return true
				}
				age := r[constants.FieldAge]
				if age == constants.UnknownAge {
					return true
				}
				years, err := strconv.Atoi(age)
				if err != nil {
					return false
				}
				return years >= minChildbearingAge && years <= maxChildbearingAge
			},
		},
		{
			Name:        "unknown-age-code",
			Description: "age must be in [0, 120] or the unknown code 999",
			Variables:   []string{constants.FieldAge},
			Target:      constants.FieldAge,
			Fallback:    constants.UnknownAge,
			Check: func(r map[string]string) bool {
				age := r[constants.FieldAge]
				if age == constants.UnknownAge {
					return true
				}
				years, err := strconv.Atoi(age)
				if err != nil {
					return false
				}
				return years >= 0 && years <= maxPlausibleAge
			},
		},
	}
}

// applicable returns the rules whose variables are all present.
func applicable(rules []Rule, index map[string]int) []Rule {
	var out []Rule
	for _, rule := range rules {
		ok := true
		for _, name := range rule.Variables {
			if _, found := index[name]; !found {
				ok = false
				break
			}
		}
		if _, found := index[rule.Target]; !found {
			ok = false
		}
		if ok {
			out = append(out, rule)
		}
	}
	return out
}
