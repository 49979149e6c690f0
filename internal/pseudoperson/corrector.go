package pseudoperson

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inferloop/casesynth/internal/copula"
	mathutil "github.com/inferloop/casesynth/internal/utils/math"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

// latentEpsilon keeps reconstructed ranks away from 0 and 1.
const latentEpsilon = 1e-12

// Corrector repairs sampled tuples that break a validity rule by resampling
// the offending field from the copula conditional.
type Corrector struct {
	logger *logrus.Logger
	config *CorrectorConfig
	rules  []Rule
}

// CorrectorConfig contains configuration for tuple correction
type CorrectorConfig struct {
	MaxRetries int `json:"max_retries" mapstructure:"correction_retries"`
}

// CorrectionReport summarizes a correction pass.
type CorrectionReport struct {
	TuplesCorrected int            `json:"tuples_corrected"`
	Resamples       int            `json:"resamples"`
	Fallbacks       int            `json:"fallbacks"`
	Violations      map[string]int `json:"violations"`
	SkippedRules    []string       `json:"skipped_rules,omitempty"`
}

// NewCorrector creates a corrector. A nil rule set selects DefaultRules.
func NewCorrector(config *CorrectorConfig, rules []Rule, logger *logrus.Logger) *Corrector {
	if config == nil {
		config = &CorrectorConfig{}
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = constants.DefaultCorrectionRetries
	}
	if rules == nil {
		rules = DefaultRules()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Corrector{
		logger: logger,
		config: config,
		rules:  rules,
	}
}

// Rules returns the configured rule set.
func (c *Corrector) Rules() []Rule {
	return c.rules
}

// Correct checks every tuple against the rules and repairs violations in
// place. The returned slice has exactly n tuples, none of which breaks a
// rule.
func (c *Corrector) Correct(n int, variables []*models.Variable, tuples []models.Tuple, tau models.CorrelationMatrix, rng *rand.Rand) ([]models.Tuple, CorrectionReport, error) {
	report := CorrectionReport{Violations: make(map[string]int)}

	if len(tuples) != n {
		return nil, report, errors.NewConfigurationError(errors.CodeInvalidInput, "tuple count does not match the requested sample count").
			WithDetails(fmt.Sprintf("%d tuples for n=%d", len(tuples), n)).
			WithStage(constants.StageCorrect)
	}
	if n == 0 {
		return tuples, report, nil
	}

	model, err := copula.NewModel(tau)
	if err != nil {
		return nil, report, errors.AtStage(err, constants.StageCorrect)
	}

	index := make(map[string]int, len(variables))
	for i, v := range variables {
		index[v.Name] = i
	}
	rules := applicable(c.rules, index)
	for _, rule := range c.rules {
		if !containsRule(rules, rule.Name) {
			report.SkippedRules = append(report.SkippedRules, rule.Name)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"tuples":        n,
		"rules":         len(rules),
		"skipped_rules": len(report.SkippedRules),
	}).Info("Starting validity correction")

	s := &correction{
		corrector: c,
		variables: variables,
		index:     index,
		rules:     rules,
		model:     model,
		rng:       rng,
		report:    &report,
	}
	for i, tuple := range tuples {
		if err := s.fix(i, tuple); err != nil {
			return nil, report, errors.AtStage(err, constants.StageCorrect)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"tuples_corrected": report.TuplesCorrected,
		"resamples":        report.Resamples,
		"fallbacks":        report.Fallbacks,
	}).Info("Validity correction completed")

	return tuples, report, nil
}

// Violations returns every rule violation in tuples.
func (c *Corrector) Violations(variables []*models.Variable, tuples []models.Tuple) []RuleViolation {
	index := make(map[string]int, len(variables))
	for i, v := range variables {
		index[v.Name] = i
	}
	rules := applicable(c.rules, index)

	var out []RuleViolation
	for i, tuple := range tuples {
		record := decode(variables, tuple)
		for _, rule := range rules {
			if !rule.Check(record) {
				out = append(out, RuleViolation{
					RuleName: rule.Name,
					Index:    i,
					Field:    rule.Target,
					Value:    record[rule.Target],
				})
			}
		}
	}
	return out
}

// correction carries the state of one Correct call.
type correction struct {
	corrector *Corrector
	variables []*models.Variable
	index     map[string]int
	rules     []Rule
	model     *copula.Model
	rng       *rand.Rand
	report    *CorrectionReport
}

func (s *correction) fix(i int, tuple models.Tuple) error {
	retries := 0
	corrected := false
	seen := make(map[string]bool)
	// Each fallback settles every rule on its target, so the loop ends after
	// at most one fallback per rule once retries run out.
	limit := s.corrector.config.MaxRetries + len(s.rules) + 1

	for step := 0; ; step++ {
		record := decode(s.variables, tuple)
		rule, violated := firstViolation(s.rules, record)
		if !violated {
			break
		}
		if step >= limit {
			return errors.WrapError(errors.ErrUnsatisfiableRule, errors.ErrorTypeSampling, errors.CodeUnsatisfiableRule,
				"correction did not converge").
				WithDetails(fmt.Sprintf("tuple %d still breaks %s", i, rule.Name))
		}

		if !seen[rule.Name] {
			seen[rule.Name] = true
			s.report.Violations[rule.Name]++
		}
		corrected = true
		k := s.index[rule.Target]

		if retries < s.corrector.config.MaxRetries {
			latent := s.latent(tuple)
			z := s.model.DrawConditional(s.rng, k, latent)
			tuple[k] = s.variables[k].Inverse(distuv.UnitNormal.CDF(z))
			retries++
			s.report.Resamples++
			continue
		}

		code, err := s.fallback(rule, k, tuple)
		if err != nil {
			return err
		}
		tuple[k] = code
		s.report.Fallbacks++

		s.corrector.logger.WithFields(logrus.Fields{
			"tuple": i,
			"rule":  rule.Name,
			"value": s.variables[k].Decode(code),
		}).Debug("Retry budget exhausted, applied fallback value")
	}

	if corrected {
		s.report.TuplesCorrected++
	}
	return nil
}

// latent reconstructs a latent coordinate for every field from the midpoint
// of its code's CDF interval.
func (s *correction) latent(tuple models.Tuple) []float64 {
	z := make([]float64, len(tuple))
	for j, code := range tuple {
		lo, hi := s.variables[j].Interval(code)
		u := mathutil.Clamp((lo+hi)/2, latentEpsilon, 1-latentEpsilon)
		z[j] = distuv.UnitNormal.Quantile(u)
	}
	return z
}

// fallback picks the replacement value for the target of rule: the rule's
// fallback when it is in the domain and satisfies every rule on the target,
// else the first such domain value.
func (s *correction) fallback(rule Rule, k int, tuple models.Tuple) (int, error) {
	variable := s.variables[k]
	candidate := tuple.Clone()

	if code, ok := variable.Encode(rule.Fallback); ok {
		candidate[k] = code
		if s.targetValid(rule.Target, candidate) {
			return code, nil
		}
	}

	for code := 0; code < variable.Size(); code++ {
		candidate[k] = code
		if s.targetValid(rule.Target, candidate) {
			return code, nil
		}
	}

	return 0, errors.WrapError(errors.ErrUnsatisfiableRule, errors.ErrorTypeSampling, errors.CodeUnsatisfiableRule,
		"no value of the target field satisfies the validity rules").
		WithDetails(fmt.Sprintf("rule %s, field %s", rule.Name, rule.Target))
}

func (s *correction) targetValid(target string, tuple models.Tuple) bool {
	record := decode(s.variables, tuple)
	for _, rule := range s.rules {
		if rule.Target == target && !rule.Check(record) {
			return false
		}
	}
	return true
}

func firstViolation(rules []Rule, record map[string]string) (Rule, bool) {
	for _, rule := range rules {
		if !rule.Check(record) {
			return rule, true
		}
	}
	return Rule{}, false
}

func decode(variables []*models.Variable, tuple models.Tuple) map[string]string {
	record := make(map[string]string, len(variables))
	for j, v := range variables {
		record[v.Name] = v.Decode(tuple[j])
	}
	return record
}

func containsRule(rules []Rule, name string) bool {
	for _, r := range rules {
		if r.Name == name {
			return true
		}
	}
	return false
}
