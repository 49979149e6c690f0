package statistical

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/casesynth/pkg/constants"
)

// SparseSegmentRepairer perturbs nearly-empty stretches of a synthetic
// series so that it does not reproduce the original day for day.
type SparseSegmentRepairer struct {
	logger *logrus.Logger
	config *SparseConfig
}

// SparseConfig contains configuration for sparse segment repair
type SparseConfig struct {
	SegmentLength  int     `json:"segment_length" mapstructure:"segment_length"`
	SparseFraction float64 `json:"sparse_fraction" mapstructure:"sparse_fraction"` // max nonzero share for a sparse segment
	MaxShift       int     `json:"max_shift" mapstructure:"max_shift"`
	MaxAttempts    int     `json:"max_attempts" mapstructure:"repair_attempts"`
	DeltaStep      float64 `json:"delta_step" mapstructure:"repair_delta_step"`
}

// RepairResult is the outcome of the repair escalation loop.
type RepairResult struct {
	Signal   []int `json:"signal"`
	Attempts int   `json:"attempts"`
	Modified bool  `json:"modified"`
}

// NewSparseSegmentRepairer creates a repairer. Zero-valued config fields fall
// back to their defaults.
func NewSparseSegmentRepairer(config *SparseConfig, logger *logrus.Logger) *SparseSegmentRepairer {
	if config == nil {
		config = getDefaultSparseConfig()
	}
	defaults := getDefaultSparseConfig()
	if config.SegmentLength <= 0 {
		config.SegmentLength = defaults.SegmentLength
	}
	if config.SparseFraction <= 0 {
		config.SparseFraction = defaults.SparseFraction
	}
	if config.MaxShift <= 0 {
		config.MaxShift = defaults.MaxShift
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.DeltaStep <= 0 {
		config.DeltaStep = defaults.DeltaStep
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &SparseSegmentRepairer{
		logger: logger,
		config: config,
	}
}

// ModifySparseSegments returns a perturbed copy of synthetic. Every nonzero
// entry of a sparse segment is, with probability delta, moved to a free
// neighbouring day and/or nudged by one. The input is not mutated.
func (r *SparseSegmentRepairer) ModifySparseSegments(rng *rand.Rand, synthetic []int, delta float64) []int {
	out := make([]int, len(synthetic))
	copy(out, synthetic)
	if delta <= 0 {
		return out
	}

	segLen := r.config.SegmentLength
	for start := 0; start < len(out); start += segLen {
		end := start + segLen
		if end > len(out) {
			end = len(out)
		}

		var positions []int
		for i := start; i < end; i++ {
			if synthetic[i] != 0 {
				positions = append(positions, i)
			}
		}
		if len(positions) == 0 {
			continue
		}
		if float64(len(positions))/float64(end-start) > r.config.SparseFraction {
			continue
		}

		for _, pos := range positions {
			if rng.Float64() >= delta {
				continue
			}
			r.perturb(rng, out, pos, start, end)
		}
	}

	return out
}

func (r *SparseSegmentRepairer) perturb(rng *rand.Rand, out []int, pos, start, end int) {
	lo := pos - r.config.MaxShift
	if lo < start {
		lo = start
	}
	hi := pos + r.config.MaxShift
	if hi > end-1 {
		hi = end - 1
	}

	var free []int
	for j := lo; j <= hi; j++ {
		if j != pos && out[j] == 0 {
			free = append(free, j)
		}
	}

	shifted := false
	if len(free) > 0 {
		dst := free[rng.Intn(len(free))]
		out[dst] = out[pos]
		out[pos] = 0
		pos = dst
		shifted = true
	}

	if !shifted || rng.Float64() < 0.5 {
		if rng.Intn(2) == 0 || out[pos] <= 1 {
			out[pos]++
		} else {
			out[pos]--
		}
	}
}

// Repair runs the escalation loop: attempt k uses delta = k*DeltaStep and
// the first result that differs from original is accepted. If every attempt
// reproduces original, the unmodified synthetic series is returned.
func (r *SparseSegmentRepairer) Repair(rng *rand.Rand, synthetic, original []int) RepairResult {
	attempts := 0
	for attempts < r.config.MaxAttempts {
		delta := float64(attempts) * r.config.DeltaStep
		candidate := r.ModifySparseSegments(rng, synthetic, delta)
		attempts++

		if differs(candidate, original) {
			r.logger.WithFields(logrus.Fields{
				"attempts": attempts,
				"delta":    delta,
			}).Info("Sparse segment repair accepted")
			return RepairResult{Signal: candidate, Attempts: attempts, Modified: !equalInts(candidate, synthetic)}
		}

		r.logger.WithFields(logrus.Fields{
			"attempt": attempts,
			"delta":   delta,
		}).Debug("Synthetic series identical to original, escalating")
	}

	r.logger.WithField("attempts", attempts).Warn("Sparse segment repair exhausted, keeping synthetic series")

	out := make([]int, len(synthetic))
	copy(out, synthetic)
	return RepairResult{Signal: out, Attempts: attempts, Modified: false}
}

func differs(a, b []int) bool {
	return !equalInts(a, b)
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func getDefaultSparseConfig() *SparseConfig {
	return &SparseConfig{
		SegmentLength:  constants.DefaultSegmentLength,
		SparseFraction: constants.DefaultSparseFraction,
		MaxShift:       constants.DefaultMaxShift,
		MaxAttempts:    constants.DefaultRepairAttempts,
		DeltaStep:      constants.DefaultRepairDeltaStep,
	}
}
