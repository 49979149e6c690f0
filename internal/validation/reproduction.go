package validation

import (
	"strconv"
	"strings"

	"github.com/inferloop/casesynth/pkg/models"
)

// RecordReproduction returns the fraction of synthetic tuples that exactly
// match some original tuple. It is a diagnostic: small categorical domains
// make exact matches common even for independent draws.
func RecordReproduction(original, synthetic []models.Tuple) float64 {
	if len(synthetic) == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(original))
	for _, t := range original {
		seen[tupleKey(t)] = struct{}{}
	}

	matches := 0
	for _, t := range synthetic {
		if _, ok := seen[tupleKey(t)]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(synthetic))
}

func tupleKey(t models.Tuple) string {
	var b strings.Builder
	for i, code := range t {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(code))
	}
	return b.String()
}
