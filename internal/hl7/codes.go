package hl7

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/inferloop/casesynth/pkg/constants"
)

// Condition codes that are reported in groups.
var (
	syphilisPrimarySecondary = []int{10310, 10311, 10312}
	syphilisTotal            = []int{10310, 10311, 10312, 10313, 10314, 10316, 10319, 10320}

	// Viral hemorrhagic fevers: Crimean-Congo, Ebola, Lassa, Lujo, Marburg and
	// the New World arenaviruses.
	hemorrhagicFevers = []int{11630, 11631, 11632, 11637, 11638, 11639, 11640, 11642, 11643, 11644}
)

// CodeGrouper expands a condition code into the group of codes whose data
// is pooled with it.
type CodeGrouper struct {
	groups   map[string][]int
	disabled bool
}

// NewCodeGrouper returns a grouper with the built-in groups plus any extra
// named groups.
func NewCodeGrouper(extra map[string][]int, disabled bool) *CodeGrouper {
	groups := map[string][]int{
		"hemorrhagic_fever": hemorrhagicFevers,
		"syphilis_ps":       syphilisPrimarySecondary,
	}
	for name, codes := range extra {
		groups[name] = append([]int(nil), codes...)
	}
	return &CodeGrouper{groups: groups, disabled: disabled}
}

// Group returns the sorted code group containing code. With syphilisTotal
// set, a primary or secondary syphilis code selects every syphilis code.
func (g *CodeGrouper) Group(code int, syphilisTotalFlag bool) []int {
	if g.disabled {
		return []int{code}
	}
	if syphilisTotalFlag && contains(syphilisPrimarySecondary, code) {
		return append([]int(nil), syphilisTotal...)
	}

	names := make([]string, 0, len(g.groups))
	for name := range g.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if contains(g.groups[name], code) {
			out := append([]int(nil), g.groups[name]...)
			sort.Ints(out)
			return out
		}
	}
	return []int{code}
}

// IsSyphilisTotal reports whether codes is the full syphilis group.
func IsSyphilisTotal(codes []int) bool {
	if len(codes) != len(syphilisTotal) {
		return false
	}
	for i := range codes {
		if codes[i] != syphilisTotal[i] {
			return false
		}
	}
	return true
}

// DefaultOutputName names the output file for a jurisdiction and the codes
// that had input data. total selects the pooled syphilis name.
func DefaultOutputName(abbrev string, codes []int, total bool) string {
	if total {
		return fmt.Sprintf("synthetic_syphilis_total_%s.csv", abbrev)
	}
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return fmt.Sprintf("synthetic_%s_%s.csv", strings.Join(parts, "_"), abbrev)
}

// CodeFiles returns the sorted condition codes that have a <code>.csv file
// in the jurisdiction's directory under dataDir. Other entries are ignored.
func CodeFiles(dataDir, jurisdiction string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(dataDir, jurisdiction))
	if err != nil {
		return nil, err
	}

	var codes []int
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.EqualFold(filepath.Ext(name), constants.ExtCSV) {
			continue
		}
		code, err := ParseCode(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			continue
		}
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes, nil
}

// ParseCode parses a five-digit condition code.
func ParseCode(s string) (int, error) {
	s = strings.TrimSpace(s)
	code, err := strconv.Atoi(s)
	if err != nil || len(s) != 5 || code <= 0 {
		return 0, fmt.Errorf("condition code %q is not a five-digit integer", s)
	}
	return code, nil
}

func contains(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
