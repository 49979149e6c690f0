package workflows

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/casesynth/internal/hl7"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
)

// AllJurisdictions selects every jurisdiction with a data directory.
const AllJurisdictions = "all"

// BatchRequest describes a run over every code file of one or more
// jurisdictions. Each target is run with the same seed.
type BatchRequest struct {
	DataDir       string
	Jurisdictions []hl7.Jurisdiction
	Grouper       *hl7.CodeGrouper
	SyphilisTotal bool
	Format        string
	NumSamples    int
	Seed          int64
	Upload        bool
	Validate      bool
}

// BatchTarget is one (jurisdiction, code group) run of a batch.
type BatchTarget struct {
	Jurisdiction hl7.Jurisdiction `json:"jurisdiction"`
	Codes        []int            `json:"codes"`
	Outfile      string           `json:"outfile"`
	Result       *RunResult       `json:"-"`
	Err          error            `json:"-"`
	Skipped      bool             `json:"skipped"`
}

// BatchResult summarizes a batch. Failed targets keep their error; targets
// without usable data are marked Skipped.
type BatchResult struct {
	Targets   []*BatchTarget
	Succeeded int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// BatchJurisdictions resolves a jurisdiction argument for a batch. "all"
// selects every known jurisdiction that has a directory under dataDir.
func BatchJurisdictions(dataDir, arg string) ([]hl7.Jurisdiction, error) {
	if !strings.EqualFold(strings.TrimSpace(arg), AllJurisdictions) {
		j, err := hl7.ResolveJurisdiction(arg)
		if err != nil {
			return nil, err
		}
		return []hl7.Jurisdiction{j}, nil
	}

	var out []hl7.Jurisdiction
	for _, name := range hl7.JurisdictionNames() {
		if _, err := hl7.CodeFiles(dataDir, name); err != nil {
			continue
		}
		j, err := hl7.ResolveJurisdiction(name)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, nil
}

// RunBatch runs the pipeline once per code group found in each requested
// jurisdiction. A failing target is logged and recorded and the batch goes
// on; only a cancelled context stops it early.
func (e *Engine) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	format := strings.ToLower(req.Format)
	if format == "" {
		format = constants.ExtCSV
	}
	if !strings.HasPrefix(format, ".") {
		format = "." + format
	}
	if format != constants.ExtCSV && format != constants.ExtJSON {
		return nil, errors.NewConfigurationError(errors.CodeUnsupportedExtension, "unsupported batch output format").
			WithDetails(req.Format)
	}
	grouper := req.Grouper
	if grouper == nil {
		grouper = hl7.NewCodeGrouper(nil, false)
	}

	start := time.Now()
	result := &BatchResult{}

	for _, j := range req.Jurisdictions {
		log := e.logger.WithField("jurisdiction", j.Name)
		files, err := hl7.CodeFiles(req.DataDir, j.Name)
		if err != nil {
			log.WithError(err).Warn("Jurisdiction directory not readable, skipped")
			continue
		}

		for _, target := range batchTargets(j, files, grouper, req.SyphilisTotal) {
			if err := ctx.Err(); err != nil {
				result.Duration = time.Since(start)
				return result, err
			}
			result.Targets = append(result.Targets, target)

			name := hl7.DefaultOutputName(j.Abbreviation, target.presentCodes(files), hl7.IsSyphilisTotal(target.Codes))
			path, err := e.exporter.ResolveOutputPath("", name)
			if err != nil {
				target.Err = err
				result.Failed++
				continue
			}
			target.Outfile = strings.TrimSuffix(path, constants.ExtCSV) + format

			target.Result, target.Err = e.Run(ctx, RunRequest{
				DataDir:      req.DataDir,
				Jurisdiction: j,
				Codes:        target.Codes,
				Outfile:      target.Outfile,
				NumSamples:   req.NumSamples,
				Seed:         req.Seed,
				Upload:       req.Upload,
				Validate:     req.Validate,
			})

			fields := logrus.Fields{"codes": target.Codes, "outfile": target.Outfile}
			switch {
			case target.Err == nil:
				result.Succeeded++
			case errors.IsType(target.Err, errors.ErrorTypeDataAbsent):
				target.Skipped = true
				result.Skipped++
				log.WithFields(fields).WithError(target.Err).Warn("No usable data, target skipped")
			default:
				result.Failed++
				log.WithFields(fields).WithError(target.Err).Error("Batch target failed")
			}
		}
	}

	result.Duration = time.Since(start)
	e.logger.WithFields(logrus.Fields{
		"targets":   len(result.Targets),
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"skipped":   result.Skipped,
		"duration":  result.Duration,
	}).Info("Batch completed")

	return result, nil
}

// batchTargets groups the code files of one jurisdiction. Codes that fall in
// a group already scheduled are not run again.
func batchTargets(j hl7.Jurisdiction, files []int, grouper *hl7.CodeGrouper, syphilisTotal bool) []*BatchTarget {
	seen := make(map[int]bool, len(files))
	var targets []*BatchTarget
	for _, code := range files {
		if seen[code] {
			continue
		}
		group := grouper.Group(code, syphilisTotal)
		for _, c := range group {
			seen[c] = true
		}
		targets = append(targets, &BatchTarget{Jurisdiction: j, Codes: group})
	}
	return targets
}

// presentCodes returns the target's codes that have a file.
func (t *BatchTarget) presentCodes(files []int) []int {
	have := make(map[int]bool, len(files))
	for _, c := range files {
		have[c] = true
	}
	var out []int
	for _, c := range t.Codes {
		if have[c] {
			out = append(out, c)
		}
	}
	return out
}
