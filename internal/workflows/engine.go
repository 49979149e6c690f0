package workflows

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/casesynth/internal/copula"
	"github.com/inferloop/casesynth/internal/export"
	"github.com/inferloop/casesynth/internal/generators/statistical"
	"github.com/inferloop/casesynth/internal/hl7"
	"github.com/inferloop/casesynth/internal/observability/metrics"
	"github.com/inferloop/casesynth/internal/pseudoperson"
	mathutil "github.com/inferloop/casesynth/internal/utils/math"
	"github.com/inferloop/casesynth/internal/validation"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/interfaces"
	"github.com/inferloop/casesynth/pkg/models"
)

// Engine runs the synthesis pipeline for one jurisdiction and code group.
type Engine struct {
	logger   *logrus.Logger
	config   *EngineConfig
	cache    interfaces.ModelCache
	uploader interfaces.ObjectUploader

	synthesizer *statistical.FourierSynthesizer
	repairer    *statistical.SparseSegmentRepairer
	sampler     *copula.Sampler
	corrector   *pseudoperson.Corrector
	exporter    *export.ExportEngine
	validator   *validation.ValidationEngine
}

// EngineConfig configures the pipeline stages
type EngineConfig struct {
	OutputDirectory    string        `json:"output_directory"`
	PrettyJSON         bool          `json:"pretty_json"`
	PhaseNoiseFraction float64       `json:"phase_noise_fraction"`
	RepairAttempts     int           `json:"repair_attempts"`
	RepairDeltaStep    float64       `json:"repair_delta_step"`
	CorrectionRetries  int           `json:"correction_retries"`
	CacheTTL           time.Duration `json:"cache_ttl"`
	CacheKeyPrefix     string        `json:"cache_key_prefix"`
}

// RunRequest describes one synthesis run. NumSamples of zero draws as many
// tuples as the synthetic series has cases.
type RunRequest struct {
	DataDir      string
	Jurisdiction hl7.Jurisdiction
	Codes        []int
	Outfile      string
	NumSamples   int
	Seed         int64
	Upload       bool
	Validate     bool
}

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// RunResult is the outcome of a completed run. Diagnostic carries a soft
// failure, such as date truncation, that did not stop the run.
type RunResult struct {
	RunID          string
	Model          *models.ModelData
	Output         *models.SynthesisOutput
	Export         *export.ExportResult
	UploadLocation string
	Repair         statistical.RepairResult
	Correction     pseudoperson.CorrectionReport
	AchievedTau    models.CorrelationMatrix
	Diagnostic     error
	Validation     *validation.ValidationSummary
	Stages         []StageResult
	Metrics        *metrics.RunMetrics
	Duration       time.Duration
}

// NewEngine creates the pipeline. cache and uploader may be nil.
func NewEngine(config *EngineConfig, cache interfaces.ModelCache, uploader interfaces.ObjectUploader, logger *logrus.Logger) (*Engine, error) {
	if config == nil {
		config = getDefaultEngineConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	exporter, err := export.NewExportEngine(&export.ExportConfig{
		OutputDirectory: config.OutputDirectory,
		Header:          hl7.Header,
		PrettyJSON:      config.PrettyJSON,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create export engine: %w", err)
	}

	return &Engine{
		logger:      logger,
		config:      config,
		cache:       cache,
		uploader:    uploader,
		synthesizer: statistical.NewFourierSynthesizer(&statistical.FourierConfig{PhaseNoiseFraction: config.PhaseNoiseFraction}, logger),
		repairer: statistical.NewSparseSegmentRepairer(&statistical.SparseConfig{
			MaxAttempts: config.RepairAttempts,
			DeltaStep:   config.RepairDeltaStep,
		}, logger),
		sampler:   copula.NewSampler(logger),
		corrector: pseudoperson.NewCorrector(&pseudoperson.CorrectorConfig{MaxRetries: config.CorrectionRetries}, nil, logger),
		exporter:  exporter,
		validator: validation.NewValidationEngine(nil, logger),
	}, nil
}

// Exporter returns the engine's export engine
func (e *Engine) Exporter() *export.ExportEngine {
	return e.exporter
}

// Run executes load, synthesize, repair, sample, correct, derive, export and
// the optional upload in order. All random draws come from one generator
// seeded from req.Seed.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if req.NumSamples < 0 {
		return nil, errors.NewConfigurationError(errors.CodeInvalidSampleCount, "sample count must be a positive integer").
			WithContext("num_samples", req.NumSamples)
	}

	runMetrics, err := metrics.NewRunMetrics(nil, e.logger)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "failed to create run metrics")
	}

	runID := uuid.New().String()
	run := &pipelineRun{
		engine: e,
		log: e.logger.WithFields(logrus.Fields{
			"run_id":       runID,
			"jurisdiction": req.Jurisdiction.Name,
		}),
		rng: rand.New(rand.NewSource(req.Seed)),
		result: &RunResult{
			RunID:   runID,
			Metrics: runMetrics,
		},
	}

	start := time.Now()
	run.log.WithFields(logrus.Fields{
		"codes": req.Codes,
		"seed":  req.Seed,
	}).Info("Starting synthesis run")

	if err := run.execute(ctx, req); err != nil {
		run.log.WithError(err).WithField("stage", errors.StageOf(err)).Error("Synthesis run failed")
		return run.result, err
	}

	run.result.Duration = time.Since(start)
	run.log.WithFields(logrus.Fields{
		"samples":  run.result.Output.SampleCount,
		"records":  len(run.result.Output.DateTuples),
		"output":   run.result.Export.Path,
		"duration": run.result.Duration,
	}).Info("Synthesis run completed")

	return run.result, nil
}

// pipelineRun carries the state of a single Run.
type pipelineRun struct {
	engine *Engine
	log    *logrus.Entry
	rng    *rand.Rand
	result *RunResult
}

func (r *pipelineRun) execute(ctx context.Context, req RunRequest) error {
	e := r.engine
	var data *models.ModelData
	err := r.stage(ctx, constants.StageLoad, func() error {
		loader := hl7.NewLoader(&hl7.LoaderConfig{
			CacheTTL:       e.config.CacheTTL,
			CacheKeyPrefix: e.config.CacheKeyPrefix,
		}, r.instrumentedCache(), e.logger)
		var err error
		data, err = loader.Load(ctx, interfaces.LoadRequest{
			DataDir:      req.DataDir,
			Jurisdiction: req.Jurisdiction.Name,
			Codes:        req.Codes,
		})
		return err
	})
	if err != nil {
		return err
	}
	r.result.Model = data

	var synthetic []int
	err = r.stage(ctx, constants.StageSynthesize, func() error {
		var err error
		synthetic, err = e.synthesizer.Synthesize(r.rng, data.Signal, e.synthesizer.PhaseNoiseFraction())
		return err
	})
	if err != nil {
		return err
	}

	err = r.stage(ctx, constants.StageRepair, func() error {
		r.result.Repair = e.repairer.Repair(r.rng, synthetic, data.Signal)
		r.result.Metrics.SetRepairAttempts(r.result.Repair.Attempts)
		synthetic = r.result.Repair.Signal
		return nil
	})
	if err != nil {
		return err
	}

	n := req.NumSamples
	if n == 0 {
		n = mathutil.SumInts(synthetic)
	}

	output := &models.SynthesisOutput{
		RunID:           r.result.RunID,
		SampleCount:     n,
		SyntheticSignal: synthetic,
		Days:            data.Days,
		Variables:       data.Variables,
		MaxOriginalDate: data.MaxOriginalDate,
		DateFields:      hl7.DateFields,
	}
	r.result.Output = output

	if n == 0 {
		r.log.Warn("Synthetic series has no cases, writing an empty dataset")
	} else if err := r.generate(ctx, data, output); err != nil {
		return err
	}

	err = r.stage(ctx, constants.StageExport, func() error {
		name := hl7.DefaultOutputName(req.Jurisdiction.Abbreviation, data.Codes, hl7.IsSyphilisTotal(req.Codes))
		path, err := e.exporter.ResolveOutputPath(req.Outfile, name)
		if err != nil {
			return err
		}
		r.result.Export, err = e.exporter.ExportToFile(ctx, path, output)
		return err
	})
	if err != nil {
		return err
	}

	if req.Upload {
		if e.uploader == nil {
			r.log.Warn("Upload requested but no bucket is configured")
		} else {
			err = r.stage(ctx, constants.StageUpload, func() error {
				var err error
				r.result.UploadLocation, err = e.uploader.Upload(ctx, r.result.Export.Path)
				return err
			})
			if err != nil {
				return err
			}
		}
	}

	if req.Validate && len(output.Tuples) > 0 {
		summary, err := e.validator.Validate(ctx, data, output.Tuples, synthetic)
		if err != nil {
			r.log.WithError(err).Warn("Validation of synthetic output failed")
		} else {
			r.result.Validation = summary
		}
	}

	return nil
}

// generate samples, corrects and dates n tuples into output.
func (r *pipelineRun) generate(ctx context.Context, data *models.ModelData, output *models.SynthesisOutput) error {
	e := r.engine
	n := output.SampleCount

	var tuples []models.Tuple
	err := r.stage(ctx, constants.StageSample, func() error {
		sampled, err := e.sampler.Sample(n, data.Variables, data.Tau, r.rng)
		if err != nil {
			return err
		}
		tuples = sampled.Tuples
		r.result.AchievedTau = sampled.AchievedTau
		r.result.Metrics.AddSamples(n)
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(ctx, constants.StageCorrect, func() error {
		corrected, report, err := e.corrector.Correct(n, data.Variables, tuples, data.Tau, r.rng)
		if err != nil {
			return err
		}
		tuples = corrected
		r.result.Correction = report
		r.result.Metrics.AddTuplesCorrected(report.TuplesCorrected)
		r.result.Metrics.AddRuleViolations(report.Violations)
		return nil
	})
	if err != nil {
		return err
	}
	output.Tuples = tuples

	return r.stage(ctx, constants.StageDerive, func() error {
		deriver := pseudoperson.NewDateDeriver(data.DateModel, e.logger)
		derived, err := deriver.Derive(n, output.SyntheticSignal, data.Days, data.Variables, tuples, data.MaxOriginalDate, r.rng)
		if err != nil {
			return err
		}
		output.DateFields = derived.Fields
		output.DateTuples = derived.DateTuples
		output.Truncated = derived.Truncated
		if derived.Truncated {
			r.result.Diagnostic = derived.Diagnostic
			r.result.Metrics.IncTruncations()
		}
		return nil
	})
}

// stage runs fn as the named pipeline stage, timing it into the run metrics
// and tagging any error with the stage name.
func (r *pipelineRun) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return errors.AtStage(err, name)
	}

	start := time.Now()
	err := errors.AtStage(fn(), name)
	duration := time.Since(start)

	r.result.Metrics.ObserveStage(name, duration, err)
	sr := StageResult{Name: name, Duration: duration}
	if err != nil {
		sr.Error = err.Error()
	}
	r.result.Stages = append(r.result.Stages, sr)

	r.log.WithFields(logrus.Fields{
		"stage":    name,
		"duration": duration,
	}).Debug("Stage finished")
	return err
}

// instrumentedCache returns the engine cache wrapped to count lookups, or
// nil when caching is off.
func (r *pipelineRun) instrumentedCache() interfaces.ModelCache {
	if r.engine.cache == nil {
		return nil
	}
	return &meteredCache{ModelCache: r.engine.cache, metrics: r.result.Metrics}
}

type meteredCache struct {
	interfaces.ModelCache
	metrics *metrics.RunMetrics
}

func (c *meteredCache) Get(ctx context.Context, key string) (*models.ModelData, error) {
	data, err := c.ModelCache.Get(ctx, key)
	switch {
	case err != nil:
		c.metrics.RecordCacheLookup("error")
	case data == nil:
		c.metrics.RecordCacheLookup("miss")
	default:
		c.metrics.RecordCacheLookup("hit")
	}
	return data, err
}

func getDefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		OutputDirectory:    constants.DefaultOutputDir,
		PhaseNoiseFraction: constants.DefaultPhaseNoiseFraction,
		RepairAttempts:     constants.DefaultRepairAttempts,
		RepairDeltaStep:    constants.DefaultRepairDeltaStep,
		CorrectionRetries:  constants.DefaultCorrectionRetries,
		CacheTTL:           constants.DefaultCacheTTL,
		CacheKeyPrefix:     constants.DefaultCacheKeyPrefix,
	}
}
