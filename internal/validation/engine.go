package validation

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

type ValidationEngineConfig struct {
	ConcurrentValidation bool          `json:"concurrent_validation"`
	Timeout              time.Duration `json:"timeout"`
}

type ValidationEngine struct {
	config *ValidationEngineConfig
	logger *logrus.Logger
}

// ValidationSummary collects the post-generation diagnostics of a run. Signal
// is nil when the synthetic series is not available, as when validating a
// previously written file.
type ValidationSummary struct {
	SampleCount   int                `json:"sample_count"`
	Convergence   []ConvergencePoint `json:"convergence"`
	Reproduction  float64            `json:"reproduction"`
	Signal        *SignalReport      `json:"signal,omitempty"`
	Marginals     map[string]float64 `json:"marginals"`
	ExecutionTime time.Duration      `json:"execution_time"`
}

func NewValidationEngine(config *ValidationEngineConfig, logger *logrus.Logger) *ValidationEngine {
	if config == nil {
		config = getDefaultValidationEngineConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &ValidationEngine{
		config: config,
		logger: logger,
	}
}

// Validate compares synthetic tuples (and, when given, the synthetic signal)
// against the model they were drawn from.
func (e *ValidationEngine) Validate(ctx context.Context, model *models.ModelData, tuples []models.Tuple, signal []int) (*ValidationSummary, error) {
	if model == nil {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "model cannot be nil")
	}

	e.logger.WithFields(logrus.Fields{
		"jurisdiction": model.Jurisdiction,
		"tuples":       len(tuples),
	}).Info("Starting synthetic data validation")

	start := time.Now()
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	summary := &ValidationSummary{SampleCount: len(tuples)}
	checks := []func() error{
		func() error {
			points, err := ConvergenceReport(tuples, model.Variables, model.Tau)
			summary.Convergence = points
			return err
		},
		func() error {
			summary.Reproduction = RecordReproduction(model.Records, tuples)
			return nil
		},
		func() error {
			summary.Marginals = MarginalDistances(tuples, model.Variables)
			return nil
		},
		func() error {
			if signal == nil {
				return nil
			}
			report, err := SignalSimilarity(model.Signal, signal)
			summary.Signal = report
			return err
		},
	}

	var err error
	if e.config.ConcurrentValidation {
		err = runConcurrently(ctx, checks)
	} else {
		err = runSequentially(ctx, checks)
	}
	if ctx.Err() != nil {
		return nil, errors.WrapError(ctx.Err(), errors.ErrorTypeValidation, errors.CodeInvalidInput, "validation cancelled")
	}
	if err != nil {
		return nil, err
	}

	summary.ExecutionTime = time.Since(start)

	fields := logrus.Fields{
		"reproduction":   summary.Reproduction,
		"execution_time": summary.ExecutionTime,
	}
	if k := len(summary.Convergence); k > 0 {
		fields["frobenius"] = summary.Convergence[k-1].Frobenius
	}
	e.logger.WithFields(fields).Info("Synthetic data validation completed")

	return summary, nil
}

// runConcurrently runs every check in its own goroutine. It returns as soon
// as ctx is done; checks still running are abandoned and their results are
// not read.
func runConcurrently(ctx context.Context, checks []func() error) error {
	errs := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check func() error) {
			defer wg.Done()
			errs[i] = check()
		}(i, check)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func runSequentially(ctx context.Context, checks []func() error) error {
	for _, check := range checks {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func getDefaultValidationEngineConfig() *ValidationEngineConfig {
	return &ValidationEngineConfig{
		ConcurrentValidation: true,
		Timeout:              5 * time.Minute,
	}
}
