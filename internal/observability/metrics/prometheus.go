package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// RunMetrics holds the Prometheus collectors for one synthesis run. Each run
// gets its own registry so repeated runs in one process do not collide.
type RunMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	config   *PrometheusConfig

	stageDuration   *prometheus.HistogramVec
	stageFailures   *prometheus.CounterVec
	repairAttempts  prometheus.Gauge
	samplesTotal    prometheus.Counter
	tuplesCorrected prometheus.Counter
	ruleViolations  *prometheus.CounterVec
	truncations     prometheus.Counter
	cacheLookups    *prometheus.CounterVec
}

// PrometheusConfig configures collector naming
type PrometheusConfig struct {
	Namespace string            `json:"namespace"`
	Subsystem string            `json:"subsystem"`
	Labels    map[string]string `json:"labels"`
}

// NewRunMetrics creates and registers the run collectors.
func NewRunMetrics(config *PrometheusConfig, logger *logrus.Logger) (*RunMetrics, error) {
	if config == nil {
		config = getDefaultPrometheusConfig()
	}

	if logger == nil {
		logger = logrus.New()
	}

	rm := &RunMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	rm.initializeMetrics()

	if err := rm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return rm, nil
}

// Registry returns the registry holding the run collectors
func (rm *RunMetrics) Registry() *prometheus.Registry {
	return rm.registry
}

// ObserveStage records how long a pipeline stage took and whether it failed.
func (rm *RunMetrics) ObserveStage(stage string, duration time.Duration, err error) {
	rm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		rm.stageFailures.WithLabelValues(stage).Inc()
	}
}

func (rm *RunMetrics) SetRepairAttempts(attempts int) {
	rm.repairAttempts.Set(float64(attempts))
}

func (rm *RunMetrics) AddSamples(n int) {
	rm.samplesTotal.Add(float64(n))
}

func (rm *RunMetrics) AddTuplesCorrected(n int) {
	rm.tuplesCorrected.Add(float64(n))
}

// AddRuleViolations records violations found per rule name.
func (rm *RunMetrics) AddRuleViolations(byRule map[string]int) {
	for rule, n := range byRule {
		rm.ruleViolations.WithLabelValues(rule).Add(float64(n))
	}
}

func (rm *RunMetrics) IncTruncations() {
	rm.truncations.Inc()
}

// RecordCacheLookup counts a cache lookup with result hit, miss or error.
func (rm *RunMetrics) RecordCacheLookup(result string) {
	rm.cacheLookups.WithLabelValues(result).Inc()
}

// WriteToTextfile writes the registry in text exposition format.
func (rm *RunMetrics) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, rm.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	rm.logger.WithField("path", path).Debug("Wrote run metrics")
	return nil
}

func (rm *RunMetrics) initializeMetrics() {
	namespace := rm.config.Namespace
	subsystem := rm.config.Subsystem
	labels := prometheus.Labels(rm.config.Labels)

	rm.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "stage_duration_seconds",
			Help:        "Pipeline stage duration in seconds",
			Buckets:     []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
			ConstLabels: labels,
		},
		[]string{"stage"},
	)

	rm.stageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "stage_failures_total",
			Help:        "Total number of failed pipeline stages",
			ConstLabels: labels,
		},
		[]string{"stage"},
	)

	rm.repairAttempts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "repair_attempts",
			Help:        "Sparse segment repair attempts used by the last run",
			ConstLabels: labels,
		},
	)

	rm.samplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "samples_generated_total",
			Help:        "Total number of categorical tuples sampled",
			ConstLabels: labels,
		},
	)

	rm.tuplesCorrected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "tuples_corrected_total",
			Help:        "Total number of tuples changed by rule correction",
			ConstLabels: labels,
		},
	)

	rm.ruleViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "rule_violations_total",
			Help:        "Total number of validity rule violations found before correction",
			ConstLabels: labels,
		},
		[]string{"rule"},
	)

	rm.truncations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "date_truncations_total",
			Help:        "Total number of runs whose date derivation hit the date ceiling",
			ConstLabels: labels,
		},
	)

	rm.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "model_cache_lookups_total",
			Help:        "Total number of model cache lookups by result",
			ConstLabels: labels,
		},
		[]string{"result"},
	)
}

func (rm *RunMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		rm.stageDuration,
		rm.stageFailures,
		rm.repairAttempts,
		rm.samplesTotal,
		rm.tuplesCorrected,
		rm.ruleViolations,
		rm.truncations,
		rm.cacheLookups,
	}

	for _, collector := range collectors {
		if err := rm.registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

func getDefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Namespace: "casesynth",
		Subsystem: "run",
	}
}
