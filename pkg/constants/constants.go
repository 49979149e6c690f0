package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "casesynth"
	AppDescription = "Privacy-preserving surrogate case-report synthesis"
	AppVersion     = "0.6.0"

	// Configuration
	DefaultConfigName = ".casesynth"
	EnvPrefix         = "CASESYNTH"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
	DefaultOutputDir  = "synthetic_results"

	// Output formats
	ExtCSV  = ".csv"
	ExtJSON = ".json"

	// Signal processing defaults. A zero phase-noise fraction avoids spurious
	// counts in long zero-count spans.
	DefaultPhaseNoiseFraction = 0.0
	DefaultRepairAttempts     = 7
	DefaultRepairDeltaStep    = 0.1
	DefaultSegmentLength      = 28
	DefaultSparseFraction     = 0.25
	DefaultMaxShift           = 2

	// Pseudoperson defaults
	DefaultCorrectionRetries = 16

	// Validation defaults
	ConvergenceMinExponent = 5
	ConvergenceMaxExponent = 18

	// Cache defaults
	DefaultCacheTTL       = 24 * time.Hour
	DefaultCacheKeyPrefix = "casesynth"
)

// Date handling
const (
	DateLayout = "2006-01-02"

	// MaxRepresentableDate is the largest date the output schema can carry.
	MaxRepresentableDate = "9999-12-31"
)

// MaxDate returns MaxRepresentableDate as a UTC time.
func MaxDate() time.Time {
	return time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// Pipeline stage names used in logs, metrics and error messages.
const (
	StageResolveTarget = "resolve_target"
	StageLoad          = "load"
	StageSynthesize    = "synthesize"
	StageRepair        = "repair"
	StageSample        = "sample"
	StageCorrect       = "correct"
	StageDerive        = "derive_dates"
	StageExport        = "export"
	StageUpload        = "upload"
)

// Case record fields referenced outside the schema package.
const (
	FieldAge      = "age"
	FieldSex      = "sex"
	FieldPregnant = "pregnant"
	FieldCount    = "count"

	// UnknownAge is the age code for an unknown age.
	UnknownAge = "999"
)
