package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/casesynth/internal/storage"
	"github.com/inferloop/casesynth/internal/workflows"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/interfaces"
)

type GenerateOptions struct {
	TargetOptions
	OutFile     string
	NumSamples  int
	Seed        int64
	Upload      bool
	Validate    bool
	MetricsFile string
}

func NewGenerateCmd() *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic case-report dataset",
		Long: `Generate surrogate case reports for one jurisdiction and condition code.
The daily case counts are resynthesized in the frequency domain and the
categorical attributes are drawn from a Gaussian copula fitted to the source
records, then corrected for impossible combinations and dated.`,
		Example: `  # Primary and secondary syphilis in California
  casesynth generate --data-dir ./hl7 --jurisdiction California --code 10311

  # Fixed seed, 500 records, JSON output
  casesynth generate -d ./hl7 -j IA -c 11065 --rng-seed 42 -n 500 -o iowa.json

  # Upload the result and keep run metrics
  casesynth generate -d ./hl7 -j TX -c 10311 --syphilis-total --upload --metrics-file run.prom`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("num-samples") && opts.NumSamples <= 0 {
				return errors.NewConfigurationError(errors.CodeInvalidSampleCount, "--num-samples must be a positive integer").
					WithContext("num_samples", opts.NumSamples)
			}
			if !cmd.Flags().Changed("rng-seed") {
				opts.Seed = time.Now().UnixNano()
			}
			return runGenerate(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	addTargetFlags(cmd, &opts.TargetOptions)
	cmd.Flags().StringVarP(&opts.OutFile, "outfile", "o", "", "Output file (.csv or .json; default <output_dir>/synthetic_<codes>_<abbrev>.csv)")
	cmd.Flags().IntVarP(&opts.NumSamples, "num-samples", "n", 0, "Number of records to generate (default: synthetic case total)")
	cmd.Flags().Int64Var(&opts.Seed, "rng-seed", 0, "Random seed (default: clock)")
	cmd.Flags().BoolVar(&opts.Upload, "upload", false, "Upload the output to the configured S3 bucket")
	cmd.Flags().BoolVar(&opts.Validate, "validate", false, "Report convergence and reproduction diagnostics after generation")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")

	return cmd
}

func runGenerate(ctx context.Context, out io.Writer, opts *GenerateOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, err := loadConfig(&opts.TargetOptions)
	if err != nil {
		return err
	}
	tgt, err := resolveTarget(&opts.TargetOptions, cfg)
	if err != nil {
		return err
	}

	factory := storage.NewFactory(logger)
	cache, err := factory.CreateModelCache(ctx, &cfg.Cache)
	if err != nil {
		logger.WithError(err).Warn("Model cache unavailable, continuing without it")
		cache = nil
	}
	if cache != nil {
		defer cache.Close()
	}

	var uploader interfaces.ObjectUploader
	if opts.Upload {
		uploader, err = factory.CreateUploader(&cfg.S3)
		if err != nil {
			return err
		}
	}

	engine, err := workflows.NewEngine(cfg.EngineConfig(), cache, uploader, logger)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx, workflows.RunRequest{
		DataDir:      tgt.dataDir,
		Jurisdiction: tgt.jurisdiction,
		Codes:        tgt.codes,
		Outfile:      opts.OutFile,
		NumSamples:   opts.NumSamples,
		Seed:         opts.Seed,
		Upload:       opts.Upload,
		Validate:     opts.Validate,
	})

	if opts.MetricsFile != "" && result != nil && result.Metrics != nil {
		if werr := result.Metrics.WriteToTextfile(opts.MetricsFile); werr != nil {
			logger.WithError(werr).Warn("Failed to write metrics file")
		}
	}

	if errors.IsType(err, errors.ErrorTypeDataAbsent) {
		fmt.Fprintf(out, "No case data for %s codes %v: %v\n", tgt.jurisdiction.Name, tgt.codes, err)
		return nil
	}
	if err != nil {
		return err
	}

	printRunSummary(out, result, opts.Seed)
	logger.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"output": result.Export.Path,
	}).Debug("Generate command finished")
	return nil
}

func printRunSummary(out io.Writer, result *workflows.RunResult, seed int64) {
	output := result.Output
	fmt.Fprintf(out, "Run ID:           %s\n", result.RunID)
	fmt.Fprintf(out, "Seed:             %d\n", seed)
	fmt.Fprintf(out, "Days:             %d\n", len(output.Days))
	fmt.Fprintf(out, "Repair attempts:  %d (modified: %t)\n", result.Repair.Attempts, result.Repair.Modified)
	fmt.Fprintf(out, "Samples:          %d\n", output.SampleCount)
	fmt.Fprintf(out, "Records written:  %d\n", len(output.DateTuples))
	fmt.Fprintf(out, "Tuples corrected: %d\n", result.Correction.TuplesCorrected)
	fmt.Fprintf(out, "Output:           %s\n", result.Export.Path)
	if result.UploadLocation != "" {
		fmt.Fprintf(out, "Uploaded to:      %s\n", result.UploadLocation)
	}
	if result.Diagnostic != nil {
		fmt.Fprintf(out, "Warning:          %v\n", result.Diagnostic)
	}
	if v := result.Validation; v != nil {
		if k := len(v.Convergence); k > 0 {
			fmt.Fprintf(out, "Tau distance:     %.4f (n=%d)\n", v.Convergence[k-1].Frobenius, v.Convergence[k-1].N)
		}
		fmt.Fprintf(out, "Reproduction:     %.4f\n", v.Reproduction)
		if v.Signal != nil {
			fmt.Fprintf(out, "Signal corr:      %.4f\n", v.Signal.Correlation)
		}
	}
}
