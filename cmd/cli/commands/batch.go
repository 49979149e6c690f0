package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/inferloop/casesynth/internal/hl7"
	"github.com/inferloop/casesynth/internal/storage"
	"github.com/inferloop/casesynth/internal/workflows"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/interfaces"
)

type BatchOptions struct {
	TargetOptions
	Format     string
	NumSamples int
	Seed       int64
	Upload     bool
	Validate   bool
}

func NewBatchCmd() *cobra.Command {
	opts := &BatchOptions{}

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Generate datasets for every code file of a jurisdiction",
		Long: `Run the generator once for each condition code file found under a
jurisdiction's data directory, or under every jurisdiction with --jurisdiction all.
Codes that belong to the same group are pooled and generated once. A target that
fails is reported and the batch continues with the next one.`,
		Example: `  # Every code file for Oregon, written as JSON
  casesynth batch --data-dir ./hl7 --jurisdiction OR --format json

  # Every jurisdiction, pooling all syphilis codes
  casesynth batch -d ./hl7 -j all --syphilis-total --rng-seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("num-samples") && opts.NumSamples <= 0 {
				return errors.NewConfigurationError(errors.CodeInvalidSampleCount, "--num-samples must be a positive integer").
					WithContext("num_samples", opts.NumSamples)
			}
			if !cmd.Flags().Changed("rng-seed") {
				opts.Seed = time.Now().UnixNano()
			}
			return runBatch(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.DataDir, "data-dir", "d", "", "Root directory of preprocessed case-report files (default from config data_dir)")
	cmd.Flags().StringVarP(&opts.Jurisdiction, "jurisdiction", "j", "", "Jurisdiction name or abbreviation, or \"all\" (required)")
	cmd.Flags().BoolVar(&opts.DisableGrouping, "disable-grouping", false, "Generate each code file on its own")
	cmd.Flags().BoolVar(&opts.SyphilisTotal, "syphilis-total", false, "Pool all syphilis codes instead of primary and secondary only")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.Format, "format", "csv", "Output format (csv, json)")
	cmd.Flags().IntVarP(&opts.NumSamples, "num-samples", "n", 0, "Records per target (default: synthetic case total)")
	cmd.Flags().Int64Var(&opts.Seed, "rng-seed", 0, "Random seed used for every target (default: clock)")
	cmd.Flags().BoolVar(&opts.Upload, "upload", false, "Upload each output to the configured S3 bucket")
	cmd.Flags().BoolVar(&opts.Validate, "validate", false, "Compute validation diagnostics for each target")
	cmd.MarkFlagRequired("jurisdiction")

	return cmd
}

func runBatch(ctx context.Context, out io.Writer, opts *BatchOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, err := loadConfig(&opts.TargetOptions)
	if err != nil {
		return err
	}
	dataDir, err := resolveDataDir(&opts.TargetOptions, cfg)
	if err != nil {
		return err
	}
	jurisdictions, err := workflows.BatchJurisdictions(dataDir, opts.Jurisdiction)
	if err != nil {
		return errors.AtStage(err, constants.StageResolveTarget)
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

	result, err := engine.RunBatch(ctx, workflows.BatchRequest{
		DataDir:       dataDir,
		Jurisdictions: jurisdictions,
		Grouper:       hl7.NewCodeGrouper(cfg.Groups, opts.DisableGrouping),
		SyphilisTotal: opts.SyphilisTotal,
		Format:        opts.Format,
		NumSamples:    opts.NumSamples,
		Seed:          opts.Seed,
		Upload:        opts.Upload,
		Validate:      opts.Validate,
	})
	if result != nil {
		printBatchSummary(out, result)
	}
	return err
}

func printBatchSummary(out io.Writer, result *workflows.BatchResult) {
	for _, t := range result.Targets {
		status := "ok"
		switch {
		case t.Skipped:
			status = "skipped"
		case t.Err != nil:
			status = "failed"
		}
		fmt.Fprintf(out, "%-8s %-4s %v %s\n", status, t.Jurisdiction.Abbreviation, t.Codes, t.Outfile)
		if t.Err != nil {
			fmt.Fprintf(out, "         %v\n", t.Err)
		}
	}
	fmt.Fprintf(out, "\nTargets: %d (succeeded %d, failed %d, skipped %d) in %s\n",
		len(result.Targets), result.Succeeded, result.Failed, result.Skipped, result.Duration.Round(time.Millisecond))
}
