package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/inferloop/casesynth/internal/hl7"
	"github.com/inferloop/casesynth/internal/validation"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/interfaces"
)

type ValidateOptions struct {
	TargetOptions
	OutFile string
}

func NewValidateCmd() *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a generated dataset against its source model",
		Long: `Reload a generated CSV file and compare it with the model built from the
source case reports: convergence of the Kendall tau matrix over growing
prefixes, the share of records that reproduce a source record exactly, and
the distance of each attribute's distribution from its source.`,
		Example: `  casesynth validate -d ./hl7 -j California -c 10311 --outfile synthetic_results/synthetic_10310_10311_10312_CA.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	addTargetFlags(cmd, &opts.TargetOptions)
	cmd.Flags().StringVarP(&opts.OutFile, "outfile", "o", "", "Generated CSV file to validate (required)")
	cmd.MarkFlagRequired("outfile")

	return cmd
}

func runValidate(ctx context.Context, out io.Writer, opts *ValidateOptions) error {
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

	data, err := hl7.NewLoader(nil, nil, logger).Load(ctx, interfaces.LoadRequest{
		DataDir:      tgt.dataDir,
		Jurisdiction: tgt.jurisdiction.Name,
		Codes:        tgt.codes,
	})
	if errors.IsType(err, errors.ErrorTypeDataAbsent) {
		fmt.Fprintf(out, "No case data for %s codes %v: %v\n", tgt.jurisdiction.Name, tgt.codes, err)
		return nil
	}
	if err != nil {
		return errors.AtStage(err, constants.StageLoad)
	}

	file, err := os.Open(opts.OutFile)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeReadFailed, "failed to open generated file").
			WithDetails(opts.OutFile)
	}
	defer file.Close()

	tuples, err := hl7.ReadTuples(file, data.Variables)
	if err != nil {
		return err
	}

	summary, err := validation.NewValidationEngine(nil, logger).Validate(ctx, data, tuples, nil)
	if err != nil {
		return err
	}

	printValidationSummary(out, summary)
	return nil
}

func printValidationSummary(out io.Writer, s *validation.ValidationSummary) {
	fmt.Fprintf(out, "Records: %d\n\n", s.SampleCount)

	fmt.Fprintf(out, "Tau convergence:\n")
	fmt.Fprintf(out, "  %8s  %10s\n", "n", "frobenius")
	for _, p := range s.Convergence {
		fmt.Fprintf(out, "  %8d  %10.4f\n", p.N, p.Frobenius)
	}

	fmt.Fprintf(out, "\nExact record reproduction: %.4f\n", s.Reproduction)

	names := make([]string, 0, len(s.Marginals))
	for name := range s.Marginals {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(out, "\nMarginal total variation distance:\n")
	for _, name := range names {
		fmt.Fprintf(out, "  %-12s %.4f\n", name, s.Marginals[name])
	}
}
