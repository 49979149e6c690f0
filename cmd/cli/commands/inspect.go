package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inferloop/casesynth/internal/hl7"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/interfaces"
	"github.com/inferloop/casesynth/pkg/models"
)

type InspectOptions struct {
	TargetOptions
	OutputFormat string
}

// modelSummary is the JSON form of an inspected model.
type modelSummary struct {
	Jurisdiction    string                   `json:"jurisdiction"`
	Codes           []int                    `json:"codes"`
	InputFiles      []string                 `json:"input_files"`
	Variables       map[string]int           `json:"domain_sizes"`
	VariableOrder   []string                 `json:"variable_order"`
	Tau             models.CorrelationMatrix `json:"tau"`
	Days            int                      `json:"days"`
	FirstDay        string                   `json:"first_day"`
	LastDay         string                   `json:"last_day"`
	TotalCases      int                      `json:"total_cases"`
	Records         int                      `json:"records"`
	SkippedRecords  int                      `json:"skipped_records"`
	MaxOriginalDate string                   `json:"max_original_date"`
}

func NewInspectCmd() *cobra.Command {
	opts := &InspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the model built from source case reports",
		Long: `Load the case-report files for a jurisdiction and condition code and print
the fitted model: variables and their domain sizes, the Kendall tau matrix,
and a summary of the daily case-count series.`,
		Example: `  casesynth inspect --data-dir ./hl7 --jurisdiction Iowa --code 10311
  casesynth inspect -d ./hl7 -j IA -c 10311 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	addTargetFlags(cmd, &opts.TargetOptions)
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "text", "Output format (text, json)")

	return cmd
}

func runInspect(ctx context.Context, out io.Writer, opts *InspectOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.OutputFormat != "text" && opts.OutputFormat != "json" {
		return errors.NewConfigurationError(errors.CodeInvalidInput, "unsupported output format").
			WithDetails(opts.OutputFormat)
	}

	cfg, logger, err := loadConfig(&opts.TargetOptions)
	if err != nil {
		return err
	}
	tgt, err := resolveTarget(&opts.TargetOptions, cfg)
	if err != nil {
		return err
	}

	loader := hl7.NewLoader(nil, nil, logger)
	data, err := loader.Load(ctx, interfaces.LoadRequest{
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

	summary := summarizeModel(data)
	if opts.OutputFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summary)
	}

	printModelSummary(out, summary)
	return nil
}

func summarizeModel(data *models.ModelData) *modelSummary {
	summary := &modelSummary{
		Jurisdiction:    data.Jurisdiction,
		Codes:           data.Codes,
		InputFiles:      data.InputFiles,
		Variables:       make(map[string]int, len(data.Variables)),
		VariableOrder:   data.VariableNames(),
		Tau:             data.Tau,
		Days:            len(data.Days),
		TotalCases:      data.SignalSum(),
		Records:         len(data.Records),
		SkippedRecords:  data.SkippedRecords,
		MaxOriginalDate: data.MaxOriginalDate.Format(constants.DateLayout),
	}
	for _, v := range data.Variables {
		summary.Variables[v.Name] = v.Size()
	}
	if len(data.Days) > 0 {
		summary.FirstDay = data.Days[0].Format(constants.DateLayout)
		summary.LastDay = data.Days[len(data.Days)-1].Format(constants.DateLayout)
	}
	return summary
}

func printModelSummary(out io.Writer, s *modelSummary) {
	fmt.Fprintf(out, "Jurisdiction: %s\n", s.Jurisdiction)
	fmt.Fprintf(out, "Codes:        %v\n", s.Codes)
	fmt.Fprintf(out, "Records:      %d (%d skipped)\n", s.Records, s.SkippedRecords)
	fmt.Fprintf(out, "Days:         %d (%s to %s)\n", s.Days, s.FirstDay, s.LastDay)
	fmt.Fprintf(out, "Total cases:  %d\n", s.TotalCases)

	fmt.Fprintf(out, "\nVariables:\n")
	for _, name := range s.VariableOrder {
		fmt.Fprintf(out, "  %-12s %d values\n", name, s.Variables[name])
	}

	fmt.Fprintf(out, "\nKendall tau:\n")
	fmt.Fprintf(out, "  %-12s", "")
	for _, name := range s.VariableOrder {
		fmt.Fprintf(out, " %8s", abbreviate(name))
	}
	fmt.Fprintln(out)
	for i, row := range s.Tau {
		fmt.Fprintf(out, "  %-12s", s.VariableOrder[i])
		for _, v := range row {
			fmt.Fprintf(out, " %8.3f", v)
		}
		fmt.Fprintln(out)
	}
}

func abbreviate(name string) string {
	if len(name) <= 8 {
		return name
	}
	return strings.TrimRight(name[:8], "_")
}
