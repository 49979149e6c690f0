package commands

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/inferloop/casesynth/cmd/cli/config"
	"github.com/inferloop/casesynth/internal/hl7"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
)

// TargetOptions select the source data of a command.
type TargetOptions struct {
	DataDir         string
	Jurisdiction    string
	Code            string
	DisableGrouping bool
	SyphilisTotal   bool
	Debug           bool
}

// target is a resolved TargetOptions.
type target struct {
	dataDir      string
	jurisdiction hl7.Jurisdiction
	codes        []int
}

func addTargetFlags(cmd *cobra.Command, opts *TargetOptions) {
	cmd.Flags().StringVarP(&opts.DataDir, "data-dir", "d", "", "Root directory of preprocessed case-report files (default from config data_dir)")
	cmd.Flags().StringVarP(&opts.Jurisdiction, "jurisdiction", "j", "", "Jurisdiction name or abbreviation (required)")
	cmd.Flags().StringVarP(&opts.Code, "code", "c", "", "Five-digit condition code (required)")
	cmd.Flags().BoolVar(&opts.DisableGrouping, "disable-grouping", false, "Use only the given code instead of its code group")
	cmd.Flags().BoolVar(&opts.SyphilisTotal, "syphilis-total", false, "Pool all syphilis codes instead of primary and secondary only")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")

	cmd.MarkFlagRequired("jurisdiction")
	cmd.MarkFlagRequired("code")
}

// loadConfig decodes the global viper configuration and builds the logger.
func loadConfig(opts *TargetOptions) (*config.CLIConfig, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(viper.GetViper())
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig, "failed to load configuration")
	}
	logger, err := cfg.NewLogger(opts.Debug)
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig, "invalid logging configuration")
	}
	return cfg, logger, nil
}

// resolveTarget turns flags and configuration into a target. Its errors are
// tagged with the resolve_target stage.
func resolveTarget(opts *TargetOptions, cfg *config.CLIConfig) (*target, error) {
	dataDir, err := resolveDataDir(opts, cfg)
	if err != nil {
		return nil, err
	}

	jurisdiction, err := hl7.ResolveJurisdiction(opts.Jurisdiction)
	if err != nil {
		return nil, errors.AtStage(err, constants.StageResolveTarget)
	}

	code, err := hl7.ParseCode(opts.Code)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidInput, "invalid condition code").
			WithStage(constants.StageResolveTarget)
	}

	grouper := hl7.NewCodeGrouper(cfg.Groups, opts.DisableGrouping)
	return &target{
		dataDir:      dataDir,
		jurisdiction: jurisdiction,
		codes:        grouper.Group(code, opts.SyphilisTotal),
	}, nil
}

func resolveDataDir(opts *TargetOptions, cfg *config.CLIConfig) (string, error) {
	if opts.DataDir != "" {
		return opts.DataDir, nil
	}
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return "", errors.NewConfigurationError(errors.CodeInvalidDataRoot, "a data directory is required").
		WithDetails("pass --data-dir or set data_dir in the configuration").
		WithStage(constants.StageResolveTarget)
}
