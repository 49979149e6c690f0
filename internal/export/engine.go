package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/casesynth/internal/hl7"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/interfaces"
	"github.com/inferloop/casesynth/pkg/models"
)

// ExportEngine resolves output paths and dispatches synthesis results to
// the exporter registered for the file extension.
type ExportEngine struct {
	logger    *logrus.Logger
	config    *ExportConfig
	mu        sync.RWMutex
	exporters map[string]interfaces.ResultExporter
}

// ExportConfig configures the export engine
type ExportConfig struct {
	OutputDirectory string   `json:"output_directory" mapstructure:"output_dir"`
	Header          []string `json:"header"`
	PrettyJSON      bool     `json:"pretty_json"`
}

// ExportResult describes a written output file.
type ExportResult struct {
	Path        string        `json:"path"`
	Format      string        `json:"format"`
	Size        int64         `json:"size"`
	RecordCount int           `json:"record_count"`
	Duration    time.Duration `json:"duration"`
}

// NewExportEngine creates a new export engine
func NewExportEngine(config *ExportConfig, logger *logrus.Logger) (*ExportEngine, error) {
	if config == nil {
		config = getDefaultExportConfig()
	}
	if config.OutputDirectory == "" {
		config.OutputDirectory = constants.DefaultOutputDir
	}
	if len(config.Header) == 0 {
		config.Header = hl7.Header
	}

	if logger == nil {
		logger = logrus.New()
	}

	engine := &ExportEngine{
		logger:    logger,
		config:    config,
		exporters: make(map[string]interfaces.ResultExporter),
	}

	engine.registerDefaultExporters()

	return engine, nil
}

// RegisterExporter registers an exporter for its file extension
func (ee *ExportEngine) RegisterExporter(exporter interfaces.ResultExporter) {
	ee.mu.Lock()
	defer ee.mu.Unlock()

	ee.exporters[exporter.Format()] = exporter
	ee.logger.WithField("format", exporter.Format()).Debug("Registered exporter")
}

// GetSupportedFormats returns all supported file extensions
func (ee *ExportEngine) GetSupportedFormats() []string {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	result := make([]string, 0, len(ee.exporters))
	for format := range ee.exporters {
		result = append(result, format)
	}
	sort.Strings(result)
	return result
}

// ResolveOutputPath validates a user-supplied output path. An empty outfile
// selects defaultName inside the output directory; a missing extension
// defaults to .csv.
func (ee *ExportEngine) ResolveOutputPath(outfile, defaultName string) (string, error) {
	if outfile == "" {
		return filepath.Join(ee.config.OutputDirectory, defaultName), nil
	}

	ext := strings.ToLower(filepath.Ext(outfile))
	switch {
	case ext == "":
		outfile += constants.ExtCSV
	case !ee.supports(ext):
		return "", errors.WrapError(errors.ErrUnsupportedExtension, errors.ErrorTypeConfiguration, errors.CodeUnsupportedExtension,
			"unsupported output file extension").
			WithDetails(fmt.Sprintf("%q; supported extensions are %s", ext, strings.Join(ee.GetSupportedFormats(), " and ")))
	}

	return outfile, nil
}

// Export writes output to w in the given format.
func (ee *ExportEngine) Export(ctx context.Context, w io.Writer, format string, output *models.SynthesisOutput) error {
	exporter, ok := ee.exporterFor(format)
	if !ok {
		return errors.NewConfigurationError(errors.CodeUnsupportedExtension, "no exporter for format").WithDetails(format)
	}
	return exporter.Export(ctx, w, output)
}

// ExportToFile writes output to path, creating its directory when needed.
func (ee *ExportEngine) ExportToFile(ctx context.Context, path string, output *models.SynthesisOutput) (*ExportResult, error) {
	format := strings.ToLower(filepath.Ext(path))
	exporter, ok := ee.exporterFor(format)
	if !ok {
		return nil, errors.NewConfigurationError(errors.CodeUnsupportedExtension, "no exporter for format").
			WithDetails(format).WithStage(constants.StageExport)
	}

	start := time.Now()
	file, err := ee.createOutputFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeOutputIO, errors.CodeWriteFailed, "failed to create output file").
			WithDetails(path).WithStage(constants.StageExport)
	}

	if err := exporter.Export(ctx, file, output); err != nil {
		file.Close()
		return nil, errors.WrapError(err, errors.ErrorTypeOutputIO, errors.CodeWriteFailed, "failed to write output file").
			WithDetails(path).WithStage(constants.StageExport)
	}
	if err := file.Close(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeOutputIO, errors.CodeWriteFailed, "failed to close output file").
			WithDetails(path).WithStage(constants.StageExport)
	}

	result := &ExportResult{
		Path:        path,
		Format:      format,
		RecordCount: len(output.DateTuples),
		Duration:    time.Since(start),
	}
	if info, err := os.Stat(path); err == nil {
		result.Size = info.Size()
	}

	ee.logger.WithFields(logrus.Fields{
		"path":     path,
		"format":   format,
		"records":  result.RecordCount,
		"size":     result.Size,
		"duration": result.Duration,
	}).Info("Export completed")

	return result, nil
}

func (ee *ExportEngine) supports(format string) bool {
	_, ok := ee.exporterFor(format)
	return ok
}

func (ee *ExportEngine) exporterFor(format string) (interfaces.ResultExporter, bool) {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	exporter, ok := ee.exporters[strings.ToLower(format)]
	return exporter, ok
}

func (ee *ExportEngine) createOutputFile(path string) (*os.File, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}
	return file, nil
}

func (ee *ExportEngine) registerDefaultExporters() {
	ee.RegisterExporter(NewCSVExporter(ee.config.Header))
	ee.RegisterExporter(NewJSONExporter(ee.config.Header, ee.config.PrettyJSON))
}

func getDefaultExportConfig() *ExportConfig {
	return &ExportConfig{
		OutputDirectory: constants.DefaultOutputDir,
		Header:          hl7.Header,
	}
}
