package hl7

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	mathutil "github.com/inferloop/casesynth/internal/utils/math"
	"github.com/inferloop/casesynth/pkg/constants"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/interfaces"
	"github.com/inferloop/casesynth/pkg/models"
)

// LoaderConfig contains configuration for the case-report loader
type LoaderConfig struct {
	CacheTTL       time.Duration `json:"cache_ttl" mapstructure:"ttl"`
	CacheKeyPrefix string        `json:"cache_key_prefix" mapstructure:"key_prefix"`
}

// Loader reads preprocessed case-report files and builds the synthesis
// model from them.
type Loader struct {
	config *LoaderConfig
	logger *logrus.Logger
	cache  interfaces.ModelCache
}

// record is one parsed row of a case-report file.
type record struct {
	values      []string
	count       int
	dates       []time.Time
	anchor      time.Time
	anchorField int
}

// NewLoader creates a loader. cache may be nil.
func NewLoader(config *LoaderConfig, cache interfaces.ModelCache, logger *logrus.Logger) *Loader {
	if config == nil {
		config = &LoaderConfig{}
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = constants.DefaultCacheTTL
	}
	if config.CacheKeyPrefix == "" {
		config.CacheKeyPrefix = constants.DefaultCacheKeyPrefix
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Loader{
		config: config,
		logger: logger,
		cache:  cache,
	}
}

// InputFiles returns <data_dir>/<jurisdiction>/<code>.csv for every code in
// the request whose file exists.
func (l *Loader) InputFiles(req interfaces.LoadRequest) ([]string, error) {
	info, err := os.Stat(req.DataDir)
	if err != nil || !info.IsDir() {
		return nil, errors.WrapError(errors.ErrInvalidDataRoot, errors.ErrorTypeConfiguration, errors.CodeInvalidDataRoot,
			"data directory does not exist").WithDetails(req.DataDir)
	}

	var files []string
	for _, code := range req.Codes {
		path := filepath.Join(req.DataDir, req.Jurisdiction, fmt.Sprintf("%d.csv", code))
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			files = append(files, path)
		}
	}
	return files, nil
}

// Load reads the input files for req, consulting the cache first when one
// is configured.
func (l *Loader) Load(ctx context.Context, req interfaces.LoadRequest) (*models.ModelData, error) {
	files, err := l.InputFiles(req)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.WrapError(errors.ErrNoInputFiles, errors.ErrorTypeDataAbsent, errors.CodeNoInputFiles,
			"no input files for jurisdiction and codes").
			WithDetails(fmt.Sprintf("jurisdiction %q, codes %v", req.Jurisdiction, req.Codes))
	}

	var key string
	if l.cache != nil {
		key, err = CacheKey(l.config.CacheKeyPrefix, files)
		if err != nil {
			l.logger.WithError(err).Warn("Failed to fingerprint input files, cache disabled for this run")
		} else if data, err := l.cache.Get(ctx, key); err != nil {
			l.logger.WithError(err).Warn("Model cache lookup failed")
		} else if data != nil {
			l.logger.WithField("key", key).Info("Loaded model from cache")
			return data, nil
		}
	}

	l.logger.WithFields(logrus.Fields{
		"jurisdiction": req.Jurisdiction,
		"files":        len(files),
	}).Info("Loading case-report files")

	var records []record
	skipped := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, skip, err := l.readFile(path)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
		skipped += skip
	}
	if len(records) == 0 {
		return nil, errors.WrapError(errors.ErrNoDatedRecords, errors.ErrorTypeDataAbsent, errors.CodeNoDatedRecords,
			"input files contain no dated records").
			WithContext("skipped", skipped)
	}

	data, err := buildModel(records)
	if err != nil {
		return nil, err
	}
	data.Jurisdiction = req.Jurisdiction
	data.Codes = codesFromFiles(files)
	data.InputFiles = files
	data.SkippedRecords = skipped

	l.logger.WithFields(logrus.Fields{
		"records":       len(records),
		"skipped":       skipped,
		"days":          len(data.Days),
		"total_count":   data.SignalSum(),
		"max_orig_date": data.MaxOriginalDate.Format(constants.DateLayout),
	}).Info("Case-report model built")

	if l.cache != nil && key != "" {
		if err := l.cache.Put(ctx, key, data, l.config.CacheTTL); err != nil {
			l.logger.WithError(err).Warn("Failed to store model in cache")
		}
	}

	return data, nil
}

func (l *Loader) readFile(path string) ([]record, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeReadFailed,
			fmt.Sprintf("Failed to open file: %s", path))
	}
	defer file.Close()

	return l.parse(file, path)
}

// parse reads one case-report CSV stream. Rows without any date are
// skipped and counted.
func (l *Loader) parse(r io.Reader, name string) ([]record, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeReadFailed,
			"failed to read header").WithDetails(name)
	}
	if err := CheckHeader(header); err != nil {
		l.logger.WithField("file", name).Error("Input header does not match the case-report schema")
		return nil, 0, err
	}

	countCol := indexOf(Header, FieldCount)
	dateCols := make([]int, len(DateFields))
	for i, f := range DateFields {
		dateCols[i] = indexOf(Header, f)
	}
	catCols := make([]int, len(CategoricalFields))
	for i, f := range CategoricalFields {
		catCols[i] = indexOf(Header, f)
	}

	var records []record
	skipped := 0
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeReadFailed,
				"failed to read CSV").WithDetails(fmt.Sprintf("%s line %d", name, line))
		}

		rec := record{
			values: make([]string, len(catCols)),
			count:  1,
			dates:  make([]time.Time, len(dateCols)),
		}
		for i, col := range catCols {
			rec.values[i] = Normalize(CategoricalFields[i], row[col])
		}
		if s := strings.TrimSpace(row[countCol]); s != "" {
			count, err := strconv.Atoi(s)
			if err != nil || count < 0 {
				l.logger.WithFields(logrus.Fields{"file": name, "line": line}).Warn("Invalid count, row skipped")
				skipped++
				continue
			}
			rec.count = count
		}

		rec.anchorField = -1
		for i, col := range dateCols {
			s := strings.TrimSpace(row[col])
			if s == "" {
				continue
			}
			d, err := time.Parse(constants.DateLayout, s)
			if err != nil {
				l.logger.WithFields(logrus.Fields{"file": name, "line": line, "field": DateFields[i]}).
					Debug("Unparseable date treated as missing")
				continue
			}
			rec.dates[i] = d
			if rec.anchorField < 0 || d.Before(rec.anchor) {
				rec.anchor = d
				rec.anchorField = i
			}
		}
		if rec.anchorField < 0 {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	return records, skipped, nil
}

// buildModel derives variables, tau, the anchor-date signal and the date
// model from parsed records.
func buildModel(records []record) (*models.ModelData, error) {
	data := &models.ModelData{}

	// Variables, weighted by count.
	codeOf := make([]map[string]int, len(CategoricalFields))
	for k, field := range CategoricalFields {
		weights := make(map[string]float64)
		for _, rec := range records {
			weights[rec.values[k]] += float64(rec.count)
		}
		domain := make([]string, 0, len(weights))
		for v := range weights {
			domain = append(domain, v)
		}
		SortDomain(field, domain)

		w := make([]float64, len(domain))
		codeOf[k] = make(map[string]int, len(domain))
		for i, v := range domain {
			w[i] = weights[v]
			codeOf[k][v] = i
		}
		variable, err := models.NewVariable(field, domain, w)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeDataAbsent, errors.CodeNoDatedRecords,
				"cannot build variable distribution")
		}
		data.Variables = append(data.Variables, variable)
	}

	// Records as codes, and tau over them.
	columns := make([][]float64, len(CategoricalFields))
	for k := range columns {
		columns[k] = make([]float64, len(records))
	}
	data.Records = make([]models.Tuple, len(records))
	for i, rec := range records {
		tuple := make(models.Tuple, len(CategoricalFields))
		for k, v := range rec.values {
			tuple[k] = codeOf[k][v]
			columns[k][i] = float64(tuple[k])
		}
		data.Records[i] = tuple
	}
	data.Tau = models.CorrelationMatrix(mathutil.KendallTauMatrix(columns))

	// Signal over the anchor-date span.
	first, last := records[0].anchor, records[0].anchor
	for _, rec := range records {
		if rec.anchor.Before(first) {
			first = rec.anchor
		}
		if rec.anchor.After(last) {
			last = rec.anchor
		}
	}
	span := daysBetween(first, last) + 1
	data.Signal = make([]int, span)
	data.Days = make([]time.Time, span)
	for i := range data.Days {
		data.Days[i] = first.AddDate(0, 0, i)
	}
	for _, rec := range records {
		data.Signal[daysBetween(first, rec.anchor)] += rec.count
	}
	data.MaxOriginalDate = last

	dm, err := buildDateModel(records)
	if err != nil {
		return nil, err
	}
	data.DateModel = dm
	return data, nil
}

func buildDateModel(records []record) (*models.DateModel, error) {
	anchorWeights := make([]float64, len(DateFields))
	for _, rec := range records {
		anchorWeights[rec.anchorField]++
	}
	anchorCDF, err := models.CumulativeProbabilities(anchorWeights)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "cannot build anchor distribution")
	}

	dm := &models.DateModel{
		Fields:    append([]string(nil), DateFields...),
		AnchorCDF: anchorCDF,
		Offsets:   make([]models.OffsetDistribution, len(DateFields)),
	}
	for f, field := range DateFields {
		var offsets []int
		candidates := 0
		for _, rec := range records {
			if rec.anchorField == f {
				continue
			}
			candidates++
			if !rec.dates[f].IsZero() {
				offsets = append(offsets, daysBetween(rec.anchor, rec.dates[f]))
			}
		}

		dist := models.OffsetDistribution{Field: field, MissingProbability: 1}
		if len(offsets) > 0 {
			ecdf, err := models.NewEmpiricalCDF(offsets)
			if err != nil {
				return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError, "cannot build offset distribution")
			}
			dist.Days = ecdf
			dist.MissingProbability = 1 - float64(len(offsets))/float64(candidates)
		}
		dm.Offsets[f] = dist
	}
	return dm, nil
}

// CacheKey fingerprints input files by path, size and modification time.
func CacheKey(prefix string, files []string) (string, error) {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", SchemaVersion)
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s|%d|%d\n", path, info.Size(), info.ModTime().UnixNano())
	}
	return prefix + ":model:" + hex.EncodeToString(h.Sum(nil)), nil
}

func codesFromFiles(files []string) []int {
	codes := make([]int, 0, len(files))
	for _, path := range files {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if code, err := strconv.Atoi(base); err == nil {
			codes = append(codes, code)
		}
	}
	return codes
}

func indexOf(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}

func daysBetween(a, b time.Time) int {
	return int((b.Unix() - a.Unix()) / (24 * 60 * 60))
}
