package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/casesynth/internal/hl7"
	"github.com/inferloop/casesynth/pkg/errors"
	"github.com/inferloop/casesynth/pkg/models"
)

func TestNewExportEngine(t *testing.T) {
	logger := logrus.New()
	config := &ExportConfig{OutputDirectory: "/tmp/casesynth/export"}

	engine, err := NewExportEngine(config, logger)
	require.NoError(t, err)
	require.NotNil(t, engine)

	assert.Equal(t, config, engine.config)
	assert.Equal(t, logger, engine.logger)
	assert.Equal(t, hl7.Header, engine.config.Header)
	assert.Equal(t, []string{".csv", ".json"}, engine.GetSupportedFormats())
}

func TestResolveOutputPath(t *testing.T) {
	engine, err := NewExportEngine(&ExportConfig{OutputDirectory: "out"}, logrus.New())
	require.NoError(t, err)

	path, err := engine.ResolveOutputPath("", "synthetic_10311_CA.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "synthetic_10311_CA.csv"), path)

	path, err = engine.ResolveOutputPath("results/run1", "ignored.csv")
	require.NoError(t, err)
	assert.Equal(t, "results/run1.csv", path)

	path, err = engine.ResolveOutputPath("results/run1.JSON", "ignored.csv")
	require.NoError(t, err)
	assert.Equal(t, "results/run1.JSON", path)

	_, err = engine.ResolveOutputPath("results/run1.xlsx", "ignored.csv")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestExportCSV(t *testing.T) {
	engine, err := NewExportEngine(nil, logrus.New())
	require.NoError(t, err)

	output := createTestOutput(t)
	var buf bytes.Buffer
	require.NoError(t, engine.Export(context.Background(), &buf, ".csv", output))

	reader := csv.NewReader(strings.NewReader(buf.String()))
	records, err := reader.ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, hl7.Header, records[0])

	first := records[1]
	assert.Equal(t, "25", first[0])
	assert.Equal(t, "F", first[1])
	assert.Equal(t, "", first[2])
	assert.Equal(t, "1", first[7])
	assert.Equal(t, "2021-03-01", first[12])
	assert.Equal(t, "2021-03-04", first[9])
	assert.Equal(t, "", first[10])

	second := records[2]
	assert.Equal(t, "999", second[0])
	assert.Equal(t, "M", second[1])
	assert.Equal(t, "2021-03-02", second[12])
}

func TestExportJSON(t *testing.T) {
	engine, err := NewExportEngine(nil, logrus.New())
	require.NoError(t, err)

	output := createTestOutput(t)
	var buf bytes.Buffer
	require.NoError(t, engine.Export(context.Background(), &buf, ".json", output))

	var doc JSONDocument
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "run-1", doc.RunID)
	assert.Equal(t, hl7.SchemaVersion, doc.SchemaVersion)
	assert.Equal(t, 2, doc.SampleCount)
	assert.Equal(t, "2021-03-02", doc.MaxOriginalDate)
	assert.False(t, doc.Truncated)
	require.Len(t, doc.Records, 2)
	assert.Equal(t, "25", doc.Records[0].Get("age"))
	assert.Equal(t, "1", doc.Records[0].Get("count"))
	assert.Equal(t, "2021-03-04", doc.Records[0].Get("diag_dt"))
	assert.Equal(t, hl7.Header, doc.Records[0].Fields)
	assert.Len(t, doc.Records[0].Values, len(hl7.Header))

	// Keys appear in column order in the raw document too.
	raw := buf.String()
	last := -1
	for _, field := range hl7.Header {
		idx := strings.Index(raw, `"`+field+`":`)
		require.GreaterOrEqual(t, idx, 0, field)
		assert.Greater(t, idx, last, field)
		last = idx
	}
}

func TestRecordJSON(t *testing.T) {
	record := Record{Fields: []string{"sex", "age"}, Values: []string{"F", "30"}}
	data, err := json.Marshal(record)
	require.NoError(t, err)
	assert.Equal(t, `{"sex":"F","age":"30"}`, string(data))

	var back Record
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, record, back)
	assert.Equal(t, "", back.Get("county"))

	assert.Error(t, json.Unmarshal([]byte(`["sex"]`), &back))
	assert.Error(t, json.Unmarshal([]byte(`{"age":30}`), &back))
}

func TestExportToFileCreatesDirectory(t *testing.T) {
	engine, err := NewExportEngine(nil, logrus.New())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "dir", "out.csv")
	result, err := engine.ExportToFile(context.Background(), path, createTestOutput(t))
	require.NoError(t, err)

	assert.Equal(t, path, result.Path)
	assert.Equal(t, ".csv", result.Format)
	assert.Equal(t, 2, result.RecordCount)
	assert.Greater(t, result.Size, int64(0))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), strings.Join(hl7.Header, ",")))
}

func TestExportToFileUnwritable(t *testing.T) {
	engine, err := NewExportEngine(nil, logrus.New())
	require.NoError(t, err)

	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err = engine.ExportToFile(context.Background(), filepath.Join(blocker, "out.csv"), createTestOutput(t))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeOutputIO))
}

func TestExportCancelled(t *testing.T) {
	engine, err := NewExportEngine(nil, logrus.New())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err = engine.Export(ctx, &buf, ".csv", createTestOutput(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func createTestOutput(t *testing.T) *models.SynthesisOutput {
	t.Helper()

	age, err := models.NewVariable("age", []string{"999", "25"}, []float64{1, 1})
	require.NoError(t, err)
	sex, err := models.NewVariable("sex", []string{"F", "M"}, []float64{1, 1})
	require.NoError(t, err)

	day := func(d int) time.Time { return time.Date(2021, time.March, d, 0, 0, 0, 0, time.UTC) }
	dates := func(ds ...time.Time) []time.Time { return ds }

	return &models.SynthesisOutput{
		RunID:           "run-1",
		SampleCount:     2,
		Variables:       []*models.Variable{age, sex},
		Tuples:          []models.Tuple{{1, 0}, {0, 1}},
		MaxOriginalDate: day(2),
		DateFields:      hl7.DateFields,
		DateTuples: []models.DateTuple{
			{Index: 0, Anchor: day(1), Dates: dates(time.Time{}, day(4), time.Time{}, time.Time{}, day(1), time.Time{})},
			{Index: 1, Anchor: day(2), Dates: dates(time.Time{}, time.Time{}, time.Time{}, time.Time{}, day(2), time.Time{})},
		},
	}
}
